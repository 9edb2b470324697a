package internal

import (
	// Register the database drivers the SQL and riverqueue transports can
	// be configured with.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
)
