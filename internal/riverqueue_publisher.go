package internal

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/lib/pq"
)

// riverQueuePublisher inserts deliveries as jobs into a River job table so
// a durable out-of-process worker can run the sync pipeline.
type riverQueuePublisher struct {
	db  *sql.DB
	cfg RiverQueueConfig
}

func newRiverQueuePublisher(cfg RiverQueueConfig) (*riverQueuePublisher, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = "postgres"
	}
	if cfg.DSN == "" {
		return nil, errors.New("riverqueue dsn is required")
	}
	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, err
	}
	return &riverQueuePublisher{db: db, cfg: cfg}, nil
}

// Publish inserts one job per message into the River jobs table. The job
// args are the delivery envelope as published on every other driver.
func (p *riverQueuePublisher) Publish(topic string, msgs ...*message.Message) error {
	table := p.cfg.Table
	if table == "" {
		table = "river_job"
	}

	query := fmt.Sprintf(
		`INSERT INTO %s (args, kind, max_attempts, metadata, priority, queue, scheduled_at, tags)
VALUES ($1, $2, $3, $4, $5, $6, now(), $7)`,
		table,
	)

	for _, msg := range msgs {
		metadata := fmt.Sprintf(`{"topic":%q,"provider":%q,"event":%q}`,
			topic, msg.Metadata.Get("provider"), msg.Metadata.Get("event"))

		if _, err := p.db.Exec(
			query,
			string(msg.Payload),
			p.cfg.Kind,
			p.cfg.MaxAttempts,
			metadata,
			p.cfg.Priority,
			p.cfg.Queue,
			pq.Array(p.cfg.Tags),
		); err != nil {
			return err
		}
	}
	return nil
}

func (p *riverQueuePublisher) Close() error {
	if p.db == nil {
		return nil
	}
	return p.db.Close()
}
