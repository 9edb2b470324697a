package internal

import "encoding/json"

// Delivery is the wire envelope for one verified webhook delivery, published
// by the HTTP handlers and consumed by the sync worker. The payload is kept
// opaque; classification happens on the consuming side.
type Delivery struct {
	Provider   string            `json:"provider"`
	Event      string            `json:"event"`
	Headers    map[string]string `json:"headers"`
	RawPayload json.RawMessage   `json:"payload"`
}
