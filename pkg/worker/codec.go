package worker

import (
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill/message"

	"deployhook/internal"
	"deployhook/pkg/event"
)

// decodeDelivery unpacks the transport envelope and classifies it into a
// structured event. The decoded payload map is returned alongside so filter
// rules can evaluate against it without re-parsing.
func decodeDelivery(msg *message.Message) (event.Delivery, map[string]interface{}, error) {
	var env internal.Delivery
	if err := json.Unmarshal(msg.Payload, &env); err != nil {
		return event.Delivery{}, nil, err
	}

	provider := env.Provider
	if provider == "" {
		provider = msg.Metadata.Get("provider")
	}

	var body map[string]interface{}
	if len(env.RawPayload) > 0 {
		// A non-object payload is left as a nil body; classification
		// decides whether that is acceptable for the event kind.
		_ = json.Unmarshal(env.RawPayload, &body)
	}

	dlv, err := event.Classify(provider, event.Headers(env.Headers), body)
	if err != nil {
		return event.Delivery{}, nil, err
	}
	return dlv, body, nil
}
