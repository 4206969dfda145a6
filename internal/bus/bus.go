// Package bus provides event bus implementations used to hand quality
// events to other systems.
package bus

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// New creates an event bus based on configuration.
// Type "none" (or empty) returns a nil bus and no error.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "", "none":
		return nil, nil

	case "channel":
		return NewChannelBus(cfg.ChannelBufferSize), nil

	case "nats":
		b, err := NewNATSBus(cfg)
		if err != nil {
			return nil, err
		}
		return b, nil

	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}

func newMessage(topic string, payload []byte) *domain.Message {
	return &domain.Message{
		ID:        uuid.New().String(),
		Topic:     topic,
		Payload:   payload,
		Metadata:  map[string]string{"producer": "kestrel"},
		Timestamp: time.Now().UnixNano(),
	}
}
