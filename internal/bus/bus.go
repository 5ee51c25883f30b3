package bus

import (
	"fmt"

	"github.com/mrh-2003/aml-system/internal/domain"
)

// New creates an event bus based on configuration: "channel" for the
// in-process bus, "nats" for the external broker.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel":
		return NewChannelBus(cfg.ChannelBufferSize), nil

	case "nats":
		return NewNATSBus(cfg)

	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}
