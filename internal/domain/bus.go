package domain

import (
	"context"
)

// EventBus defines the interface for analysis lifecycle events.
// Supports Go channels (community) or NATS (pro). Publishing is
// fire-and-forget: detectors never block on consumers.
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, topic string, handler MessageHandler) (Subscription, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message represents an event message.
type Message struct {
	ID        string            `json:"id"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe stops receiving messages.
	Unsubscribe() error

	// Topic returns the subscribed topic.
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel" or "nats"
	Type string

	// Channel settings
	ChannelBufferSize int

	// NATS settings
	NATSUrl           string
	NATSToken         string
	NATSMaxReconnects int
	NATSReconnectWait int // seconds
}

// Analysis lifecycle topics consumed by the audit worker.
const (
	TopicLoadCompleted    = "aml.load.completed"
	TopicCaseCreated      = "aml.case.created"
	TopicCaseDeleted      = "aml.case.deleted"
	TopicAnalysisComplete = "aml.analysis.completed"
	TopicReportMarked     = "aml.report.marked"
	TopicReportGenerated  = "aml.report.generated"
)
