// Package worker runs the audit trail consumer: every analysis lifecycle
// event published on the bus is persisted as an audit entry.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/mrh-2003/aml-system/internal/domain"
)

// auditTopics is the full set of lifecycle topics the worker records.
var auditTopics = []string{
	domain.TopicLoadCompleted,
	domain.TopicCaseCreated,
	domain.TopicCaseDeleted,
	domain.TopicAnalysisComplete,
	domain.TopicReportMarked,
	domain.TopicReportGenerated,
}

// Worker consumes lifecycle events and writes the audit trail.
type Worker struct {
	bus  domain.EventBus
	repo domain.Repository

	mu            sync.Mutex
	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewWorker creates an audit worker.
func NewWorker(bus domain.EventBus, repo domain.Repository) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:    bus,
		repo:   repo,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start subscribes to every lifecycle topic.
func (w *Worker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, topic := range auditTopics {
		sub, err := w.bus.Subscribe(w.ctx, topic, w.handleMessage)
		if err != nil {
			return err
		}
		w.subscriptions = append(w.subscriptions, sub)
	}

	slog.Info("audit worker started",
		"topic_count", len(w.subscriptions),
	)
	return nil
}

// eventPayload covers the fields publishers put on lifecycle messages. All
// fields are optional; unknown payloads are still recorded by topic.
type eventPayload struct {
	Code      string `json:"code"`
	Reference string `json:"reference"`
	Detector  string `json:"detector"`
	CaseID    int64  `json:"caseId"`
	Rows      int    `json:"rows"`
	Skipped   int    `json:"skipped"`
}

func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	var p eventPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		slog.Warn("unparseable lifecycle payload",
			"topic", msg.Topic,
			"message_id", msg.ID,
			"error", err,
		)
	}

	reference := p.Reference
	if reference == "" {
		reference = p.Code
	}
	if reference == "" {
		reference = p.Detector
	}

	entry := &domain.AuditEntry{
		Topic:     msg.Topic,
		Reference: reference,
		Detail:    string(msg.Payload),
	}

	if err := w.repo.SaveAuditEntry(ctx, entry); err != nil {
		slog.Error("failed to save audit entry",
			"topic", msg.Topic,
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	slog.Debug("audit entry recorded",
		"topic", msg.Topic,
		"reference", reference,
	)
	return nil
}

// Stop unsubscribes from all topics and stops the worker.
func (w *Worker) Stop() error {
	w.cancel()

	w.mu.Lock()
	defer w.mu.Unlock()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	slog.Info("audit worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
