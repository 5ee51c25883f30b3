package worker

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/mrh-2003/aml-system/internal/bus"
	"github.com/mrh-2003/aml-system/internal/domain"
	"github.com/mrh-2003/aml-system/internal/repository"
)

func setup(t *testing.T) (*Worker, domain.EventBus, domain.Repository) {
	t.Helper()

	eventBus := bus.NewChannelBus(100)
	t.Cleanup(func() { eventBus.Close() })

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "audit.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	return NewWorker(eventBus, repo), eventBus, repo
}

// waitForEntries polls the audit trail until want entries appear or the
// deadline passes. Bus delivery is asynchronous.
func waitForEntries(t *testing.T, repo domain.Repository, want int) []*domain.AuditEntry {
	t.Helper()
	ctx := context.Background()
	deadline := time.Now().Add(2 * time.Second)
	for {
		entries, err := repo.ListAuditEntries(ctx, time.Time{})
		if err != nil {
			t.Fatalf("ListAuditEntries failed: %v", err)
		}
		if len(entries) >= want {
			return entries
		}
		if time.Now().After(deadline) {
			t.Fatalf("timeout: expected %d audit entries, got %d", want, len(entries))
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWorkerRecordsLifecycleEvents(t *testing.T) {
	worker, eventBus, repo := setup(t)
	ctx := context.Background()

	if err := worker.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer worker.Stop()

	stats := worker.GetStats()
	if stats.SubscriptionCount != len(auditTopics) {
		t.Errorf("expected %d subscriptions, got %d", len(auditTopics), stats.SubscriptionCount)
	}

	time.Sleep(10 * time.Millisecond)

	eventBus.Publish(ctx, domain.TopicLoadCompleted, []byte(`{"code":"carga-001","rows":120}`))
	eventBus.Publish(ctx, domain.TopicCaseCreated, []byte(`{"reference":"caso norte","caseId":1}`))
	eventBus.Publish(ctx, domain.TopicAnalysisComplete, []byte(`{"detector":"temporal_burst","caseId":1}`))

	entries := waitForEntries(t, repo, 3)

	byTopic := make(map[string]*domain.AuditEntry)
	for _, e := range entries {
		byTopic[e.Topic] = e
	}

	if e := byTopic[domain.TopicLoadCompleted]; e == nil || e.Reference != "carga-001" {
		t.Errorf("load event not recorded correctly: %+v", e)
	}
	if e := byTopic[domain.TopicCaseCreated]; e == nil || e.Reference != "caso norte" {
		t.Errorf("case event not recorded correctly: %+v", e)
	}
	if e := byTopic[domain.TopicAnalysisComplete]; e == nil || e.Reference != "temporal_burst" {
		t.Errorf("analysis event not recorded correctly: %+v", e)
	}
}

func TestWorkerIgnoresUnparseablePayload(t *testing.T) {
	worker, eventBus, repo := setup(t)
	ctx := context.Background()

	if err := worker.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer worker.Stop()

	time.Sleep(10 * time.Millisecond)

	// Not JSON; the entry is still recorded by topic with raw detail.
	eventBus.Publish(ctx, domain.TopicReportGenerated, []byte("plain text payload"))

	entries := waitForEntries(t, repo, 1)
	if entries[0].Topic != domain.TopicReportGenerated {
		t.Errorf("topic = %q", entries[0].Topic)
	}
	if entries[0].Detail != "plain text payload" {
		t.Errorf("detail = %q", entries[0].Detail)
	}
}

func TestWorkerStop(t *testing.T) {
	worker, eventBus, repo := setup(t)
	ctx := context.Background()

	if err := worker.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := worker.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if stats := worker.GetStats(); stats.SubscriptionCount != 0 {
		t.Errorf("expected 0 subscriptions after stop, got %d", stats.SubscriptionCount)
	}

	eventBus.Publish(ctx, domain.TopicCaseDeleted, []byte(`{"reference":"caso viejo"}`))
	time.Sleep(50 * time.Millisecond)

	entries, err := repo.ListAuditEntries(ctx, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no audit entries after stop, got %d", len(entries))
	}
}
