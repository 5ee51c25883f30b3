// Package domain defines the core types and interfaces of the AML
// case-analysis engine.
package domain

import (
	"context"
	"time"
)

// ProgressFunc reports bulk-load progress as chunks are committed to the
// pending transaction. done and total are row counts.
type ProgressFunc func(done, total int)

// Repository defines the interface for data persistence.
type Repository interface {
	// Bulk loads. BulkLoad inserts all rows inside one SQL transaction and
	// rolls the whole load back on any failure; no partial data is visible
	// under the load's identifier. A duplicate load code is rejected before
	// any mutation.
	BulkLoad(ctx context.Context, load *Load, rows []*Transaction, progress ProgressFunc) (int64, error)
	GetLoadByCode(ctx context.Context, code string) (*Load, error)
	ListLoads(ctx context.Context) ([]*Load, error)

	// Case operations. CreateCase rejects duplicate names. DeleteCase
	// cascades to members and report marks.
	CreateCase(ctx context.Context, c *Case, memberIDs []string) (int64, error)
	GetCase(ctx context.Context, caseID int64) (*Case, error)
	ListCases(ctx context.Context) ([]*Case, error)
	DeleteCase(ctx context.Context, caseID int64) error
	AddCaseMembers(ctx context.Context, caseID int64, memberIDs []string) error
	ListCaseMembers(ctx context.Context, caseID int64) ([]string, error)

	// Client discovery for case assembly.
	ListClients(ctx context.Context) ([]string, error)
	ListClientsByLoad(ctx context.Context, loadCode string) ([]string, error)

	// Scoped reads. CaseTransactions joins the ledger to the case's member
	// set and applies the filter predicates conjunctively.
	CaseTransactions(ctx context.Context, caseID int64, filter *Filter) ([]*Transaction, error)
	CaseSummary(ctx context.Context, caseID int64) (*CaseSummary, error)

	// Report marks.
	SaveReportRef(ctx context.Context, ref *ReportRef) (int64, error)
	ListReportRefs(ctx context.Context, caseID int64, includeOnly bool) ([]*ReportRef, error)

	// Audit trail.
	SaveAuditEntry(ctx context.Context, entry *AuditEntry) error
	ListAuditEntries(ctx context.Context, since time.Time) ([]*AuditEntry, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// LoadChunkSize bounds memory per insert batch during bulk loads.
	LoadChunkSize int
}
