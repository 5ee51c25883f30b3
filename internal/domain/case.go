package domain

import "time"

// Case is an investigation scope: a named set of client identifiers
// analyzed together. Membership is many-to-many; a client can belong to
// several cases. Deleting a case cascades to its members and report marks.
type Case struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`

	// MemberCount is populated on list queries.
	MemberCount int `json:"memberCount,omitempty"`
}

// Load records one bulk ingestion of ledger rows. The code is a
// caller-supplied unique identifier; re-using one is rejected.
type Load struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	TotalRows int       `json:"totalRows"`
	LoadedAt  time.Time `json:"loadedAt"`
}

// ReportRef is the persisted recipe for reproducing a detector run in the
// executive report: detector name and serialized configuration, never the
// raw finding rows.
type ReportRef struct {
	ID           int64     `json:"id"`
	CaseID       int64     `json:"caseId"`
	DetectorName string    `json:"detectorName"`
	Config       string    `json:"config"` // serialized Filter + detector parameters
	Include      bool      `json:"include"`
	GeneratedAt  time.Time `json:"generatedAt"`
}

// CaseSummary holds the case-level statistics shown in the executive report.
type CaseSummary struct {
	CaseID          int64   `json:"caseId"`
	DistinctClients int     `json:"distinctClients"`
	Transactions    int     `json:"transactions"`
	TotalAmount     float64 `json:"totalAmount"`
}

// AuditEntry records an analysis lifecycle event consumed from the bus.
type AuditEntry struct {
	ID        int64     `json:"id"`
	Topic     string    `json:"topic"`
	Reference string    `json:"reference"` // case name, load code or detector name
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
