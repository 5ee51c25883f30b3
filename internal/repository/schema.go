package repository

import "strings"

// Schema definitions for the AML database.
// Compatible with both SQLite and PostgreSQL; the {{SERIAL}} marker is
// substituted per driver because the engines spell auto-increment keys
// differently.

const schemaLoads = `
CREATE TABLE IF NOT EXISTS loads (
    id {{SERIAL}},
    code TEXT NOT NULL UNIQUE,
    total_rows INTEGER NOT NULL,
    loaded_at TIMESTAMP NOT NULL
);
`

const schemaTransactions = `
CREATE TABLE IF NOT EXISTS transactions (
    id {{SERIAL}},
    load_id INTEGER NOT NULL,
    client_id TEXT NOT NULL,
    document_type TEXT,
    banking_tier TEXT,
    segment TEXT,
    economic_activity TEXT,
    account_id TEXT,
    product_code TEXT,
    brand_type TEXT,
    crime_type TEXT,
    currency TEXT NOT NULL,
    amount REAL NOT NULL,
    direction TEXT NOT NULL,
    account_opened TIMESTAMP,
    account_closed TIMESTAMP,
    tx_date TIMESTAMP NOT NULL,
    time_of_day TEXT,
    memo TEXT,
    normalized_memo TEXT,
    op_group TEXT,
    channel TEXT,
    branch_code TEXT,
    branch TEXT,
    terminal TEXT,
    operator TEXT,
    sequence_num TEXT,
    register_num TEXT
);

CREATE INDEX IF NOT EXISTS idx_transactions_client ON transactions(client_id);
CREATE INDEX IF NOT EXISTS idx_transactions_load ON transactions(load_id);
CREATE INDEX IF NOT EXISTS idx_transactions_date ON transactions(tx_date);
`

const schemaCases = `
CREATE TABLE IF NOT EXISTS cases (
    id {{SERIAL}},
    name TEXT NOT NULL UNIQUE,
    description TEXT,
    created_at TIMESTAMP NOT NULL
);
`

const schemaCaseMembers = `
CREATE TABLE IF NOT EXISTS case_members (
    case_id INTEGER NOT NULL,
    client_id TEXT NOT NULL,
    PRIMARY KEY (case_id, client_id)
);

CREATE INDEX IF NOT EXISTS idx_case_members_case ON case_members(case_id);
`

const schemaReportRefs = `
CREATE TABLE IF NOT EXISTS report_refs (
    id {{SERIAL}},
    case_id INTEGER NOT NULL,
    detector_name TEXT NOT NULL,
    config TEXT NOT NULL,
    include_in_pdf INTEGER NOT NULL DEFAULT 1,
    generated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_report_refs_case ON report_refs(case_id);
`

const schemaAuditEntries = `
CREATE TABLE IF NOT EXISTS audit_entries (
    id {{SERIAL}},
    topic TEXT NOT NULL,
    reference TEXT NOT NULL,
    detail TEXT,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_entries_created ON audit_entries(created_at);
`

// AllSchemas returns all schema statements in order, with the serial key
// type resolved for the given driver.
func AllSchemas(driver string) []string {
	serial := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if driver == "postgres" {
		serial = "BIGSERIAL PRIMARY KEY"
	}

	raw := []string{
		schemaLoads,
		schemaTransactions,
		schemaCases,
		schemaCaseMembers,
		schemaReportRefs,
		schemaAuditEntries,
	}

	schemas := make([]string, len(raw))
	for i, s := range raw {
		schemas[i] = strings.ReplaceAll(s, "{{SERIAL}}", serial)
	}
	return schemas
}
