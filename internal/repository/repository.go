// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mrh-2003/aml-system/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrDuplicate    = errors.New("duplicate record")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db        *sql.DB
	driver    string
	chunkSize int
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	chunk := cfg.LoadChunkSize
	if chunk <= 0 {
		chunk = 5000
	}

	repo := &SQLRepository{
		db:        db,
		driver:    cfg.Driver,
		chunkSize: chunk,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas(r.driver) {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

var txColumnList = []string{
	"load_id", "client_id", "document_type", "banking_tier", "segment",
	"economic_activity", "account_id", "product_code", "brand_type", "crime_type",
	"currency", "amount", "direction", "account_opened", "account_closed", "tx_date",
	"time_of_day", "memo", "normalized_memo", "op_group", "channel", "branch_code",
	"branch", "terminal", "operator", "sequence_num", "register_num",
}

var txColumns = strings.Join(txColumnList, ", ")

// BulkLoad inserts a load record plus all its rows inside one SQL
// transaction. Any failure rolls back the entire load; no partial data is
// visible under the load's code. Rows are written in chunks so progress can
// be reported and prepared-statement batches stay bounded.
func (r *SQLRepository) BulkLoad(ctx context.Context, load *domain.Load, rows []*domain.Transaction, progress domain.ProgressFunc) (int64, error) {
	if load == nil || load.Code == "" {
		return 0, fmt.Errorf("%w: load code is required", ErrInvalidInput)
	}

	// Duplicate load codes are rejected before any mutation.
	if existing, err := r.GetLoadByCode(ctx, load.Code); err != nil && !errors.Is(err, ErrNotFound) {
		return 0, err
	} else if existing != nil {
		return 0, fmt.Errorf("%w: load code %q already used", ErrDuplicate, load.Code)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin load transaction: %w", err)
	}
	defer tx.Rollback()

	loadedAt := load.LoadedAt
	if loadedAt.IsZero() {
		loadedAt = time.Now().UTC()
	}

	loadID, err := r.insertReturningID(ctx, tx,
		`INSERT INTO loads (code, total_rows, loaded_at) VALUES (?, ?, ?)`,
		load.Code, len(rows), loadedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to register load: %w", err)
	}

	placeholders := strings.TrimRight(strings.Repeat("?, ", len(txColumnList)), ", ")
	stmt, err := tx.PrepareContext(ctx, r.rebind(
		`INSERT INTO transactions (`+txColumns+`) VALUES (`+placeholders+`)`,
	))
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, row := range rows {
		var closed any
		if row.AccountClosed != nil {
			closed = *row.AccountClosed
		}

		if _, err := stmt.ExecContext(ctx,
			loadID, row.ClientID, row.DocumentType, row.BankingTier, row.Segment,
			row.EconomicActivity, row.AccountID, row.ProductCode, row.BrandType, row.CrimeType,
			row.Currency, row.Amount, row.Direction, row.AccountOpened, closed, row.Date,
			row.TimeOfDay, row.Memo, row.NormalizedMemo, row.OpGroup, row.Channel, row.BranchCode,
			row.Branch, row.Terminal, row.Operator, row.SequenceNum, row.RegisterNum,
		); err != nil {
			return 0, fmt.Errorf("failed to insert row %d: %w", i, err)
		}

		if progress != nil && ((i+1)%r.chunkSize == 0 || i+1 == len(rows)) {
			progress(i+1, len(rows))
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit load: %w", err)
	}

	load.ID = loadID
	load.TotalRows = len(rows)
	load.LoadedAt = loadedAt
	return loadID, nil
}

// GetLoadByCode retrieves a load by its caller-supplied code.
func (r *SQLRepository) GetLoadByCode(ctx context.Context, code string) (*domain.Load, error) {
	query := `SELECT id, code, total_rows, loaded_at FROM loads WHERE code = ?`

	var l domain.Load
	err := r.db.QueryRowContext(ctx, r.rebind(query), code).Scan(
		&l.ID, &l.Code, &l.TotalRows, &l.LoadedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// ListLoads returns all loads, most recent first.
func (r *SQLRepository) ListLoads(ctx context.Context) ([]*domain.Load, error) {
	query := `SELECT id, code, total_rows, loaded_at FROM loads ORDER BY loaded_at DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var loads []*domain.Load
	for rows.Next() {
		var l domain.Load
		if err := rows.Scan(&l.ID, &l.Code, &l.TotalRows, &l.LoadedAt); err != nil {
			return nil, err
		}
		loads = append(loads, &l)
	}
	return loads, rows.Err()
}

// CreateCase stores a case and its initial member set. Duplicate case names
// are rejected before any mutation.
func (r *SQLRepository) CreateCase(ctx context.Context, c *domain.Case, memberIDs []string) (int64, error) {
	if c == nil || c.Name == "" {
		return 0, fmt.Errorf("%w: case name is required", ErrInvalidInput)
	}

	var existing int64
	err := r.db.QueryRowContext(ctx, r.rebind(`SELECT id FROM cases WHERE name = ?`), c.Name).Scan(&existing)
	if err == nil {
		return 0, fmt.Errorf("%w: case %q already exists", ErrDuplicate, c.Name)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	caseID, err := r.insertReturningID(ctx, tx,
		`INSERT INTO cases (name, description, created_at) VALUES (?, ?, ?)`,
		c.Name, c.Description, createdAt,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert case: %w", err)
	}

	if err := r.insertMembers(ctx, tx, caseID, memberIDs); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}

	c.ID = caseID
	c.CreatedAt = createdAt
	return caseID, nil
}

func (r *SQLRepository) insertMembers(ctx context.Context, tx *sql.Tx, caseID int64, memberIDs []string) error {
	if len(memberIDs) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, r.rebind(
		`INSERT INTO case_members (case_id, client_id) VALUES (?, ?)`,
	))
	if err != nil {
		return err
	}
	defer stmt.Close()

	seen := make(map[string]bool, len(memberIDs))
	for _, id := range memberIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		if _, err := stmt.ExecContext(ctx, caseID, id); err != nil {
			return fmt.Errorf("failed to insert case member: %w", err)
		}
	}
	return nil
}

// GetCase retrieves one case with its member count.
func (r *SQLRepository) GetCase(ctx context.Context, caseID int64) (*domain.Case, error) {
	query := `
		SELECT c.id, c.name, c.description, c.created_at, COUNT(m.client_id)
		FROM cases c
		LEFT JOIN case_members m ON m.case_id = c.id
		WHERE c.id = ?
		GROUP BY c.id, c.name, c.description, c.created_at
	`

	var c domain.Case
	err := r.db.QueryRowContext(ctx, r.rebind(query), caseID).Scan(
		&c.ID, &c.Name, &c.Description, &c.CreatedAt, &c.MemberCount,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListCases returns all cases with member counts, most recent first.
func (r *SQLRepository) ListCases(ctx context.Context) ([]*domain.Case, error) {
	query := `
		SELECT c.id, c.name, c.description, c.created_at, COUNT(m.client_id)
		FROM cases c
		LEFT JOIN case_members m ON m.case_id = c.id
		GROUP BY c.id, c.name, c.description, c.created_at
		ORDER BY c.created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cases []*domain.Case
	for rows.Next() {
		var c domain.Case
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt, &c.MemberCount); err != nil {
			return nil, err
		}
		cases = append(cases, &c)
	}
	return cases, rows.Err()
}

// DeleteCase removes a case as a unit: membership rows and report marks go
// with it.
func (r *SQLRepository) DeleteCase(ctx context.Context, caseID int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, r.rebind(`DELETE FROM cases WHERE id = ?`), caseID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, r.rebind(`DELETE FROM case_members WHERE case_id = ?`), caseID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, r.rebind(`DELETE FROM report_refs WHERE case_id = ?`), caseID); err != nil {
		return err
	}

	return tx.Commit()
}

// AddCaseMembers appends client identifiers to an existing case.
func (r *SQLRepository) AddCaseMembers(ctx context.Context, caseID int64, memberIDs []string) error {
	if _, err := r.GetCase(ctx, caseID); err != nil {
		return err
	}

	existing, err := r.ListCaseMembers(ctx, caseID)
	if err != nil {
		return err
	}
	current := make(map[string]bool, len(existing))
	for _, id := range existing {
		current[id] = true
	}

	var fresh []string
	for _, id := range memberIDs {
		if !current[id] {
			fresh = append(fresh, id)
		}
	}
	if len(fresh) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := r.insertMembers(ctx, tx, caseID, fresh); err != nil {
		return err
	}
	return tx.Commit()
}

// ListCaseMembers returns the client identifiers bound to a case.
func (r *SQLRepository) ListCaseMembers(ctx context.Context, caseID int64) ([]string, error) {
	query := `SELECT client_id FROM case_members WHERE case_id = ? ORDER BY client_id`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		members = append(members, id)
	}
	return members, rows.Err()
}

// ListClients returns every distinct client identifier in the ledger.
func (r *SQLRepository) ListClients(ctx context.Context) ([]string, error) {
	query := `SELECT DISTINCT client_id FROM transactions ORDER BY client_id`
	return r.clientList(ctx, query)
}

// ListClientsByLoad returns the distinct clients that appear in one load.
func (r *SQLRepository) ListClientsByLoad(ctx context.Context, loadCode string) ([]string, error) {
	query := `
		SELECT DISTINCT t.client_id
		FROM transactions t
		INNER JOIN loads l ON t.load_id = l.id
		WHERE l.code = ?
		ORDER BY t.client_id
	`
	return r.clientList(ctx, query, loadCode)
}

func (r *SQLRepository) clientList(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clients []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		clients = append(clients, id)
	}
	return clients, rows.Err()
}

// CaseTransactions joins the ledger to the case's member set and applies
// the filter predicates conjunctively. An unfiltered call returns exactly
// the case's full transaction set; a case with no members yields an empty
// result, not an error. Result ordering is unspecified.
func (r *SQLRepository) CaseTransactions(ctx context.Context, caseID int64, filter *domain.Filter) ([]*domain.Transaction, error) {
	query := `
		SELECT t.id, t.` + strings.Join(txColumnList, ", t.") + `
		FROM transactions t
		INNER JOIN case_members m ON t.client_id = m.client_id
		WHERE m.case_id = ?
	`
	args := []any{caseID}

	if filter != nil {
		if err := filter.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}

		if filter.Currency != "" && filter.Currency != domain.FilterAny {
			query += " AND t.currency = ?"
			args = append(args, filter.Currency)
		}
		if filter.DocumentType != "" && filter.DocumentType != domain.FilterAny {
			query += " AND t.document_type = ?"
			args = append(args, filter.DocumentType)
		}
		if len(filter.Segments) > 0 {
			query += " AND t.segment IN (" + strings.TrimRight(strings.Repeat("?, ", len(filter.Segments)), ", ") + ")"
			for _, s := range filter.Segments {
				args = append(args, s)
			}
		}
		if filter.AmountMin != nil {
			query += " AND t.amount >= ?"
			args = append(args, *filter.AmountMin)
		}
		if filter.AmountMax != nil {
			query += " AND t.amount <= ?"
			args = append(args, *filter.AmountMax)
		}
		if !filter.DateMin.IsZero() {
			query += " AND t.tx_date >= ?"
			args = append(args, filter.DateMin)
		}
		if !filter.DateMax.IsZero() {
			query += " AND t.tx_date <= ?"
			args = append(args, filter.DateMax)
		}
	}

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []*domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

func scanTransaction(rows *sql.Rows) (*domain.Transaction, error) {
	var t domain.Transaction
	var opened, closed sql.NullTime

	if err := rows.Scan(
		&t.ID,
		&t.LoadID, &t.ClientID, &t.DocumentType, &t.BankingTier, &t.Segment,
		&t.EconomicActivity, &t.AccountID, &t.ProductCode, &t.BrandType, &t.CrimeType,
		&t.Currency, &t.Amount, &t.Direction, &opened, &closed, &t.Date,
		&t.TimeOfDay, &t.Memo, &t.NormalizedMemo, &t.OpGroup, &t.Channel, &t.BranchCode,
		&t.Branch, &t.Terminal, &t.Operator, &t.SequenceNum, &t.RegisterNum,
	); err != nil {
		return nil, err
	}

	if opened.Valid {
		t.AccountOpened = opened.Time
	}
	if closed.Valid {
		c := closed.Time
		t.AccountClosed = &c
	}
	return &t, nil
}

// CaseSummary computes the case-level statistics for the executive report.
func (r *SQLRepository) CaseSummary(ctx context.Context, caseID int64) (*domain.CaseSummary, error) {
	query := `
		SELECT COUNT(DISTINCT t.client_id), COUNT(t.id), COALESCE(SUM(t.amount), 0)
		FROM transactions t
		INNER JOIN case_members m ON t.client_id = m.client_id
		WHERE m.case_id = ?
	`

	s := domain.CaseSummary{CaseID: caseID}
	err := r.db.QueryRowContext(ctx, r.rebind(query), caseID).Scan(
		&s.DistinctClients, &s.Transactions, &s.TotalAmount,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// SaveReportRef appends a mark-for-report record. Marks are append-only:
// re-marking a detector adds a record rather than overwriting one.
func (r *SQLRepository) SaveReportRef(ctx context.Context, ref *domain.ReportRef) (int64, error) {
	if ref == nil || ref.DetectorName == "" {
		return 0, fmt.Errorf("%w: detector name is required", ErrInvalidInput)
	}

	generatedAt := ref.GeneratedAt
	if generatedAt.IsZero() {
		generatedAt = time.Now().UTC()
	}

	include := 0
	if ref.Include {
		include = 1
	}

	id, err := r.insertReturningID(ctx, nil,
		`INSERT INTO report_refs (case_id, detector_name, config, include_in_pdf, generated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		ref.CaseID, ref.DetectorName, ref.Config, include, generatedAt,
	)
	if err != nil {
		return 0, err
	}

	ref.ID = id
	ref.GeneratedAt = generatedAt
	return id, nil
}

// ListReportRefs returns a case's report marks in generation order.
func (r *SQLRepository) ListReportRefs(ctx context.Context, caseID int64, includeOnly bool) ([]*domain.ReportRef, error) {
	query := `
		SELECT id, case_id, detector_name, config, include_in_pdf, generated_at
		FROM report_refs
		WHERE case_id = ?
	`
	if includeOnly {
		query += " AND include_in_pdf = 1"
	}
	query += " ORDER BY generated_at"

	rows, err := r.db.QueryContext(ctx, r.rebind(query), caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []*domain.ReportRef
	for rows.Next() {
		var ref domain.ReportRef
		var include int
		if err := rows.Scan(&ref.ID, &ref.CaseID, &ref.DetectorName, &ref.Config, &include, &ref.GeneratedAt); err != nil {
			return nil, err
		}
		ref.Include = include == 1
		refs = append(refs, &ref)
	}
	return refs, rows.Err()
}

// SaveAuditEntry persists one lifecycle event from the audit worker.
func (r *SQLRepository) SaveAuditEntry(ctx context.Context, entry *domain.AuditEntry) error {
	if entry == nil || entry.Topic == "" {
		return fmt.Errorf("%w: audit topic is required", ErrInvalidInput)
	}

	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	id, err := r.insertReturningID(ctx, nil,
		`INSERT INTO audit_entries (topic, reference, detail, created_at) VALUES (?, ?, ?, ?)`,
		entry.Topic, entry.Reference, entry.Detail, createdAt,
	)
	if err != nil {
		return err
	}
	entry.ID = id
	entry.CreatedAt = createdAt
	return nil
}

// ListAuditEntries returns audit entries at or after the given time.
func (r *SQLRepository) ListAuditEntries(ctx context.Context, since time.Time) ([]*domain.AuditEntry, error) {
	query := `
		SELECT id, topic, reference, detail, created_at
		FROM audit_entries
		WHERE created_at >= ?
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		if err := rows.Scan(&e.ID, &e.Topic, &e.Reference, &e.Detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// execer abstracts *sql.DB and *sql.Tx for the insert helper.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// insertReturningID runs an INSERT and yields the generated key. lib/pq has
// no LastInsertId, so PostgreSQL goes through RETURNING.
func (r *SQLRepository) insertReturningID(ctx context.Context, tx *sql.Tx, query string, args ...any) (int64, error) {
	var ex execer = r.db
	if tx != nil {
		ex = tx
	}

	if r.driver == "postgres" {
		var id int64
		err := ex.QueryRowContext(ctx, r.rebind(query)+" RETURNING id", args...).Scan(&id)
		return id, err
	}

	result, err := ex.ExecContext(ctx, r.rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
