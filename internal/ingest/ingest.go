// Package ingest parses bank ledger exports (.xlsx) into transaction rows
// and hands them to the repository as one atomic bulk load.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/mrh-2003/aml-system/internal/domain"
	"github.com/mrh-2003/aml-system/internal/normalize"
)

var (
	// ErrMissingColumns indicates the workbook lacks one or more required
	// columns. The load is rejected before any row is parsed.
	ErrMissingColumns = errors.New("missing required columns")

	// ErrEmptyWorkbook indicates the workbook has no data rows.
	ErrEmptyWorkbook = errors.New("workbook has no data rows")
)

// requiredColumns must all be present in the header row. Names match the
// bank's export format verbatim.
var requiredColumns = []string{
	"CODUNICOCLI_13_enc",
	"TIPO DE MARCA",
	"DESTIPDOCUMENTO",
	"DESTIPBANCA",
	"SEGMENTO",
	"ACT.ECONOMICA",
	"Fecha",
	"Monto",
	"I / E",
}

// Optional columns enrich rows when present but never block a load.
const (
	colClientID   = "CODUNICOCLI_13_enc"
	colBrandType  = "TIPO DE MARCA"
	colCrimeType  = "Delito"
	colDocType    = "DESTIPDOCUMENTO"
	colTier       = "DESTIPBANCA"
	colSegment    = "SEGMENTO"
	colActivity   = "ACT.ECONOMICA"
	colAccount    = "CTACOMERCIAL"
	colProduct    = "CODPRODUCTO"
	colCurrency   = "MONEDA"
	colOpened     = "FECAPERTURA"
	colClosed     = "FECCIERRE"
	colDate       = "Fecha"
	colTime       = "Hora"
	colMemo       = "Glosa"
	colOpGroup    = "Grupo"
	colChannel    = "Canal"
	colBranchCode = "CodAgencia"
	colBranch     = "Agencia"
	colAmount     = "Monto"
	colDirection  = "I / E"
	colTerminal   = "TERMINAL"
	colOperator   = "OPERADOR"
	colSequence   = "NUMSECUENCIAL"
	colRegister   = "NUMREG"
)

// dateLayouts covers the formats seen in real exports. Excel serials are
// already rendered as text by the reader.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"02/01/2006",
	"01-02-06",
	time.RFC3339,
}

// ReadResult is the outcome of parsing one workbook.
type ReadResult struct {
	Rows []*domain.Transaction

	// Skipped counts data rows dropped for an unparseable amount or date.
	Skipped int
}

// Read parses the first sheet of an .xlsx workbook. All required columns
// must be present in the header row or the whole file is rejected.
func Read(r io.Reader) (*ReadResult, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	if len(rows) < 2 {
		return nil, ErrEmptyWorkbook
	}

	idx := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		idx[strings.TrimSpace(name)] = i
	}

	var missing []string
	for _, name := range requiredColumns {
		if _, ok := idx[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}

	res := &ReadResult{Rows: make([]*domain.Transaction, 0, len(rows)-1)}
	for _, row := range rows[1:] {
		tx, ok := parseRow(row, idx)
		if !ok {
			res.Skipped++
			continue
		}
		res.Rows = append(res.Rows, tx)
	}
	return res, nil
}

func parseRow(row []string, idx map[string]int) (*domain.Transaction, bool) {
	cell := func(name string) string {
		i, ok := idx[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	amount, err := strconv.ParseFloat(strings.ReplaceAll(cell(colAmount), ",", ""), 64)
	if err != nil {
		return nil, false
	}
	date, ok := parseDate(cell(colDate))
	if !ok {
		return nil, false
	}

	memo := cell(colMemo)
	tx := &domain.Transaction{
		ClientID:         cell(colClientID),
		DocumentType:     cell(colDocType),
		BankingTier:      cell(colTier),
		Segment:          cell(colSegment),
		EconomicActivity: cell(colActivity),
		AccountID:        cell(colAccount),
		ProductCode:      cell(colProduct),
		BrandType:        cell(colBrandType),
		CrimeType:        cell(colCrimeType),
		Currency:         mapCurrency(cell(colCurrency)),
		Amount:           amount,
		Direction:        mapDirection(cell(colDirection)),
		Date:             date,
		TimeOfDay:        cell(colTime),
		Memo:             memo,
		NormalizedMemo:   normalize.Memo(memo),
		OpGroup:          cell(colOpGroup),
		Channel:          cell(colChannel),
		BranchCode:       cell(colBranchCode),
		Branch:           cell(colBranch),
		Terminal:         cell(colTerminal),
		Operator:         cell(colOperator),
		SequenceNum:      cell(colSequence),
		RegisterNum:      cell(colRegister),
	}

	if opened, ok := parseDate(cell(colOpened)); ok {
		tx.AccountOpened = opened
	}
	if closed, ok := parseDate(cell(colClosed)); ok {
		tx.AccountClosed = &closed
	}
	return tx, true
}

func parseDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// mapCurrency folds the export's currency names onto the closed domain set.
// Unknown values pass through unchanged for visibility in the raw data.
func mapCurrency(s string) string {
	switch strings.ToUpper(s) {
	case "SOLES", domain.CurrencyLocal:
		return domain.CurrencyLocal
	case "DOLARES", "DÓLARES", domain.CurrencyForeign:
		return domain.CurrencyForeign
	default:
		return s
	}
}

func mapDirection(s string) string {
	switch strings.ToUpper(s) {
	case "INGRESO", domain.DirectionIn:
		return domain.DirectionIn
	case "EGRESO", domain.DirectionOut:
		return domain.DirectionOut
	default:
		return s
	}
}

// Loader couples workbook parsing with the repository bulk load and
// lifecycle event publishing.
type Loader struct {
	repo domain.Repository
	bus  domain.EventBus
}

// NewLoader returns a Loader. The bus may be nil; events are then skipped.
func NewLoader(repo domain.Repository, bus domain.EventBus) *Loader {
	return &Loader{repo: repo, bus: bus}
}

// Load parses the workbook and inserts every row under a new load with the
// given code. Parsing failures reject the whole file; insert failures roll
// the load back. Returns the new load ID and the parse result.
func (l *Loader) Load(ctx context.Context, code string, r io.Reader, progress domain.ProgressFunc) (int64, *ReadResult, error) {
	res, err := Read(r)
	if err != nil {
		return 0, nil, err
	}

	load := &domain.Load{Code: code, TotalRows: len(res.Rows)}
	id, err := l.repo.BulkLoad(ctx, load, res.Rows, progress)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to load %q: %w", code, err)
	}

	if l.bus != nil {
		payload := []byte(fmt.Sprintf(`{"code":%q,"rows":%d,"skipped":%d}`, code, len(res.Rows), res.Skipped))
		_ = l.bus.Publish(ctx, domain.TopicLoadCompleted, payload)
	}
	return id, res, nil
}
