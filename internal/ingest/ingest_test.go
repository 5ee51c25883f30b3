package ingest

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/mrh-2003/aml-system/internal/domain"
	"github.com/mrh-2003/aml-system/internal/repository"
)

var testHeader = []any{
	"CODUNICOCLI_13_enc", "TIPO DE MARCA", "DESTIPDOCUMENTO", "DESTIPBANCA",
	"SEGMENTO", "ACT.ECONOMICA", "Fecha", "Hora", "Monto", "MONEDA",
	"I / E", "Glosa", "Grupo", "Canal", "Agencia", "OPERADOR",
}

func buildWorkbook(t *testing.T, rows [][]any) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	if err := f.SetSheetRow(sheet, "A1", &testHeader); err != nil {
		t.Fatalf("failed to write header: %v", err)
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatalf("failed to write row %d: %v", i, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("failed to serialize workbook: %v", err)
	}
	return buf
}

func TestRead(t *testing.T) {
	buf := buildWorkbook(t, [][]any{
		{"cli-001", "SOSPECHOSO", "DNI", "BANCA PERSONAL", "AFLUENTE", "TRANSPORTE",
			"2024-06-10", "09:30:00", "1500.50", "SOLES", "Ingreso",
			"ABONO CTA 4455-123", "DEPOSITO", "AGENTE BCP", "LIMA CENTRO", ""},
		{"cli-002", "VINCULADO", "DNI", "BANCA PERSONAL", "MASIVO", "COMERCIO",
			"2024-06-11", "14:00:00", "300", "DOLARES", "Egreso",
			"PAGO FERREYROS SA", "TRANSFERENCIA", "BANCA MOVIL", "AREQUIPA", ""},
	})

	res, err := Read(buf)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(res.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(res.Rows))
	}
	if res.Skipped != 0 {
		t.Errorf("expected 0 skipped, got %d", res.Skipped)
	}

	first := res.Rows[0]
	if first.ClientID != "cli-001" {
		t.Errorf("ClientID = %q", first.ClientID)
	}
	if first.Currency != domain.CurrencyLocal {
		t.Errorf("expected SOLES mapped to %s, got %q", domain.CurrencyLocal, first.Currency)
	}
	if first.Direction != domain.DirectionIn {
		t.Errorf("expected Ingreso mapped to in, got %q", first.Direction)
	}
	if first.Amount != 1500.50 {
		t.Errorf("Amount = %v", first.Amount)
	}
	if first.NormalizedMemo != "ABONO CTA" {
		t.Errorf("NormalizedMemo = %q", first.NormalizedMemo)
	}
	if first.Date.Year() != 2024 || first.Date.Month() != 6 || first.Date.Day() != 10 {
		t.Errorf("Date = %v", first.Date)
	}
	if first.TimeOfDay != "09:30:00" {
		t.Errorf("TimeOfDay = %q", first.TimeOfDay)
	}

	second := res.Rows[1]
	if second.Currency != domain.CurrencyForeign {
		t.Errorf("expected DOLARES mapped to %s, got %q", domain.CurrencyForeign, second.Currency)
	}
	if second.Direction != domain.DirectionOut {
		t.Errorf("expected Egreso mapped to out, got %q", second.Direction)
	}
	if second.NormalizedMemo != "PAGO FERREYROS SA" {
		t.Errorf("NormalizedMemo = %q", second.NormalizedMemo)
	}
}

func TestReadSkipsMalformedRows(t *testing.T) {
	buf := buildWorkbook(t, [][]any{
		{"cli-001", "", "DNI", "", "", "", "2024-06-10", "10:00:00", "no-es-numero", "SOLES",
			"Ingreso", "", "DEPOSITO", "", "", ""},
		{"cli-002", "", "DNI", "", "", "", "fecha-rota", "10:00:00", "500", "SOLES",
			"Ingreso", "", "DEPOSITO", "", "", ""},
		{"cli-003", "", "DNI", "", "", "", "2024-06-10", "10:00:00", "500", "SOLES",
			"Ingreso", "", "DEPOSITO", "", "", ""},
	})

	res, err := Read(buf)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(res.Rows) != 1 {
		t.Fatalf("expected 1 usable row, got %d", len(res.Rows))
	}
	if res.Skipped != 2 {
		t.Errorf("expected 2 skipped rows, got %d", res.Skipped)
	}
	if res.Rows[0].ClientID != "cli-003" {
		t.Errorf("kept wrong row: %q", res.Rows[0].ClientID)
	}
}

func TestReadMissingColumns(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	header := []any{"CODUNICOCLI_13_enc", "Fecha", "I / E"} // Monto and others absent
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		t.Fatal(err)
	}
	row := []any{"cli-001", "2024-06-10", "Ingreso"}
	if err := f.SetSheetRow(sheet, "A2", &row); err != nil {
		t.Fatal(err)
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatal(err)
	}

	_, err = Read(buf)
	if !errors.Is(err, ErrMissingColumns) {
		t.Fatalf("expected ErrMissingColumns, got %v", err)
	}
}

func TestReadEmptyWorkbook(t *testing.T) {
	buf := buildWorkbook(t, nil)
	_, err := Read(buf)
	if !errors.Is(err, ErrEmptyWorkbook) {
		t.Fatalf("expected ErrEmptyWorkbook, got %v", err)
	}
}

func TestReadNotAWorkbook(t *testing.T) {
	_, err := Read(bytes.NewReader([]byte("not an xlsx file")))
	if err == nil {
		t.Fatal("expected error for invalid workbook bytes")
	}
}

func TestLoader(t *testing.T) {
	ctx := context.Background()
	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "ingest.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	loader := NewLoader(repo, nil)

	buf := buildWorkbook(t, [][]any{
		{"cli-001", "", "DNI", "", "", "", "2024-06-10", "10:00:00", "800", "SOLES",
			"Ingreso", "DEPOSITO AGENTE", "DEPOSITO", "AGENTE BCP", "LIMA", ""},
		{"cli-002", "", "DNI", "", "", "", "2024-06-10", "11:00:00", "1200", "SOLES",
			"Egreso", "RETIRO CAJERO", "RETIRO", "CAJEROS AUTOMATICOS", "LIMA", ""},
	})

	var lastDone int
	id, res, err := loader.Load(ctx, "carga-2024-06", buf, func(done, total int) {
		lastDone = done
	})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if id == 0 {
		t.Error("expected non-zero load ID")
	}
	if len(res.Rows) != 2 || lastDone != 2 {
		t.Errorf("expected 2 rows loaded with final progress 2, got %d rows, progress %d", len(res.Rows), lastDone)
	}

	load, err := repo.GetLoadByCode(ctx, "carga-2024-06")
	if err != nil {
		t.Fatalf("GetLoadByCode failed: %v", err)
	}
	if load.TotalRows != 2 {
		t.Errorf("TotalRows = %d", load.TotalRows)
	}

	clients, err := repo.ListClientsByLoad(ctx, "carga-2024-06")
	if err != nil {
		t.Fatalf("ListClientsByLoad failed: %v", err)
	}
	if len(clients) != 2 {
		t.Errorf("expected 2 clients in load, got %d", len(clients))
	}

	t.Run("DuplicateCodeRejected", func(t *testing.T) {
		buf := buildWorkbook(t, [][]any{
			{"cli-009", "", "DNI", "", "", "", "2024-06-12", "10:00:00", "100", "SOLES",
				"Ingreso", "", "DEPOSITO", "", "", ""},
		})
		if _, _, err := loader.Load(ctx, "carga-2024-06", buf, nil); err == nil {
			t.Fatal("expected duplicate load code to be rejected")
		}
	})
}
