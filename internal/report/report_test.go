package report

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/mrh-2003/aml-system/internal/detect"
	"github.com/mrh-2003/aml-system/internal/domain"
	"github.com/mrh-2003/aml-system/internal/repository"
)

func setup(t *testing.T) (*Service, domain.Repository, int64) {
	t.Helper()
	ctx := context.Background()

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "report.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	day := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	rows := []*domain.Transaction{
		{ClientID: "cliente-uno", Amount: 1500, Currency: domain.CurrencyLocal, Direction: domain.DirectionIn, Date: day, TimeOfDay: "10:00:00"},
		{ClientID: "cliente-uno", Amount: 900, Currency: domain.CurrencyLocal, Direction: domain.DirectionOut, Date: day, TimeOfDay: "12:00:00"},
		{ClientID: "cliente-dos", Amount: 4000, Currency: domain.CurrencyForeign, Direction: domain.DirectionIn, Date: day, TimeOfDay: "15:00:00"},
	}
	if _, err := repo.BulkLoad(ctx, &domain.Load{Code: "carga-informe"}, rows, nil); err != nil {
		t.Fatalf("BulkLoad failed: %v", err)
	}

	caseID, err := repo.CreateCase(ctx, &domain.Case{
		Name:        "caso informe",
		Description: "Investigación de prueba sobre movimientos atípicos.",
	}, []string{"cliente-uno", "cliente-dos"})
	if err != nil {
		t.Fatalf("CreateCase failed: %v", err)
	}

	return NewService(repo, nil), repo, caseID
}

func TestMark(t *testing.T) {
	svc, _, caseID := setup(t)
	ctx := context.Background()

	cfg := map[string]any{"windowHours": 24, "threshold": 10}
	ref, err := svc.Mark(ctx, caseID, detect.DetectorBurst, cfg, true)
	if err != nil {
		t.Fatalf("Mark failed: %v", err)
	}
	if ref.ID == 0 {
		t.Error("expected persisted reference ID")
	}
	if ref.Config == "" || ref.Config == "null" {
		t.Errorf("expected serialized config, got %q", ref.Config)
	}

	t.Run("UnknownDetectorRejected", func(t *testing.T) {
		_, err := svc.Mark(ctx, caseID, "no_such_detector", nil, true)
		if !errors.Is(err, ErrUnknownDetector) {
			t.Fatalf("expected ErrUnknownDetector, got %v", err)
		}
	})

	t.Run("MarksAccumulate", func(t *testing.T) {
		if _, err := svc.Mark(ctx, caseID, detect.DetectorBurst, cfg, true); err != nil {
			t.Fatalf("second Mark failed: %v", err)
		}
		refs, err := svc.Refs(ctx, caseID, false)
		if err != nil {
			t.Fatalf("Refs failed: %v", err)
		}
		if len(refs) != 2 {
			t.Errorf("expected 2 accumulated marks, got %d", len(refs))
		}
	})
}

func TestRefsIncludeOnly(t *testing.T) {
	svc, _, caseID := setup(t)
	ctx := context.Background()

	if _, err := svc.Mark(ctx, caseID, detect.DetectorMirrorMatch, nil, true); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Mark(ctx, caseID, detect.DetectorTextMining, nil, false); err != nil {
		t.Fatal(err)
	}

	all, err := svc.Refs(ctx, caseID, false)
	if err != nil {
		t.Fatalf("Refs failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 refs, got %d", len(all))
	}

	included, err := svc.Refs(ctx, caseID, true)
	if err != nil {
		t.Fatalf("Refs(includeOnly) failed: %v", err)
	}
	if len(included) != 1 || included[0].DetectorName != detect.DetectorMirrorMatch {
		t.Errorf("expected only the included mark, got %v", included)
	}
}

func TestGeneratePDF(t *testing.T) {
	svc, _, caseID := setup(t)
	ctx := context.Background()

	if _, err := svc.Mark(ctx, caseID, detect.DetectorPassThrough, map[string]any{"matchRatio": 0.8}, true); err != nil {
		t.Fatal(err)
	}

	pdf, err := svc.GeneratePDF(ctx, caseID)
	if err != nil {
		t.Fatalf("GeneratePDF failed: %v", err)
	}
	if len(pdf) == 0 {
		t.Fatal("expected non-empty PDF output")
	}
	if !bytes.HasPrefix(pdf, []byte("%PDF")) {
		t.Errorf("output does not look like a PDF: %q", pdf[:8])
	}

	t.Run("MissingCase", func(t *testing.T) {
		_, err := svc.GeneratePDF(ctx, 99999)
		if err == nil {
			t.Fatal("expected error for missing case")
		}
	})
}

func TestExcelRoundTrip(t *testing.T) {
	table := detect.NewTable(detect.DetectorTextMining, "Palabra", "Frecuencia", "Num Clientes", "Monto Total")
	table.Append("FERREYROS", 12, 3, 45000.50)
	table.Append("MAQUINARIA", 7, 2, 12300.00)
	table.Append("VOLQUETE", 4, 2, 8000.00)

	buf, err := ExportTable(table)
	if err != nil {
		t.Fatalf("ExportTable failed: %v", err)
	}

	back, err := ReadTable(bytes.NewReader(buf.Bytes()), table.Name)
	if err != nil {
		t.Fatalf("ReadTable failed: %v", err)
	}

	if back.Len() != table.Len() {
		t.Errorf("row count changed: exported %d, read %d", table.Len(), back.Len())
	}
	if len(back.Columns) != len(table.Columns) {
		t.Fatalf("column count changed: %v vs %v", table.Columns, back.Columns)
	}
	for i, c := range table.Columns {
		if back.Columns[i] != c {
			t.Errorf("column %d changed: %q vs %q", i, c, back.Columns[i])
		}
	}
	if back.Rows[0][0] != "FERREYROS" {
		t.Errorf("first cell = %v", back.Rows[0][0])
	}

	t.Run("EmptyTableRejected", func(t *testing.T) {
		if _, err := ExportTable(nil); err == nil {
			t.Error("expected error for nil table")
		}
		if _, err := ExportTable(&detect.Table{Name: "x"}); err == nil {
			t.Error("expected error for table without columns")
		}
	})
}
