package detect

import (
	"testing"
	"time"

	"github.com/mrh-2003/aml-system/internal/domain"
)

func TestPassThrough(t *testing.T) {
	cfg := PassThroughConfig{MatchRatio: 0.8, MinInflow: 1000}

	t.Run("HighMatchAboveGateFlagged", func(t *testing.T) {
		rows := []*domain.Transaction{
			tx("conduit", 2000, domain.DirectionIn),
			tx("conduit", 1900, domain.DirectionOut),
		}

		flagged := PassThrough(rows, cfg)
		if len(flagged) != 1 {
			t.Fatalf("expected 1 flagged day, got %d", len(flagged))
		}
		f := flagged[0]
		if f.Inflow != 2000 || f.Outflow != 1900 {
			t.Errorf("unexpected legs: %.2f/%.2f", f.Inflow, f.Outflow)
		}
		if f.MatchPct < 94 || f.MatchPct > 96 {
			t.Errorf("expected match pct near 95, got %.2f", f.MatchPct)
		}
	})

	t.Run("SmallInflowFailsGate", func(t *testing.T) {
		// Ratio is high but the inflow gate rejects the day.
		rows := []*domain.Transaction{
			tx("small", 500, domain.DirectionIn),
			tx("small", 490, domain.DirectionOut),
		}
		if flagged := PassThrough(rows, cfg); len(flagged) != 0 {
			t.Errorf("expected no flagged days, got %d", len(flagged))
		}
	})

	t.Run("OutflowOnlyDayCannotPass", func(t *testing.T) {
		rows := []*domain.Transaction{
			tx("drain", 9000, domain.DirectionOut),
		}
		if flagged := PassThrough(rows, cfg); len(flagged) != 0 {
			t.Errorf("expected no flagged days, got %d", len(flagged))
		}
	})

	t.Run("DaysAreIndependent", func(t *testing.T) {
		day1 := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
		day2 := time.Date(2024, 6, 11, 0, 0, 0, 0, time.UTC)
		rows := []*domain.Transaction{
			tx("split", 2000, domain.DirectionIn, at(day1, "09:00:00")),
			tx("split", 1900, domain.DirectionOut, at(day2, "09:00:00")),
		}
		if flagged := PassThrough(rows, cfg); len(flagged) != 0 {
			t.Errorf("legs on different days must not match, got %d flagged", len(flagged))
		}
	})
}

func TestBridges(t *testing.T) {
	cfg := BridgeConfig{NetMax: 100, TurnoverMin: 5000}

	t.Run("HighTurnoverNearZeroNetFlagged", func(t *testing.T) {
		rows := []*domain.Transaction{
			tx("bridge", 3000, domain.DirectionIn, inGroup("TRANSFERENCIA")),
			tx("bridge", 2950, domain.DirectionOut, inGroup("TT OTRA CTA")),
		}

		flagged := Bridges(rows, cfg)
		if len(flagged) != 1 {
			t.Fatalf("expected 1 flagged day, got %d", len(flagged))
		}
		if flagged[0].Turnover != 5950 {
			t.Errorf("expected turnover 5950, got %.2f", flagged[0].Turnover)
		}
	})

	t.Run("NonTransferOpsExcluded", func(t *testing.T) {
		rows := []*domain.Transaction{
			tx("cash", 3000, domain.DirectionIn, inGroup("DEPOSITO")),
			tx("cash", 2950, domain.DirectionOut, inGroup("RETIRO")),
		}
		if flagged := Bridges(rows, cfg); len(flagged) != 0 {
			t.Errorf("cash operations must not feed the bridge detector, got %d", len(flagged))
		}
	})

	t.Run("LowTurnoverNotFlagged", func(t *testing.T) {
		rows := []*domain.Transaction{
			tx("quiet", 300, domain.DirectionIn, inGroup("TRANSFERENCIA")),
			tx("quiet", 290, domain.DirectionOut, inGroup("TRANSFERENCIA")),
		}
		if flagged := Bridges(rows, cfg); len(flagged) != 0 {
			t.Errorf("expected no flagged days, got %d", len(flagged))
		}
	})
}

func TestFlowTables(t *testing.T) {
	rows := []*domain.Transaction{
		tx("conduit", 2000, domain.DirectionIn),
		tx("conduit", 1900, domain.DirectionOut),
	}
	flows := PassThrough(rows, PassThroughConfig{MatchRatio: 0.8, MinInflow: 1000})

	table := PassThroughTable(flows)
	if table.Len() != 1 {
		t.Fatalf("expected 1 row, got %d", table.Len())
	}
	if len(table.Columns) != 6 {
		t.Errorf("expected 6 columns, got %d", len(table.Columns))
	}
}
