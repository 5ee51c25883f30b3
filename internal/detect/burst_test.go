package detect

import (
	"fmt"
	"testing"
	"time"

	"github.com/mrh-2003/aml-system/internal/domain"
)

func burstConfig() BurstConfig {
	return BurstConfig{
		WindowHours: 2,
		Threshold:   10,
		AmountMax:   3000,
		Channels:    []string{"CAJEROS AUTOMATICOS", "AGENTE", "YAPE"},
	}
}

func TestBursts(t *testing.T) {
	day := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)

	t.Run("TwelveInOneHourEmitsOneFinding", func(t *testing.T) {
		rows := make([]*domain.Transaction, 0, 12)
		for i := 0; i < 12; i++ {
			tod := fmt.Sprintf("09:%02d:00", i*5)
			rows = append(rows, tx("rapid", 100, domain.DirectionOut,
				at(day, tod), onChannel("YAPE")))
		}

		result := Bursts(rows, burstConfig())
		if len(result.Findings) != 1 {
			t.Fatalf("expected exactly 1 finding, got %d", len(result.Findings))
		}
		f := result.Findings[0]
		if f.Operations != 12 {
			t.Errorf("expected 12 operations, got %d", f.Operations)
		}
		if f.TotalAmount != 1200 {
			t.Errorf("expected total 1200, got %.2f", f.TotalAmount)
		}
		if !f.WindowStart.Equal(time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)) {
			t.Errorf("unexpected window start %v", f.WindowStart)
		}
	})

	t.Run("NineBelowThresholdEmitsNone", func(t *testing.T) {
		rows := make([]*domain.Transaction, 0, 9)
		for i := 0; i < 9; i++ {
			tod := fmt.Sprintf("09:%02d:00", i*5)
			rows = append(rows, tx("quiet", 100, domain.DirectionOut,
				at(day, tod), onChannel("YAPE")))
		}

		result := Bursts(rows, burstConfig())
		if len(result.Findings) != 0 {
			t.Errorf("expected no findings, got %d", len(result.Findings))
		}
	})

	t.Run("SkipForwardPreventsOverlappingFindings", func(t *testing.T) {
		// Two distinct bursts more than window + 1h apart must yield two
		// findings; a continuous stream yields one.
		rows := make([]*domain.Transaction, 0, 20)
		for i := 0; i < 10; i++ {
			tod := fmt.Sprintf("08:%02d:00", i*3)
			rows = append(rows, tx("burster", 100, domain.DirectionOut, at(day, tod), onChannel("YAPE")))
		}
		for i := 0; i < 10; i++ {
			tod := fmt.Sprintf("15:%02d:00", i*3)
			rows = append(rows, tx("burster", 100, domain.DirectionOut, at(day, tod), onChannel("YAPE")))
		}

		result := Bursts(rows, burstConfig())
		if len(result.Findings) != 2 {
			t.Fatalf("expected 2 findings for 2 separated bursts, got %d", len(result.Findings))
		}
		if result.Findings[0].WindowStart.Hour() != 8 || result.Findings[1].WindowStart.Hour() != 15 {
			t.Errorf("unexpected window starts: %v, %v",
				result.Findings[0].WindowStart, result.Findings[1].WindowStart)
		}
	})

	t.Run("AmountAndChannelGates", func(t *testing.T) {
		rows := make([]*domain.Transaction, 0, 24)
		for i := 0; i < 12; i++ {
			tod := fmt.Sprintf("09:%02d:00", i*5)
			// Above the amount ceiling.
			rows = append(rows, tx("big", 5000, domain.DirectionOut, at(day, tod), onChannel("YAPE")))
			// On a non-qualifying channel.
			rows = append(rows, tx("teller", 100, domain.DirectionOut, at(day, tod), onChannel("VENTANILLA")))
		}

		result := Bursts(rows, burstConfig())
		if len(result.Findings) != 0 {
			t.Errorf("expected no findings, got %d", len(result.Findings))
		}
	})

	t.Run("ChannelPrefixMatch", func(t *testing.T) {
		// "AGENTE" in the configuration matches the concrete "AGENTE BCP".
		rows := make([]*domain.Transaction, 0, 10)
		for i := 0; i < 10; i++ {
			tod := fmt.Sprintf("09:%02d:00", i*5)
			rows = append(rows, tx("agent", 100, domain.DirectionOut, at(day, tod), onChannel("AGENTE BCP")))
		}
		result := Bursts(rows, burstConfig())
		if len(result.Findings) != 1 {
			t.Errorf("expected 1 finding via channel substring match, got %d", len(result.Findings))
		}
	})

	t.Run("MalformedTimestampsDroppedAndCounted", func(t *testing.T) {
		rows := []*domain.Transaction{
			tx("c", 100, domain.DirectionOut, at(day, "99:99:99"), onChannel("YAPE")),
			tx("c", 100, domain.DirectionOut, at(day, "09:00:00"), onChannel("YAPE")),
		}
		result := Bursts(rows, burstConfig())
		if result.Dropped != 1 {
			t.Errorf("expected 1 dropped row, got %d", result.Dropped)
		}
		if len(result.Findings) != 0 {
			t.Errorf("expected no findings, got %d", len(result.Findings))
		}
	})

	t.Run("TopTokens", func(t *testing.T) {
		rows := make([]*domain.Transaction, 0, 12)
		for i := 0; i < 12; i++ {
			tod := fmt.Sprintf("09:%02d:00", i*5)
			rows = append(rows, tx("worded", 100, domain.DirectionOut,
				at(day, tod), onChannel("YAPE"), withMemo("RECARGA CELULAR")))
		}
		result := Bursts(rows, burstConfig())
		if len(result.Findings) != 1 {
			t.Fatalf("expected 1 finding, got %d", len(result.Findings))
		}
		tokens := result.Findings[0].TopTokens
		if len(tokens) == 0 || tokens[0] != "RECARGA" {
			t.Errorf("expected RECARGA as top token, got %v", tokens)
		}
	})
}

func TestBurstTable(t *testing.T) {
	day := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	rows := make([]*domain.Transaction, 0, 12)
	for i := 0; i < 12; i++ {
		tod := fmt.Sprintf("09:%02d:00", i*5)
		rows = append(rows, tx("0123456789abc", 100, domain.DirectionOut, at(day, tod), onChannel("YAPE")))
	}

	table := Bursts(rows, burstConfig()).Table()
	if table.Len() != 1 {
		t.Fatalf("expected 1 row, got %d", table.Len())
	}
	if table.Rows[0][0] != "01234567" {
		t.Errorf("expected truncated client ID, got %v", table.Rows[0][0])
	}
}
