package detect

import (
	"math"
	"time"

	"github.com/mrh-2003/aml-system/internal/domain"
)

// PassThroughConfig parameterizes the money-velocity detector.
type PassThroughConfig struct {
	// MatchRatio is the minimum fraction of the larger daily leg that must
	// be matched by the opposite leg.
	MatchRatio float64

	// MinInflow gates findings to days with at least this much inflow.
	MinInflow float64
}

// BridgeConfig parameterizes the bridge-account detector.
type BridgeConfig struct {
	// NetMax is the maximum absolute daily net balance change.
	NetMax float64

	// TurnoverMin is the minimum daily inflow plus outflow.
	TurnoverMin float64
}

// DayFlow is one client's daily inflow/outflow pivot row. A missing leg is
// zero, never absent.
type DayFlow struct {
	ClientID string    `json:"clientId"`
	Day      time.Time `json:"day"`
	Inflow   float64   `json:"inflow"`
	Outflow  float64   `json:"outflow"`
	Net      float64   `json:"net"`
	Turnover float64   `json:"turnover"`
	MatchPct float64   `json:"matchPct"`
}

// dailyFlows pivots rows into per-(client, day) inflow and outflow sums,
// preserving first-seen order.
func dailyFlows(rows []*domain.Transaction) []DayFlow {
	type key struct {
		client string
		day    time.Time
	}
	index := make(map[key]int)
	flows := make([]DayFlow, 0)

	for _, tx := range rows {
		k := key{tx.ClientID, tx.Day()}
		idx, ok := index[k]
		if !ok {
			idx = len(flows)
			index[k] = idx
			flows = append(flows, DayFlow{ClientID: tx.ClientID, Day: k.day})
		}
		if tx.Direction == domain.DirectionIn {
			flows[idx].Inflow += tx.Amount
		} else {
			flows[idx].Outflow += tx.Amount
		}
	}

	for i := range flows {
		f := &flows[i]
		f.Net = f.Inflow - f.Outflow
		f.Turnover = f.Inflow + f.Outflow
		if larger := math.Max(f.Inflow, f.Outflow); larger > 0 {
			f.MatchPct = (1 - math.Abs(f.Net)/larger) * 100
		}
	}
	return flows
}

// PassThrough finds days where money moves through an account without
// resting: the smaller leg matches more than MatchRatio of the larger leg
// and the day's inflow exceeds MinInflow. A day with only outflow has
// inflow zero and can never satisfy the inflow gate.
func PassThrough(rows []*domain.Transaction, cfg PassThroughConfig) []DayFlow {
	flagged := make([]DayFlow, 0)
	for _, f := range dailyFlows(rows) {
		if f.MatchPct > cfg.MatchRatio*100 && f.Inflow > cfg.MinInflow {
			flagged = append(flagged, f)
		}
	}
	return flagged
}

// PassThroughTable renders pass-through findings.
func PassThroughTable(flows []DayFlow) *Table {
	table := NewTable(DetectorPassThrough,
		"Cliente", "Fecha", "Ingreso", "Egreso", "Diferencia", "% Match")
	for _, f := range flows {
		table.Append(displayID(f.ClientID), f.Day.Format("2006-01-02"),
			round2(f.Inflow), round2(f.Outflow), round2(math.Abs(f.Net)), round2(f.MatchPct))
	}
	return table
}

// Bridges finds bridge-account days: transfer/check operations whose daily
// net stays below NetMax while turnover exceeds TurnoverMin, meaning money
// transits the account rather than resting in it.
func Bridges(rows []*domain.Transaction, cfg BridgeConfig) []DayFlow {
	transferRows := filterRows(rows, func(t *domain.Transaction) bool { return t.IsTransferOp() })

	flagged := make([]DayFlow, 0)
	for _, f := range dailyFlows(transferRows) {
		if math.Abs(f.Net) < cfg.NetMax && f.Turnover > cfg.TurnoverMin {
			flagged = append(flagged, f)
		}
	}
	return flagged
}

// BridgeTable renders bridge-account findings.
func BridgeTable(flows []DayFlow) *Table {
	table := NewTable(DetectorBridge,
		"Cliente", "Fecha", "Ingreso", "Egreso", "Saldo Diario", "Volumen Diario")
	for _, f := range flows {
		table.Append(displayID(f.ClientID), f.Day.Format("2006-01-02"),
			round2(f.Inflow), round2(f.Outflow), round2(f.Net), round2(f.Turnover))
	}
	return table
}
