package detect

import (
	"math"
	"time"

	"github.com/mrh-2003/aml-system/internal/domain"
	"github.com/mrh-2003/aml-system/internal/graph"
)

// Amounts closer than this are considered equal when pairing legs.
const mirrorAmountEpsilon = 0.01

// MirrorConfig parameterizes the mirror-match graph builder.
type MirrorConfig struct {
	// ToleranceHours is the maximum time distance between the two legs.
	ToleranceHours float64
}

// Match is one paired outflow/inflow leg between two different clients.
type Match struct {
	FromClient string    `json:"fromClient"`
	ToClient   string    `json:"toClient"`
	Amount     float64   `json:"amount"`
	Date       time.Time `json:"date"`
	HoursApart float64   `json:"hoursApart"`
}

// MirrorResult is the match list, the accumulated money-flow graph and the
// count of rows excluded for unparsable timestamps. Zero matches is a valid
// empty result, not a failure.
type MirrorResult struct {
	Matches []Match
	Graph   *graph.Directed
	Dropped int
}

// MirrorMatches pairs every outflow of one client against every inflow of a
// different client, matching near-equal amounts within the time tolerance.
// The quadratic scan is deliberate: case-scoped sets are hundreds to low
// thousands of rows, far below the point where a bucketed join would pay
// off. Each match accumulates onto a directed edge from the outflow client
// to the inflow client.
func MirrorMatches(rows []*domain.Transaction, cfg MirrorConfig) *MirrorResult {
	result := &MirrorResult{Graph: graph.NewDirected()}

	type leg struct {
		tx *domain.Transaction
		at time.Time
	}
	outflows := make([]leg, 0)
	inflows := make([]leg, 0)

	for _, tx := range rows {
		at, ok := tx.Timestamp()
		if !ok {
			result.Dropped++
			continue
		}
		switch tx.Direction {
		case domain.DirectionOut:
			outflows = append(outflows, leg{tx, at})
		case domain.DirectionIn:
			inflows = append(inflows, leg{tx, at})
		}
	}

	tolerance := cfg.ToleranceHours
	for _, out := range outflows {
		for _, in := range inflows {
			if out.tx.ClientID == in.tx.ClientID {
				continue
			}
			if math.Abs(out.tx.Amount-in.tx.Amount) >= mirrorAmountEpsilon {
				continue
			}
			hours := math.Abs(out.at.Sub(in.at).Hours())
			if hours > tolerance {
				continue
			}

			result.Matches = append(result.Matches, Match{
				FromClient: out.tx.ClientID,
				ToClient:   in.tx.ClientID,
				Amount:     out.tx.Amount,
				Date:       out.tx.Date,
				HoursApart: hours,
			})
			result.Graph.AddMatch(out.tx.ClientID, in.tx.ClientID, out.tx.Amount)
		}
	}

	return result
}

// Table renders the match list for display and export.
func (r *MirrorResult) Table() *Table {
	table := NewTable(DetectorMirrorMatch,
		"Origen", "Destino", "Monto", "Fecha", "Diff Horas")
	table.Dropped = r.Dropped
	for _, m := range r.Matches {
		table.Append(displayID(m.FromClient), displayID(m.ToClient),
			round2(m.Amount), m.Date.Format("2006-01-02"), round2(m.HoursApart))
	}
	return table
}

// Layout computes the spring layout used to draw the graph, with node sizes
// scaled by degree.
func (r *MirrorResult) Layout() map[string]graph.Point {
	return r.Graph.SpringLayout(2, 50)
}
