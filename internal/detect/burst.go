package detect

import (
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mrh-2003/aml-system/internal/domain"
	"github.com/mrh-2003/aml-system/internal/normalize"
)

// BurstConfig parameterizes the temporal burst detector.
type BurstConfig struct {
	// WindowHours is the sliding window length.
	WindowHours int

	// Threshold is the minimum operation count inside a window to emit a
	// finding.
	Threshold int

	// AmountMax qualifies only operations strictly below this amount.
	AmountMax float64

	// Channels qualifies operations whose channel contains any of these
	// values. Empty means every channel qualifies.
	Channels []string
}

// BurstFinding is one detected operation burst for one client.
type BurstFinding struct {
	ClientID    string    `json:"clientId"`
	WindowStart time.Time `json:"windowStart"`
	Operations  int       `json:"operations"`
	TotalAmount float64   `json:"totalAmount"`
	TopTokens   []string  `json:"topTokens"`
}

// BurstResult is the detector output plus the count of rows excluded for
// unparsable timestamps.
type BurstResult struct {
	Findings []BurstFinding
	Dropped  int
}

// Bursts detects structuring: clients whose low-value operations on the
// configured channels cluster inside a time window. Per client, qualifying
// rows are sorted ascending by timestamp and scanned with a cursor: when
// the window starting at the cursor holds at least Threshold operations a
// finding is emitted and the cursor skips past window end plus one hour, so
// overlapping re-detections of the same burst are impossible; otherwise the
// cursor advances by one row.
func Bursts(rows []*domain.Transaction, cfg BurstConfig) *BurstResult {
	result := &BurstResult{}
	window := time.Duration(cfg.WindowHours) * time.Hour

	type stamped struct {
		tx *domain.Transaction
		at time.Time
	}
	byClient := make(map[string][]stamped)
	clientOrder := make([]string, 0)

	for _, tx := range rows {
		if tx.Amount >= cfg.AmountMax || !channelQualifies(tx.Channel, cfg.Channels) {
			continue
		}
		at, ok := tx.Timestamp()
		if !ok {
			result.Dropped++
			continue
		}
		if _, seen := byClient[tx.ClientID]; !seen {
			clientOrder = append(clientOrder, tx.ClientID)
		}
		byClient[tx.ClientID] = append(byClient[tx.ClientID], stamped{tx, at})
	}

	for _, client := range clientOrder {
		ops := byClient[client]
		sort.SliceStable(ops, func(i, j int) bool { return ops[i].at.Before(ops[j].at) })

		i := 0
		for i < len(ops) {
			start := ops[i].at
			end := start.Add(window)

			count := 0
			amount := 0.0
			memos := make([]string, 0)
			last := i
			for j := i; j < len(ops) && !ops[j].at.After(end); j++ {
				count++
				amount += ops[j].tx.Amount
				memos = append(memos, ops[j].tx.NormalizedMemo)
				last = j
			}

			if count < cfg.Threshold {
				i++
				continue
			}

			result.Findings = append(result.Findings, BurstFinding{
				ClientID:    client,
				WindowStart: start,
				Operations:  count,
				TotalAmount: amount,
				TopTokens:   topTokens(memos, 3),
			})

			// Skip past window end plus one hour so the next scan cannot
			// re-detect part of this burst.
			skipUntil := end.Add(time.Hour)
			i = last + 1
			for i < len(ops) && !ops[i].at.After(skipUntil) {
				i++
			}
		}
	}

	return result
}

// Table renders the findings for display and export.
func (r *BurstResult) Table() *Table {
	table := NewTable(DetectorBurst,
		"Cliente", "Fecha Inicio", "Num Operaciones", "Monto Total", "Palabras Frecuentes")
	table.Dropped = r.Dropped
	for _, f := range r.Findings {
		table.Append(displayID(f.ClientID), f.WindowStart.Format("2006-01-02 15:04:05"),
			f.Operations, round2(f.TotalAmount), strings.Join(f.TopTokens, " "))
	}
	return table
}

func channelQualifies(channel string, channels []string) bool {
	if len(channels) == 0 {
		return true
	}
	for _, c := range channels {
		if c != "" && strings.Contains(channel, c) {
			return true
		}
	}
	return false
}

// topTokens returns the n most frequent memo tokens longer than four
// characters, most frequent first, first-seen order breaking ties.
func topTokens(memos []string, n int) []string {
	counts := make(map[string]int)
	order := make([]string, 0)
	for _, memo := range memos {
		for _, tok := range normalize.Tokens(memo) {
			if utf8.RuneCountInString(tok) <= 4 {
				continue
			}
			if counts[tok] == 0 {
				order = append(order, tok)
			}
			counts[tok]++
		}
	}
	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })
	if len(order) > n {
		order = order[:n]
	}
	return order
}
