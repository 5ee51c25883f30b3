package detect

import (
	"sort"
	"time"

	"github.com/mrh-2003/aml-system/internal/domain"
)

// LifetimeConfig parameterizes the disposable-account detector.
type LifetimeConfig struct {
	// MonthsMax flags accounts that lived at most this many months.
	MonthsMax float64
}

// AccountLife is one flagged short-lived account.
type AccountLife struct {
	ClientID    string    `json:"clientId"`
	Opened      time.Time `json:"opened"`
	Closed      time.Time `json:"closed"`
	Months      float64   `json:"months"`
	TotalAmount float64   `json:"totalAmount"`
}

// LifetimeResult carries findings plus the count of corrupt records whose
// close date precedes their open date.
type LifetimeResult struct {
	Findings []AccountLife
	Dropped  int
}

// Lifetimes flags disposable accounts: per client, the first-seen open and
// close dates and the total amount moved. Clients without a close date are
// still open and not evaluable. Duration is days divided by thirty; flagged
// accounts rank by total amount descending.
func Lifetimes(rows []*domain.Transaction, cfg LifetimeConfig) *LifetimeResult {
	type account struct {
		opened time.Time
		closed *time.Time
		amount float64
	}
	accounts := make(map[string]*account)
	order := make([]string, 0)

	for _, tx := range rows {
		a, ok := accounts[tx.ClientID]
		if !ok {
			a = &account{opened: tx.AccountOpened, closed: tx.AccountClosed}
			accounts[tx.ClientID] = a
			order = append(order, tx.ClientID)
		}
		a.amount += tx.Amount
	}

	result := &LifetimeResult{}
	for _, client := range order {
		a := accounts[client]
		if a.closed == nil {
			continue
		}
		if a.closed.Before(a.opened) {
			result.Dropped++
			continue
		}
		months := a.closed.Sub(a.opened).Hours() / 24 / 30
		if months <= cfg.MonthsMax {
			result.Findings = append(result.Findings, AccountLife{
				ClientID:    client,
				Opened:      a.opened,
				Closed:      *a.closed,
				Months:      months,
				TotalAmount: a.amount,
			})
		}
	}

	sort.SliceStable(result.Findings, func(i, j int) bool {
		return result.Findings[i].TotalAmount > result.Findings[j].TotalAmount
	})
	return result
}

// Table renders the findings for display and export.
func (r *LifetimeResult) Table() *Table {
	table := NewTable(DetectorLifetime,
		"Cliente", "Apertura", "Cierre", "Duración (meses)", "Monto Total")
	table.Dropped = r.Dropped
	for _, f := range r.Findings {
		table.Append(displayID(f.ClientID), f.Opened.Format("2006-01-02"),
			f.Closed.Format("2006-01-02"), round2(f.Months), round2(f.TotalAmount))
	}
	return table
}
