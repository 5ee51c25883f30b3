package detect

import (
	"sort"
	"strings"

	"github.com/mrh-2003/aml-system/internal/domain"
)

// Dimension selects a grouping value from a transaction and labels the
// resulting table column.
type Dimension struct {
	Label string
	Value func(*domain.Transaction) string
}

// Grouping dimensions shared by the aggregation detectors.
var (
	DimChannel  = Dimension{"Canal", func(t *domain.Transaction) string { return t.Channel }}
	DimActivity = Dimension{"Actividad", func(t *domain.Transaction) string { return t.EconomicActivity }}
	DimBranch   = Dimension{"Agencia", func(t *domain.Transaction) string { return t.Branch }}
	DimOpGroup  = Dimension{"Grupo", func(t *domain.Transaction) string { return t.OpGroup }}
	DimOperator = Dimension{"Operador", func(t *domain.Transaction) string { return t.Operator }}
	DimSegment  = Dimension{"Segmento", func(t *domain.Transaction) string { return t.Segment }}
	DimClient   = Dimension{"Cliente", func(t *domain.Transaction) string { return t.ClientID }}
	DimBrand    = Dimension{"Tipo Marca", func(t *domain.Transaction) string { return t.BrandType }}
	DimCrime    = Dimension{"Delito", func(t *domain.Transaction) string { return t.CrimeType }}
	DimCurrency = Dimension{"Moneda", func(t *domain.Transaction) string { return t.Currency }}
	DimDay      = Dimension{"Fecha", func(t *domain.Transaction) string { return t.Day().Format("2006-01-02") }}
)

// Ranking keys for Aggregate.
const (
	RankByAmount  = "amount"
	RankByCount   = "count"
	RankByClients = "clients"
)

// AggregateSpec parameterizes one aggregation run. The same engine serves
// every group-and-rank detector; only dimensions, predicate and thresholds
// differ between them.
type AggregateSpec struct {
	// GroupBy names one or two grouping dimensions.
	GroupBy []Dimension

	// Predicate restricts the input rows; nil keeps every row.
	Predicate func(*domain.Transaction) bool

	// RankBy selects the descending sort key; default RankByAmount.
	RankBy string

	// TopN truncates the ranked groups; 0 keeps all.
	TopN int

	// DistinctClients additionally counts distinct client IDs per group.
	DistinctClients bool

	// CurrencySplit additionally sums amounts per currency per group.
	CurrencySplit bool
}

// Group is one aggregated bucket.
type Group struct {
	Keys             []string
	Amount           float64
	Count            int
	DistinctClients  int
	AmountByCurrency map[string]float64
}

const keySep = "\x1f"

// Aggregate groups the rows per the given AggregateSpec, ranks the groups descending by the
// requested key and truncates to TopN. Ties keep first-seen group order, so
// output is deterministic for a given input ordering. The sum of group
// amounts always equals the total amount of the predicate-filtered input.
func Aggregate(rows []*domain.Transaction, spec AggregateSpec) []Group {
	index := make(map[string]int)
	groups := make([]Group, 0)
	clients := make(map[string]map[string]struct{})

	for _, tx := range rows {
		if spec.Predicate != nil && !spec.Predicate(tx) {
			continue
		}

		keys := make([]string, len(spec.GroupBy))
		for i, dim := range spec.GroupBy {
			keys[i] = dim.Value(tx)
		}
		key := strings.Join(keys, keySep)

		idx, ok := index[key]
		if !ok {
			idx = len(groups)
			index[key] = idx
			g := Group{Keys: keys}
			if spec.CurrencySplit {
				g.AmountByCurrency = make(map[string]float64)
			}
			groups = append(groups, g)
			if spec.DistinctClients {
				clients[key] = make(map[string]struct{})
			}
		}

		groups[idx].Amount += tx.Amount
		groups[idx].Count++
		if spec.CurrencySplit {
			groups[idx].AmountByCurrency[tx.Currency] += tx.Amount
		}
		if spec.DistinctClients {
			clients[key][tx.ClientID] = struct{}{}
		}
	}

	if spec.DistinctClients {
		for key, idx := range index {
			groups[idx].DistinctClients = len(clients[key])
		}
	}

	switch spec.RankBy {
	case RankByCount:
		sort.SliceStable(groups, func(i, j int) bool { return groups[i].Count > groups[j].Count })
	case RankByClients:
		sort.SliceStable(groups, func(i, j int) bool { return groups[i].DistinctClients > groups[j].DistinctClients })
	default:
		sort.SliceStable(groups, func(i, j int) bool { return groups[i].Amount > groups[j].Amount })
	}

	if spec.TopN > 0 && len(groups) > spec.TopN {
		groups = groups[:spec.TopN]
	}
	return groups
}

// TopDimension ranks the scoped set by one dimension with a per-currency
// amount split: the general top-N view over channels, activities, branches,
// operation groups, operators or segments.
func TopDimension(rows []*domain.Transaction, dim Dimension, topN int) *Table {
	groups := Aggregate(rows, AggregateSpec{
		GroupBy:       []Dimension{dim},
		TopN:          topN,
		CurrencySplit: true,
	})

	table := NewTable(DetectorTopDimension,
		dim.Label, "Monto Total", "Cantidad Operaciones", "Monto Soles", "Monto Dólares")
	for _, g := range groups {
		table.Append(g.Keys[0], round2(g.Amount), g.Count,
			round2(g.AmountByCurrency[domain.CurrencyLocal]),
			round2(g.AmountByCurrency[domain.CurrencyForeign]))
	}
	return table
}

// CashRatio compares cash-type operation volume against total volume per
// economic activity. Groups with zero total are excluded, so the percentage
// never divides by zero; a group with no cash rows reports 0%.
func CashRatio(rows []*domain.Transaction) *Table {
	total := Aggregate(rows, AggregateSpec{GroupBy: []Dimension{DimActivity}})
	cash := Aggregate(rows, AggregateSpec{
		GroupBy:   []Dimension{DimActivity},
		Predicate: func(t *domain.Transaction) bool { return t.IsCashOp() },
	})

	cashByActivity := make(map[string]Group, len(cash))
	for _, g := range cash {
		cashByActivity[g.Keys[0]] = g
	}

	type ratioRow struct {
		activity   string
		amount     float64
		count      int
		cashAmount float64
		cashCount  int
		pct        float64
	}
	ratios := make([]ratioRow, 0, len(total))
	for _, g := range total {
		if g.Amount == 0 {
			continue
		}
		c := cashByActivity[g.Keys[0]]
		ratios = append(ratios, ratioRow{
			activity:   g.Keys[0],
			amount:     g.Amount,
			count:      g.Count,
			cashAmount: c.Amount,
			cashCount:  c.Count,
			pct:        round2(c.Amount / g.Amount * 100),
		})
	}
	sort.SliceStable(ratios, func(i, j int) bool { return ratios[i].pct > ratios[j].pct })

	table := NewTable(DetectorCashRatio,
		"Actividad", "Monto Total", "Total Ops", "Monto Efectivo", "Ops Efectivo", "% Efectivo")
	for _, r := range ratios {
		table.Append(r.activity, round2(r.amount), r.count, round2(r.cashAmount), r.cashCount, r.pct)
	}
	return table
}

// Deposit and withdrawal groups used by the branch-concentration and
// geographic-profile views, which exclude over-the-counter cash disposition.
var depositWithdrawGroups = []string{"RETIRO", "DEPOSITO"}

func isDepositWithdraw(t *domain.Transaction) bool {
	for _, g := range depositWithdrawGroups {
		if t.OpGroup == g {
			return true
		}
	}
	return false
}

// BranchCash ranks branches by deposited/withdrawn cash volume and returns
// a branch-by-operation-group pivot of the same rows for heatmap display.
func BranchCash(rows []*domain.Transaction, topN int) (*Table, *Table) {
	cashRows := filterRows(rows, isDepositWithdraw)

	groups := Aggregate(cashRows, AggregateSpec{
		GroupBy: []Dimension{DimBranch},
		TopN:    topN,
	})
	top := NewTable(DetectorBranchCash, "Agencia", "Monto Total", "Num Operaciones")
	for _, g := range groups {
		top.Append(g.Keys[0], round2(g.Amount), g.Count)
	}

	pivot := Pivot(DetectorBranchCash, cashRows, DimBranch, DimOpGroup, PivotSum)
	return top, pivot
}

// SegmentVolume flags high-amount activity in the personal-banking tier and
// aggregates it per segment.
func SegmentVolume(rows []*domain.Transaction, minAmount float64) *Table {
	groups := Aggregate(rows, AggregateSpec{
		GroupBy: []Dimension{DimSegment},
		Predicate: func(t *domain.Transaction) bool {
			return t.BankingTier == "BANCA PERSONAL" && t.Amount > minAmount
		},
		DistinctClients: true,
	})

	table := NewTable(DetectorSegmentVolume, "Segmento", "Monto Total", "Num Operaciones", "Clientes Únicos")
	for _, g := range groups {
		table.Append(g.Keys[0], round2(g.Amount), g.Count, g.DistinctClients)
	}
	return table
}

// Wallet operation groups used by the digital-smurfing detector.
var walletOpGroups = []string{"YAPE", "PLIN"}

// DigitalSmurfing finds clients splitting money through large numbers of
// digital-wallet micropayments: operations below maxAmount on wallet
// groups, flagged when a client's count exceeds flagCount.
func DigitalSmurfing(rows []*domain.Transaction, maxAmount float64, flagCount int) *Table {
	groups := Aggregate(rows, AggregateSpec{
		GroupBy: []Dimension{DimClient},
		Predicate: func(t *domain.Transaction) bool {
			if t.Amount >= maxAmount {
				return false
			}
			for _, g := range walletOpGroups {
				if t.OpGroup == g {
					return true
				}
			}
			return false
		},
		RankBy: RankByCount,
	})

	table := NewTable(DetectorDigitalSmurfing, "Cliente", "Num Operaciones", "Monto Total")
	for _, g := range groups {
		if g.Count > flagCount {
			table.Append(displayID(g.Keys[0]), g.Count, round2(g.Amount))
		}
	}
	return table
}

// ATMRuns finds repeated same-day ATM withdrawals per client: grouped by
// (client, day), flagged when the day's withdrawal count reaches minOps.
func ATMRuns(rows []*domain.Transaction, minOps int) *Table {
	groups := Aggregate(rows, AggregateSpec{
		GroupBy: []Dimension{DimClient, DimDay},
		Predicate: func(t *domain.Transaction) bool {
			return t.Channel == "CAJEROS AUTOMATICOS" && t.Direction == domain.DirectionOut
		},
		RankBy: RankByCount,
	})

	table := NewTable(DetectorATMRuns, "Cliente", "Fecha", "Num Retiros", "Monto Total")
	for _, g := range groups {
		if g.Count >= minOps {
			table.Append(displayID(g.Keys[0]), g.Keys[1], g.Count, round2(g.Amount))
		}
	}
	return table
}

// OperatorPreference ranks counter operators by how many distinct
// investigated clients they served, a collusion signal when one operator
// concentrates the case's clients.
func OperatorPreference(rows []*domain.Transaction, topN int) *Table {
	groups := Aggregate(rows, AggregateSpec{
		GroupBy: []Dimension{DimOperator},
		Predicate: func(t *domain.Transaction) bool {
			return t.Channel == "VENTANILLA" && t.Operator != ""
		},
		RankBy:          RankByClients,
		TopN:            topN,
		DistinctClients: true,
	})

	table := NewTable(DetectorOperatorPref, "Operador", "Clientes Únicos", "Total Operaciones")
	for _, g := range groups {
		table.Append(g.Keys[0], g.DistinctClients, g.Count)
	}
	return table
}

// CollusionMatrix pairs clients with the operators handling their cash
// operations: a ranked pair list plus a client-by-operator count pivot.
func CollusionMatrix(rows []*domain.Transaction, topN int) (*Table, *Table) {
	cashRows := filterRows(rows, func(t *domain.Transaction) bool {
		return t.IsCashOp() && t.Operator != ""
	})

	groups := Aggregate(cashRows, AggregateSpec{
		GroupBy: []Dimension{DimOperator, DimClient},
		RankBy:  RankByCount,
		TopN:    topN,
	})
	pairs := NewTable(DetectorCollusion, "Operador", "Cliente", "Operaciones", "Monto Total")
	for _, g := range groups {
		pairs.Append(g.Keys[0], displayID(g.Keys[1]), g.Count, round2(g.Amount))
	}

	pivot := Pivot(DetectorCollusion, cashRows, DimClient, DimOperator, PivotCount)
	return pairs, pivot
}

// BrandBehavior breaks volume down by investigation mark and operation
// group.
func BrandBehavior(rows []*domain.Transaction) *Table {
	groups := Aggregate(rows, AggregateSpec{
		GroupBy: []Dimension{DimBrand, DimOpGroup},
	})

	table := NewTable(DetectorBrandBehavior, "Tipo Marca", "Grupo", "Monto Total", "Cantidad Operaciones")
	for _, g := range groups {
		table.Append(g.Keys[0], g.Keys[1], round2(g.Amount), g.Count)
	}
	return table
}

// CrimeCurrency breaks volume down by tagged crime type and currency.
func CrimeCurrency(rows []*domain.Transaction) *Table {
	groups := Aggregate(rows, AggregateSpec{
		GroupBy: []Dimension{DimCrime, DimCurrency},
	})

	table := NewTable(DetectorCrimeCurrency, "Delito", "Moneda", "Monto Total", "Cantidad Operaciones")
	for _, g := range groups {
		table.Append(g.Keys[0], g.Keys[1], round2(g.Amount), g.Count)
	}
	return table
}

// GeoProfile aggregates cash movement per (client, branch, declared
// activity) and marks rows whose branch matches a risk-zone keyword,
// surfacing clients operating far from their declared profile.
func GeoProfile(rows []*domain.Transaction, hotspots []string) *Table {
	groups := Aggregate(rows, AggregateSpec{
		GroupBy:   []Dimension{DimClient, DimBranch, DimActivity},
		Predicate: isDepositWithdraw,
	})

	table := NewTable(DetectorGeoProfile,
		"Cliente", "Agencia", "Actividad", "Monto Total", "Num Ops", "Zona Alerta")
	for _, g := range groups {
		flagged := false
		branch := strings.ToUpper(g.Keys[1])
		for _, h := range hotspots {
			if h != "" && strings.Contains(branch, strings.ToUpper(h)) {
				flagged = true
				break
			}
		}
		table.Append(displayID(g.Keys[0]), g.Keys[1], g.Keys[2], round2(g.Amount), g.Count, flagged)
	}
	return table
}

// KeywordScreen flags outflows of clients whose declared economic activity
// matches any of the activity patterns and whose normalized memo contains
// any of the keywords (e.g. heavy-machinery vendors under a transport
// declaration). Returns the per-activity summary and the matched rows.
func KeywordScreen(rows []*domain.Transaction, activityPatterns, keywords []string) (*Table, []*domain.Transaction) {
	matches := filterRows(rows, func(t *domain.Transaction) bool {
		if t.Direction != domain.DirectionOut {
			return false
		}
		activity := strings.ToUpper(t.EconomicActivity)
		matched := false
		for _, p := range activityPatterns {
			if p != "" && strings.Contains(activity, strings.ToUpper(p)) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
		for _, kw := range keywords {
			if kw != "" && strings.Contains(t.NormalizedMemo, strings.ToUpper(kw)) {
				return true
			}
		}
		return false
	})

	groups := Aggregate(matches, AggregateSpec{
		GroupBy:         []Dimension{DimActivity},
		DistinctClients: true,
	})

	table := NewTable(DetectorKeywordScreen, "Actividad Económica", "Monto Total", "Clientes Únicos")
	for _, g := range groups {
		table.Append(g.Keys[0], round2(g.Amount), g.DistinctClients)
	}
	return table, matches
}

// Pivot cell aggregation modes.
const (
	PivotSum   = "sum"
	PivotCount = "count"
)

// Pivot builds a crosstab of rowDim by colDim. Row and column headers are
// sorted lexicographically; empty cells are zero.
func Pivot(name string, rows []*domain.Transaction, rowDim, colDim Dimension, mode string) *Table {
	type cellKey struct{ row, col string }
	sums := make(map[cellKey]float64)
	counts := make(map[cellKey]int)
	rowSet := make(map[string]struct{})
	colSet := make(map[string]struct{})

	for _, tx := range rows {
		k := cellKey{rowDim.Value(tx), colDim.Value(tx)}
		sums[k] += tx.Amount
		counts[k]++
		rowSet[k.row] = struct{}{}
		colSet[k.col] = struct{}{}
	}

	rowKeys := sortedKeys(rowSet)
	colKeys := sortedKeys(colSet)

	columns := append([]string{rowDim.Label}, colKeys...)
	table := NewTable(name, columns...)
	for _, rk := range rowKeys {
		row := make([]any, 0, len(colKeys)+1)
		row = append(row, rk)
		for _, ck := range colKeys {
			if mode == PivotCount {
				row = append(row, counts[cellKey{rk, ck}])
			} else {
				row = append(row, round2(sums[cellKey{rk, ck}]))
			}
		}
		table.Rows = append(table.Rows, row)
	}
	return table
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func filterRows(rows []*domain.Transaction, pred func(*domain.Transaction) bool) []*domain.Transaction {
	out := make([]*domain.Transaction, 0, len(rows))
	for _, tx := range rows {
		if pred(tx) {
			out = append(out, tx)
		}
	}
	return out
}
