// Package detect implements the pattern detectors that run against a
// case-scoped transaction set. Every detector is a pure function over an
// in-memory row slice: it never touches storage and running it twice over
// the same input yields the same findings.
package detect

import (
	"math"
)

// Detector names, used for report references and API routing.
const (
	DetectorTopDimension    = "top_dimension"
	DetectorKeywordScreen   = "keyword_screen"
	DetectorSegmentVolume   = "segment_volume"
	DetectorCashRatio       = "cash_ratio"
	DetectorBranchCash      = "branch_cash"
	DetectorDigitalSmurfing = "digital_smurfing"
	DetectorATMRuns         = "atm_runs"
	DetectorOperatorPref    = "operator_preference"
	DetectorSharedVendors   = "shared_vendors"
	DetectorLifetime        = "account_lifetime"
	DetectorPassThrough     = "pass_through"
	DetectorBrandBehavior   = "brand_behavior"
	DetectorCrimeCurrency   = "crime_currency"
	DetectorMirrorMatch     = "mirror_match"
	DetectorBridge          = "bridge_accounts"
	DetectorCollusion       = "collusion_matrix"
	DetectorBurst           = "temporal_burst"
	DetectorGeoProfile      = "geo_profile"
	DetectorTextMining      = "text_mining"
)

var detectorNames = map[string]struct{}{
	DetectorTopDimension:    {},
	DetectorKeywordScreen:   {},
	DetectorSegmentVolume:   {},
	DetectorCashRatio:       {},
	DetectorBranchCash:      {},
	DetectorDigitalSmurfing: {},
	DetectorATMRuns:         {},
	DetectorOperatorPref:    {},
	DetectorSharedVendors:   {},
	DetectorLifetime:        {},
	DetectorPassThrough:     {},
	DetectorBrandBehavior:   {},
	DetectorCrimeCurrency:   {},
	DetectorMirrorMatch:     {},
	DetectorBridge:          {},
	DetectorCollusion:       {},
	DetectorBurst:           {},
	DetectorGeoProfile:      {},
	DetectorTextMining:      {},
}

// Known reports whether name identifies a detector.
func Known(name string) bool {
	_, ok := detectorNames[name]
	return ok
}

// Table is a detector's tabular output: one row per flagged entity, ready
// for on-screen display, spreadsheet export or report inclusion.
type Table struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`

	// Dropped counts rows excluded from this computation for data-quality
	// reasons (unparsable timestamps, close date before open date).
	Dropped int `json:"dropped,omitempty"`
}

// NewTable creates an empty table with the given detector name and columns.
func NewTable(name string, columns ...string) *Table {
	return &Table{Name: name, Columns: columns}
}

// Append adds one row. The caller is responsible for matching the column
// arity; the table does not validate it.
func (t *Table) Append(row ...any) {
	t.Rows = append(t.Rows, row)
}

// Len returns the row count.
func (t *Table) Len() int {
	return len(t.Rows)
}

// displayID truncates a pseudonymized client identifier for rendering.
// Full identifiers stay internal; tables and graphs show the short form.
func displayID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// round2 rounds to two decimals for percentage and amount display cells.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
