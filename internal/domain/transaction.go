package domain

import (
	"time"
)

// Direction of a money movement relative to the account holder.
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// Closed currency set for the ledger.
const (
	CurrencyLocal   = "PEN"
	CurrencyForeign = "USD"

	// FilterAny disables a categorical filter predicate.
	FilterAny = "any"
)

// Operation groups that count as cash handling for cash-intensity ratios.
var CashOpGroups = []string{"RETIRO", "DEPOSITO", "DISP EFECTIVO"}

// Operation groups that represent account-to-account movement, used by the
// bridge-account detector.
var TransferOpGroups = []string{"TRANSFERENCIA", "TT OTRA CTA", "CHEQUE"}

// Transaction represents one financial movement from a bulk ledger load.
// Rows are created at ingestion time and immutable afterward; they are
// removed only when their entire load is rolled back.
type Transaction struct {
	ID     int64 `json:"id"`
	LoadID int64 `json:"loadId"`

	// Client and account
	ClientID         string `json:"clientId"` // pseudonymized, opaque
	DocumentType     string `json:"documentType"`
	BankingTier      string `json:"bankingTier"`
	Segment          string `json:"segment"`
	EconomicActivity string `json:"economicActivity"`
	AccountID        string `json:"accountId"`
	ProductCode      string `json:"productCode"`

	// Investigation tags carried in the source export
	BrandType string `json:"brandType"`
	CrimeType string `json:"crimeType"`

	// Financial details
	Currency string  `json:"currency"`
	Amount   float64 `json:"amount"`

	// Direction is DirectionIn or DirectionOut.
	Direction string `json:"direction"`

	// Temporal
	AccountOpened time.Time  `json:"accountOpened"`
	AccountClosed *time.Time `json:"accountClosed,omitempty"`
	Date          time.Time  `json:"date"`
	TimeOfDay     string     `json:"timeOfDay"` // HH:MM:SS, may be malformed in source data

	// Free-text memo and its canonical form
	Memo           string `json:"memo"`
	NormalizedMemo string `json:"normalizedMemo"`

	// Operational context
	OpGroup    string `json:"opGroup"`
	Channel    string `json:"channel"`
	BranchCode string `json:"branchCode"`
	Branch     string `json:"branch"`
	Terminal   string `json:"terminal"`
	Operator   string `json:"operator"`

	SequenceNum string `json:"sequenceNum"`
	RegisterNum string `json:"registerNum"`
}

// Timestamp combines the transaction date with its time-of-day field.
// The second return value is false when the time-of-day is malformed
// (e.g. "99:99:99" in source exports); such rows are excluded from
// time-sensitive detectors rather than treated as errors.
func (t *Transaction) Timestamp() (time.Time, bool) {
	tod, err := time.Parse("15:04:05", t.TimeOfDay)
	if err != nil {
		return time.Time{}, false
	}
	return time.Date(
		t.Date.Year(), t.Date.Month(), t.Date.Day(),
		tod.Hour(), tod.Minute(), tod.Second(), 0, time.UTC,
	), true
}

// Day truncates the transaction date to a calendar day.
func (t *Transaction) Day() time.Time {
	return time.Date(t.Date.Year(), t.Date.Month(), t.Date.Day(), 0, 0, 0, 0, time.UTC)
}

// IsCashOp reports whether the row belongs to a cash-type operation group.
func (t *Transaction) IsCashOp() bool {
	for _, g := range CashOpGroups {
		if t.OpGroup == g {
			return true
		}
	}
	return false
}

// IsTransferOp reports whether the row belongs to a transfer/check group.
func (t *Transaction) IsTransferOp() bool {
	for _, g := range TransferOpGroups {
		if t.OpGroup == g {
			return true
		}
	}
	return false
}
