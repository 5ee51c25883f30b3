package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidFilter indicates contradictory or unrecognized filter predicates.
var ErrInvalidFilter = errors.New("invalid filter")

// Filter narrows a case's transaction set before any detector runs.
// Predicates are conjunctive and additive: a zero value or FilterAny leaves
// that dimension unconstrained. Bounds are inclusive on both ends.
type Filter struct {
	Currency     string    `json:"currency,omitempty"`     // FilterAny, CurrencyLocal or CurrencyForeign
	DocumentType string    `json:"documentType,omitempty"` // FilterAny or a concrete type
	Segments     []string  `json:"segments,omitempty"`     // empty = all segments
	AmountMin    *float64  `json:"amountMin,omitempty"`
	AmountMax    *float64  `json:"amountMax,omitempty"`
	DateMin      time.Time `json:"dateMin,omitempty"`
	DateMax      time.Time `json:"dateMax,omitempty"`
}

// Validate rejects contradictory bounds before any query is issued.
func (f *Filter) Validate() error {
	if f.AmountMin != nil && f.AmountMax != nil && *f.AmountMin > *f.AmountMax {
		return fmt.Errorf("%w: amountMin %.2f exceeds amountMax %.2f", ErrInvalidFilter, *f.AmountMin, *f.AmountMax)
	}
	if !f.DateMin.IsZero() && !f.DateMax.IsZero() && f.DateMin.After(f.DateMax) {
		return fmt.Errorf("%w: dateMin %s after dateMax %s", ErrInvalidFilter,
			f.DateMin.Format("2006-01-02"), f.DateMax.Format("2006-01-02"))
	}
	switch f.Currency {
	case "", FilterAny, CurrencyLocal, CurrencyForeign:
	default:
		return fmt.Errorf("%w: unknown currency %q", ErrInvalidFilter, f.Currency)
	}
	return nil
}

// Hash returns a stable digest of the filter, used as a cache key component
// so identical scoping requests within a session hit the cache.
func (f *Filter) Hash() string {
	b, _ := json.Marshal(f)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:8])
}
