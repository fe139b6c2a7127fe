package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Instrument is a catalog entry. It never changes after the catalog is built.
type Instrument struct {
	Name string `json:"name" yaml:"name"`
	Code string `json:"code" yaml:"code"`
}

// PriceMessage is a single decoded push update for one instrument
type PriceMessage struct {
	Code         string          `json:"code"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	ChangeAmount decimal.Decimal `json:"change_amount"`
	ChangeRate   decimal.Decimal `json:"change_rate"` // percent
	Sign         string          `json:"sign,omitempty"`
	Timestamp    int64           `json:"timestamp,omitempty"` // unix micro
	SeqID        int64           `json:"seq_id,omitempty"`    // monotonic counter per code
}

// DisplayRow is the per-instrument display state. Volatile fields stay null
// until the first matching PriceMessage is applied.
type DisplayRow struct {
	Instrument
	CurrentPrice decimal.NullDecimal `json:"current_price"`
	ChangeAmount decimal.NullDecimal `json:"change_amount"`
	ChangeRate   decimal.NullDecimal `json:"change_rate"`
	Sign         string              `json:"sign,omitempty"`
	UpdatedAt    time.Time           `json:"updated_at,omitempty"`
}

// Updated reports whether the row has received at least one update.
func (r DisplayRow) Updated() bool {
	return r.CurrentPrice.Valid
}

// Equal compares rows by value, treating decimals numerically.
func (r DisplayRow) Equal(o DisplayRow) bool {
	return r.Instrument == o.Instrument &&
		nullEqual(r.CurrentPrice, o.CurrentPrice) &&
		nullEqual(r.ChangeAmount, o.ChangeAmount) &&
		nullEqual(r.ChangeRate, o.ChangeRate) &&
		r.Sign == o.Sign &&
		r.UpdatedAt.Equal(o.UpdatedAt)
}

func nullEqual(a, b decimal.NullDecimal) bool {
	if a.Valid != b.Valid {
		return false
	}
	return !a.Valid || a.Decimal.Equal(b.Decimal)
}
