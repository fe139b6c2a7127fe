// Package rowstore keeps the ordered per-instrument display rows of one view
// and merges price updates into them.
package rowstore

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/SunYerim/StockOfGalaxy/pkg/models"
)

// Seed builds one row per instrument with every volatile field null.
func Seed(instruments []models.Instrument) []models.DisplayRow {
	rows := make([]models.DisplayRow, len(instruments))
	for i, inst := range instruments {
		rows[i] = models.DisplayRow{Instrument: inst}
	}
	return rows
}

// Reconcile merges msg into rows and returns the result. rows is never
// modified. When no row carries msg.Code the input slice itself is returned
// with ok == false.
func Reconcile(rows []models.DisplayRow, msg models.PriceMessage) ([]models.DisplayRow, bool) {
	i := indexOf(rows, msg.Code)
	if i < 0 {
		return rows, false
	}

	out := make([]models.DisplayRow, len(rows))
	copy(out, rows)
	out[i] = applyTo(rows[i], msg)
	return out, true
}

func indexOf(rows []models.DisplayRow, code string) int {
	for i := range rows {
		if rows[i].Code == code {
			return i
		}
	}
	return -1
}

// applyTo replaces the volatile fields; identity is kept from the row.
func applyTo(row models.DisplayRow, msg models.PriceMessage) models.DisplayRow {
	row.CurrentPrice = decimal.NewNullDecimal(msg.CurrentPrice)
	row.ChangeAmount = decimal.NewNullDecimal(msg.ChangeAmount)
	row.ChangeRate = decimal.NewNullDecimal(msg.ChangeRate)
	row.Sign = msg.Sign
	row.UpdatedAt = time.Time{}
	if msg.Timestamp != 0 {
		row.UpdatedAt = time.UnixMicro(msg.Timestamp).UTC()
	}
	return row
}
