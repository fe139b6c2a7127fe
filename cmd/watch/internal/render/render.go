// Package render draws a board as a terminal table. All number formatting
// for display lives here; rows carry raw decimals.
package render

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"github.com/SunYerim/StockOfGalaxy/pkg/models"
)

const placeholder = "-"

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	upStyle     = cellStyle.Foreground(lipgloss.Color("9"))  // red for gains
	downStyle   = cellStyle.Foreground(lipgloss.Color("12")) // blue for losses
)

var headers = []string{"Name", "Code", "Price", "Change", "Rate"}

// Table renders rows in the order given.
func Table(title string, rows []models.DisplayRow) string {
	cells := make([][]string, len(rows))
	for i, r := range rows {
		cells[i] = []string{
			r.Name,
			r.Code,
			Price(r.CurrentPrice),
			Change(r.ChangeAmount),
			Rate(r.ChangeRate),
		}
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range cells {
		for i, c := range row {
			if w := lipgloss.Width(c); w > widths[i] {
				widths[i] = w
			}
		}
	}
	for i := range widths {
		widths[i] += 2
	}

	var sb strings.Builder
	if title != "" {
		sb.WriteString(titleStyle.Render(title))
		sb.WriteString("\n")
	}

	for i, h := range headers {
		sb.WriteString(headerStyle.Width(widths[i]).Render(h))
	}
	sb.WriteString("\n")

	total := 0
	for _, w := range widths {
		total += w
	}
	sb.WriteString(mutedStyle.Render(strings.Repeat("─", total)))
	sb.WriteString("\n")

	for ri, row := range cells {
		style := directionStyle(rows[ri])
		for i, c := range row {
			s := cellStyle
			// numeric columns are colored by direction
			if i >= 2 {
				s = style.Align(lipgloss.Right)
			}
			sb.WriteString(s.Width(widths[i]).Render(c))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func directionStyle(r models.DisplayRow) lipgloss.Style {
	if !r.ChangeAmount.Valid {
		return cellStyle
	}
	switch r.ChangeAmount.Decimal.Sign() {
	case 1:
		return upStyle
	case -1:
		return downStyle
	default:
		return cellStyle
	}
}

// Price formats a won amount as "70,100원".
func Price(d decimal.NullDecimal) string {
	if !d.Valid {
		return placeholder
	}
	return group(d.Decimal) + "원"
}

// Change formats a signed won amount as "+300원".
func Change(d decimal.NullDecimal) string {
	if !d.Valid {
		return placeholder
	}
	s := group(d.Decimal) + "원"
	if d.Decimal.IsPositive() {
		s = "+" + s
	}
	return s
}

// Rate formats a percent as "+0.43%".
func Rate(d decimal.NullDecimal) string {
	if !d.Valid {
		return placeholder
	}
	s := d.Decimal.StringFixed(2) + "%"
	if d.Decimal.IsPositive() {
		s = "+" + s
	}
	return s
}

// group inserts thousands separators into the integer part.
func group(d decimal.Decimal) string {
	s := d.String()
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	intPart, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, frac = s[:i], s[i:]
	}

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	for i, c := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	b.WriteString(frac)
	return b.String()
}
