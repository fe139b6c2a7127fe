package generator

import "github.com/shopspring/decimal"

// DefaultPrevClose seeds codes with no known close.
var DefaultPrevClose = decimal.NewFromInt(50000)

// KnownPrevClose holds rough closes for the default catalog so the demo
// board looks plausible.
func KnownPrevClose() map[string]decimal.Decimal {
	return map[string]decimal.Decimal{
		"005930": decimal.NewFromInt(70000),
		"000660": decimal.NewFromInt(182000),
		"373220": decimal.NewFromInt(380000),
		"035420": decimal.NewFromInt(202000),
		"035720": decimal.NewFromInt(43000),
	}
}
