package domain

import "github.com/shopspring/decimal"

func init() {
	// Clients read amounts as JSON numbers, not strings.
	decimal.MarshalJSONWithoutQuotes = true
}

// MoneyScale is the number of fractional digits kept for every amount.
const MoneyScale = 2

func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyScale)
}

// HasMoneyScale reports whether d carries no digits beyond MoneyScale.
// Trailing zeros such as 100.500 are fine.
func HasMoneyScale(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(MoneyScale))
}
