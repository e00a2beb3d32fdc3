package shared

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var moneyPrinter = message.NewPrinter(language.Russian)

// FormatMoney renders an amount the way the POS UI shows it, for use in
// audit notes and operator alerts.
func FormatMoney(amount decimal.Decimal) string {
	f, _ := amount.Float64()
	return moneyPrinter.Sprintf("%v с", number.Decimal(f, number.MaxFractionDigits(2)))
}
