// Package money formatea montos para mensajes de notificación y recibos.
package money

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.LatinAmericanSpanish)

// Format devuelve el monto con separadores de miles y dos decimales,
// precedido de "$" ("$10.500,00").
func Format(amount decimal.Decimal) string {
	f, _ := amount.Round(2).Float64()
	return printer.Sprintf("$%.2f", f)
}
