// Package ledger implementa la aritmética del libro de pagos simulado.
//
// El total adeudado usa interés simple plano sobre el plazo completo:
//
//	totalOwed = principal × (1 + (tasaAnual/100/12) × meses)
//
// No hay capitalización mensual: es una aproximación deliberadamente simple
// para una capa de liquidación simulada, no un instrumento financiero real.
// Toda la aritmética es decimal exacta; nunca float64.
package ledger

import "github.com/shopspring/decimal"

// 100 × 12: divisor único de tasa×plazo para no acumular redondeo
// intermedio (dividir antes de multiplicar produce 10500.000000000004
// en lugar de 10500 exacto con tasa 5% a 12 meses).
var milDoscientos = decimal.NewFromInt(1200)

// TotalOwed calcula el total adeudado para un principal, una tasa anual en
// porcentaje y un plazo en meses. Monótono no decreciente en tasa y plazo.
func TotalOwed(principal decimal.Decimal, annualRatePercent decimal.Decimal, termMonths int) decimal.Decimal {
	interest := annualRatePercent.Mul(decimal.NewFromInt(int64(termMonths))).Div(milDoscientos)
	return principal.Mul(decimal.NewFromInt(1).Add(interest))
}

// Cap aplica un abono sobre lo ya pagado y lo recorta exactamente al total
// adeudado. Devuelve el nuevo acumulado y si con este abono quedó saldado.
func Cap(repaid, amount, totalOwed decimal.Decimal) (newRepaid decimal.Decimal, paidOff bool) {
	newRepaid = repaid.Add(amount)
	if newRepaid.GreaterThanOrEqual(totalOwed) {
		return totalOwed, true
	}
	return newRepaid, false
}

// Progress fracción pagada para display: repaid/totalOwed, 0 si el total es 0
// para no exponer divisiones por cero a la UI.
func Progress(repaid, totalOwed decimal.Decimal) decimal.Decimal {
	if totalOwed.IsZero() {
		return decimal.Zero
	}
	return repaid.Div(totalOwed)
}
