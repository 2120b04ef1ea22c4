// Package pdf genera la constancia gráfica de un abono (recibo) con Maroto.
//
// Layout A5 apaisado:
//
//	┌──────────────────────────────────────────────┐
//	│  CrediMarket — Recibo de abono               │
//	│  ──────────────────────────────────────────  │
//	│  Crédito / Prestatario / Fecha               │
//	│  Monto abonado │ Acumulado │ Total adeudado  │
//	│  Estado resultante + referencia de txn       │
//	└──────────────────────────────────────────────┘
package pdf

import (
	"context"
	"fmt"

	maroto "github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/row"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/consts/pagesize"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"

	"github.com/jhoicas/credimarket-api/internal/application/loans"
	"github.com/jhoicas/credimarket-api/internal/domain/entity"
	"github.com/jhoicas/credimarket-api/pkg/money"
)

var (
	colorPrimary = &props.Color{Red: 0, Green: 96, Blue: 76}
	colorGray    = &props.Color{Red: 100, Green: 100, Blue: 100}
)

// ReceiptGenerator genera recibos de abono en PDF usando Maroto v2.
type ReceiptGenerator struct{}

// NewReceiptGenerator construye el generador.
func NewReceiptGenerator() *ReceiptGenerator { return &ReceiptGenerator{} }

// GenerateReceiptPDF genera el PDF del recibo y devuelve sus bytes.
func (g *ReceiptGenerator) GenerateReceiptPDF(_ context.Context, receipt loans.Receipt, item *entity.LoanActivityItem) ([]byte, error) {
	cfg := config.NewBuilder().
		WithPageSize(pagesize.A5).
		WithLeftMargin(10).WithRightMargin(10).
		WithTopMargin(10).WithBottomMargin(10).
		WithDefaultFont(&props.Font{Family: "helvetica", Size: 9}).
		WithTitle("Recibo de abono", true).
		Build()

	m := maroto.New(cfg)

	m.AddRows(row.New(12).Add(
		col.New(8).Add(
			text.New("CrediMarket — Recibo de abono", props.Text{
				Style: fontstyle.Bold, Size: 13, Color: colorPrimary, Top: 1,
			}),
		),
		col.New(4).Add(
			text.New(receipt.IssuedAt.Format("02/01/2006 15:04"), props.Text{
				Size: 9, Top: 3, Align: align.Right, Color: colorGray,
			}),
		),
	))
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.5}))

	m.AddRows(row.New(8).Add(
		col.New(6).Add(text.New("Crédito: "+receipt.LoanID, props.Text{Size: 9, Top: 2})),
		col.New(6).Add(text.New("Prestatario: "+item.Borrower.DisplayName, props.Text{Size: 9, Top: 2})),
	))

	m.AddRows(row.New(14).Add(
		amountCol("Monto abonado", money.Format(receipt.Amount)),
		amountCol("Acumulado", money.Format(receipt.Repaid)),
		amountCol("Total adeudado", money.Format(receipt.TotalOwed)),
	))

	estado := "Activo"
	if receipt.Status == entity.LoanPaidOff {
		estado = "Saldado"
	}
	m.AddRows(line.NewRow(1, props.Line{Color: colorGray, Thickness: 0.3}))
	m.AddRows(row.New(10).Add(
		col.New(6).Add(text.New("Estado resultante: "+estado, props.Text{
			Style: fontstyle.Bold, Size: 10, Top: 2,
		})),
		col.New(6).Add(text.New("Ref: "+receipt.TransactionID, props.Text{
			Size: 7, Top: 3, Align: align.Right, Color: colorGray,
		})),
	))

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("pdf: generar recibo: %w", err)
	}
	return doc.GetBytes(), nil
}

func amountCol(label, value string) core.Col {
	return col.New(4).Add(
		text.New(label, props.Text{Size: 8, Color: colorGray, Top: 1}),
		text.New(value, props.Text{Style: fontstyle.Bold, Size: 11, Top: 6}),
	)
}
