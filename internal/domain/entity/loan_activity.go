package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Estados de un crédito activo. Delinquent lo asigna un proceso externo;
// el motor de pagos solo promueve Active → PaidOff.
const (
	LoanActive     = "active"
	LoanPaidOff    = "paid_off"
	LoanDelinquent = "delinquent"
)

// LoanActivityID deriva el id del LoanActivityItem a partir del id de la
// solicitud aprobada. La clave determinista hace que un reintento de
// aprobación sobrescriba en lugar de duplicar: existe exactamente un item
// por solicitud aprobada.
func LoanActivityID(applicationID string) string {
	return "loan-" + applicationID
}

// LoanActivityItem registro desnormalizado de un crédito otorgado. Lo crea
// la máquina de ciclo de vida al aprobar; solo lo muta el motor de pagos.
type LoanActivityItem struct {
	ID              string           `json:"-"`
	UserID          string           `json:"userId"`
	Borrower        BorrowerSnapshot `json:"borrower"`
	PartnerID       string           `json:"partnerId"`
	Principal       decimal.Decimal  `json:"principal"`
	Repaid          decimal.Decimal  `json:"repaid"`
	InterestAccrued decimal.Decimal  `json:"interestAccrued"`
	Status          string           `json:"status"`
	CreatedAt       time.Time        `json:"createdAt"`
}
