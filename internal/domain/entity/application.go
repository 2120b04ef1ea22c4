package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Estados de una solicitud de crédito. El estado es monótono: Pending es
// inicial, Approved y Denied son terminales y nunca regresan a Pending.
const (
	ApplicationPending  = "pending"
	ApplicationApproved = "approved"
	ApplicationDenied   = "denied"
)

// LoanRef referencia desnormalizada al producto solicitado. PartnerID es el
// campo de enlace por el que el aliado filtra sus solicitudes
// (`loan.partnerId`).
type LoanRef struct {
	ProductID   string `json:"productId"`
	ProductName string `json:"productName"`
	PartnerName string `json:"partnerName"`
	PartnerID   string `json:"partnerId"`
}

// Application solicitud de crédito creada por un prestatario. Solo muta por
// transición de estado (ver lifecycle); el resto de campos son snapshot al
// momento de crearla.
type Application struct {
	ID            string           `json:"-"`
	UserID        string           `json:"userId"`
	Borrower      BorrowerSnapshot `json:"borrower"`
	Score         int              `json:"score"`
	Loan          LoanRef          `json:"loan"`
	Amount        decimal.Decimal  `json:"amount"`
	Status        string           `json:"status"`
	AIExplanation string           `json:"aiExplanation,omitempty"`
	CreatedAt     time.Time        `json:"createdAt"`
}

// Terminal reporta si la solicitud ya fue decidida.
func (a *Application) Terminal() bool {
	return a.Status == ApplicationApproved || a.Status == ApplicationDenied
}
