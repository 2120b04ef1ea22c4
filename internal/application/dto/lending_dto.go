package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// SessionResponse rol resuelto de la sesión.
type SessionResponse struct {
	UserID  string           `json:"userId"`
	Role    string           `json:"role"` // "borrower" | "partner"
	Partner *PartnerResponse `json:"partner,omitempty"`
}

// PartnerResponse aliado del directorio, con productos joineados.
type PartnerResponse struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	LogoURL     string            `json:"logoUrl,omitempty"`
	Description string            `json:"description,omitempty"`
	Website     string            `json:"website,omitempty"`
	Products    []ProductResponse `json:"products"`
}

// ProductResponse producto de crédito.
type ProductResponse struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Rate         string `json:"rate"`
	MaxAmount    int64  `json:"maxAmount"`
	TermMonths   int    `json:"termMonths"`
	Requirements string `json:"requirements,omitempty"`
}

// SubmitApplicationRequest solicitud de crédito del prestatario.
type SubmitApplicationRequest struct {
	PartnerID string          `json:"partnerId"`
	ProductID string          `json:"productId"`
	Amount    decimal.Decimal `json:"amount"`
	Score     int             `json:"score"`
}

// DecideRequest decisión del aliado sobre una solicitud.
type DecideRequest struct {
	Outcome string `json:"outcome"` // "approved" | "denied"
}

// ApplicationResponse solicitud proyectada.
type ApplicationResponse struct {
	ID          string          `json:"id"`
	UserID      string          `json:"userId"`
	DisplayName string          `json:"displayName"`
	AvatarURL   string          `json:"avatarUrl,omitempty"`
	Score       int             `json:"score"`
	ProductName string          `json:"productName"`
	PartnerName string          `json:"partnerName"`
	Amount      decimal.Decimal `json:"amount"`
	Status      string          `json:"status"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// RepayRequest abono a un crédito.
type RepayRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// ReceiptResponse constancia del abono.
type ReceiptResponse struct {
	TransactionID string          `json:"transactionId"`
	LoanID        string          `json:"loanId"`
	Amount        decimal.Decimal `json:"amount"`
	Repaid        decimal.Decimal `json:"repaid"`
	TotalOwed     decimal.Decimal `json:"totalOwed"`
	Status        string          `json:"status"`
	IssuedAt      time.Time       `json:"issuedAt"`
}

// LoanResponse crédito proyectado, con total adeudado y progreso calculados.
type LoanResponse struct {
	ID              string          `json:"id"`
	UserID          string          `json:"userId"`
	DisplayName     string          `json:"displayName"`
	PartnerID       string          `json:"partnerId"`
	Principal       decimal.Decimal `json:"principal"`
	Repaid          decimal.Decimal `json:"repaid"`
	InterestAccrued decimal.Decimal `json:"interestAccrued"`
	TotalOwed       decimal.Decimal `json:"totalOwed"`
	Progress        decimal.Decimal `json:"progress"`
	Status          string          `json:"status"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// NotificationResponse notificación proyectada.
type NotificationResponse struct {
	ID        string    `json:"id"`
	For       string    `json:"for"`
	Category  string    `json:"category"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Read      bool      `json:"read"`
}

// MarkReadResponse resultado del mark-read por lote.
type MarkReadResponse struct {
	Marked int `json:"marked"`
}
