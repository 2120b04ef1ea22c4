package entity

import "time"

// Audiencias de notificación: la vista del prestatario o la del aliado.
const (
	AudienceUser    = "user"
	AudiencePartner = "partner"
)

// Categorías usadas por los eventos de ciclo de vida.
const (
	CategoryApplication = "application"
	CategoryRepayment   = "repayment"
)

// Notification registro dirigido a un rol + id. Read es monótono
// false → true (solo lo cambia el mark-read por lote).
type Notification struct {
	ID        string    `json:"-"`
	For       string    `json:"for"` // "user" | "partner"
	UserID    string    `json:"userId"`
	Category  string    `json:"category"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Read      bool      `json:"read"`
}
