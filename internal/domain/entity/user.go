package entity

import "time"

// User representa la identidad de un prestatario. El documento vive en la
// colección `users` del store remoto; los tags json definen los nombres de
// campo del documento.
type User struct {
	ID           string    `json:"-"`
	DisplayName  string    `json:"displayName"`
	AvatarURL    string    `json:"avatarUrl,omitempty"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"passwordHash,omitempty"` // bcrypt hash, nunca plano después de persistir
	CreatedAt    time.Time `json:"createdAt"`
}

// BorrowerSnapshot copia desnormalizada de los campos de display del
// prestatario que viaja dentro de Application y LoanActivityItem.
type BorrowerSnapshot struct {
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}
