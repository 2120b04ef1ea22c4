package dto

// RegisterRequest alta de cuenta de prestatario.
type RegisterRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

// LoginRequest inicio de sesión.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse respuesta de register/login.
type AuthResponse struct {
	UserID string `json:"userId"`
	Token  string `json:"token"`
}

// SetAvatarRequest única mutación permitida del documento de usuario.
type SetAvatarRequest struct {
	AvatarURL string `json:"avatarUrl"`
}
