package domain

import "errors"

// Errores de dominio (sin dependencias externas).
var (
	// ErrResolution indica que no se pudo determinar el rol de la sesión.
	// Nunca se degrada silenciosamente a prestatario: bloquea el arranque de proyecciones.
	ErrResolution = errors.New("no se pudo resolver el rol de la sesión")

	// ErrSubscription indica que una suscripción en vivo falló después de conectar.
	// Congela esa proyección; no afecta a las hermanas.
	ErrSubscription = errors.New("la suscripción en vivo falló")

	// ErrNotFound indica que un id referenciado no existe en el store autoritativo.
	ErrNotFound = errors.New("recurso no encontrado")

	// ErrInvalidTransition indica un intento de decidir una solicitud que ya no está pendiente.
	ErrInvalidTransition = errors.New("transición de estado inválida")

	// ErrValidation entrada inválida (monto no positivo, clave malformada, etc.).
	ErrValidation = errors.New("entrada inválida")

	// ErrUnauthorized credenciales inválidas o token ausente.
	ErrUnauthorized = errors.New("no autorizado")

	// ErrEmailAlreadyExists el email ya está registrado.
	ErrEmailAlreadyExists = errors.New("el email ya está registrado")
)
