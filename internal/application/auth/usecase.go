// Package auth implementa el colaborador de autenticación: altas, inicio y
// cierre de sesión sobre la colección de usuarios, más el flujo de eventos
// "principal actual cambió" que consume el registro de sesiones.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/jhoicas/credimarket-api/internal/domain"
	"github.com/jhoicas/credimarket-api/internal/domain/entity"
	"github.com/jhoicas/credimarket-api/internal/domain/store"
	"github.com/jhoicas/credimarket-api/pkg/jwt"
)

// JWTConfig configuración para generación de tokens.
type JWTConfig struct {
	Secret     string
	ExpMinutes int
	Issuer     string
}

// PrincipalEvent cambio de estado de autenticación de un principal. SignedOut
// marca un cierre de sesión: el teardown es por principal, nunca global — un
// logout no puede arrastrar las sesiones vivas de otros principales.
type PrincipalEvent struct {
	ID        string
	SignedOut bool
}

// AuthUseCase altas, login y logout. Emite un PrincipalEvent por cada cambio
// de estado de autenticación.
type AuthUseCase struct {
	store  store.Store
	jwtCfg JWTConfig

	mu        sync.Mutex
	listeners []chan PrincipalEvent
}

// NewAuthUseCase construye el caso de uso.
func NewAuthUseCase(st store.Store, jwtCfg JWTConfig) *AuthUseCase {
	return &AuthUseCase{store: st, jwtCfg: jwtCfg}
}

// PrincipalChanges registra un listener del flujo de cambios de principal.
func (uc *AuthUseCase) PrincipalChanges() <-chan PrincipalEvent {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	ch := make(chan PrincipalEvent, 8)
	uc.listeners = append(uc.listeners, ch)
	return ch
}

func (uc *AuthUseCase) emit(ev PrincipalEvent) {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	for _, ch := range uc.listeners {
		select {
		case ch <- ev:
		default: // listener atrasado: el evento de cambio más reciente manda
		}
	}
}

// Register crea una cuenta de prestatario: hashea el password con bcrypt y
// persiste el documento de usuario. ErrEmailAlreadyExists si el email ya
// está registrado.
func (uc *AuthUseCase) Register(ctx context.Context, email, password, displayName string) (string, string, error) {
	if email == "" || password == "" {
		return "", "", fmt.Errorf("%w: email y password son obligatorios", domain.ErrValidation)
	}
	users := uc.store.Collection(store.Users)

	existing, err := users.Documents(ctx, store.Where("email", email))
	if err != nil {
		return "", "", fmt.Errorf("consultar email: %w", err)
	}
	if len(existing) > 0 {
		return "", "", domain.ErrEmailAlreadyExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", "", fmt.Errorf("hashear password: %w", err)
	}

	id := uuid.New().String()
	data := map[string]any{
		"email":        email,
		"passwordHash": string(hash),
		"displayName":  displayName,
		"createdAt":    store.ServerTimestamp,
	}
	if err := users.Set(ctx, id, data); err != nil {
		return "", "", fmt.Errorf("crear usuario: %w", err)
	}

	token, err := uc.issueToken(ctx, id)
	if err != nil {
		return "", "", err
	}
	uc.emit(PrincipalEvent{ID: id})
	return id, token, nil
}

// Login verifica credenciales y emite el cambio de principal.
func (uc *AuthUseCase) Login(ctx context.Context, email, password string) (string, string, error) {
	docs, err := uc.store.Collection(store.Users).Documents(ctx, store.Where("email", email))
	if err != nil {
		return "", "", fmt.Errorf("consultar usuario: %w", err)
	}
	if len(docs) == 0 {
		return "", "", domain.ErrUnauthorized
	}
	var user entity.User
	if err := docs[0].DataTo(&user); err != nil {
		return "", "", fmt.Errorf("decodificar usuario: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return "", "", domain.ErrUnauthorized
	}

	id := docs[0].ID
	token, err := uc.issueToken(ctx, id)
	if err != nil {
		return "", "", err
	}
	uc.emit(PrincipalEvent{ID: id})
	return id, token, nil
}

// Logout emite el cierre de sesión del principal; el registro de sesiones
// cierra esa sesión (y sus suscripciones) al recibirlo.
func (uc *AuthUseCase) Logout(principalID string) {
	if principalID == "" {
		return
	}
	uc.emit(PrincipalEvent{ID: principalID, SignedOut: true})
}

// SetAvatarURL única mutación permitida del documento de usuario.
func (uc *AuthUseCase) SetAvatarURL(ctx context.Context, userID, avatarURL string) error {
	err := uc.store.Collection(store.Users).Update(ctx, userID, map[string]any{"avatarUrl": avatarURL})
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("%w: usuario %s", domain.ErrNotFound, userID)
	}
	return err
}

// issueToken resuelve el rol del principal (partners/<id> existe → partner)
// y firma el JWT con ese rol.
func (uc *AuthUseCase) issueToken(ctx context.Context, principalID string) (string, error) {
	role := "borrower"
	_, err := uc.store.Collection(store.Partners).Get(ctx, principalID)
	switch {
	case err == nil:
		role = "partner"
	case errors.Is(err, domain.ErrNotFound):
	default:
		return "", fmt.Errorf("%w: %v", domain.ErrResolution, err)
	}
	token, err := jwt.Generate(uc.jwtCfg.Secret, principalID, role, uc.jwtCfg.Issuer, uc.jwtCfg.ExpMinutes)
	if err != nil {
		return "", fmt.Errorf("firmar token: %w", err)
	}
	return token, nil
}
