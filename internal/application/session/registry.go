package session

import (
	"context"
	"sync"

	"github.com/jhoicas/credimarket-api/pkg/logger"
)

// Registry mantiene la sesión viva de cada principal y reacciona al flujo de
// cambios de autenticación: cada cambio cierra la sesión anterior del
// principal antes de abrir la nueva, de modo que ninguna suscripción
// sobrevive a un cambio de rol.
type Registry struct {
	opener *Opener
	log    *logger.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry construye el registry.
func NewRegistry(opener *Opener, log *logger.Logger) *Registry {
	return &Registry{opener: opener, log: log, sessions: make(map[string]*Session)}
}

// Get devuelve la sesión abierta del principal, o nil.
func (r *Registry) Get(principalID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[principalID]
}

// Open abre (o reabre) la sesión del principal. La sesión anterior, si
// existe, se cierra primero: el rol se re-evalúa en cada cambio de estado de
// autenticación.
func (r *Registry) Open(ctx context.Context, principalID string) (*Session, error) {
	r.mu.Lock()
	if old, ok := r.sessions[principalID]; ok {
		delete(r.sessions, principalID)
		r.mu.Unlock()
		old.Close()
		r.mu.Lock()
	}
	r.mu.Unlock()

	s, err := r.opener.Open(ctx, principalID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.sessions[principalID] = s
	r.mu.Unlock()
	return s, nil
}

// Close cierra y retira la sesión del principal, si existe.
func (r *Registry) Close(principalID string) {
	r.mu.Lock()
	s, ok := r.sessions[principalID]
	delete(r.sessions, principalID)
	r.mu.Unlock()
	if ok {
		s.Close()
	}
}

// CloseAll teardown al apagar el servicio.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	all := make([]*Session, 0, len(r.sessions))
	for id, s := range r.sessions {
		all = append(all, s)
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	for _, s := range all {
		s.Close()
	}
}
