// Package notifications emite notificaciones dirigidas por rol y resuelve el
// mark-read por lote.
package notifications

import (
	"context"
	"fmt"

	"github.com/jhoicas/credimarket-api/internal/domain"
	"github.com/jhoicas/credimarket-api/internal/domain/store"
	"github.com/jhoicas/credimarket-api/pkg/logger"
)

// Fanout operaciones sobre la colección de notificaciones.
type Fanout struct {
	store store.Store
	log   *logger.Logger
}

// NewFanout construye el fanout.
func NewFanout(st store.Store, log *logger.Logger) *Fanout {
	return &Fanout{store: st, log: log}
}

// Notify agrega una notificación con read=false y timestamp de servidor.
func (f *Fanout) Notify(ctx context.Context, audience, targetID, category, title, message string) error {
	if targetID == "" {
		return fmt.Errorf("%w: target vacío", domain.ErrValidation)
	}
	if audience != "user" && audience != "partner" {
		return fmt.Errorf("%w: audiencia %q", domain.ErrValidation, audience)
	}
	data := map[string]any{
		"for":       audience,
		"userId":    targetID,
		"category":  category,
		"title":     title,
		"message":   message,
		"timestamp": store.ServerTimestamp,
		"read":      false,
	}
	if _, err := f.store.Collection(store.Notifications).Add(ctx, data); err != nil {
		return fmt.Errorf("agregar notificación: %w", err)
	}
	return nil
}

// MarkAllRead marca como leídas, en un solo batch atómico, todas las no
// leídas que coinciden con `for == audience && userId == selfID`: o todas
// quedan en read=true o el batch falla y ninguna cambia. Una segunda llamada
// seguida no encuentra coincidencias y es un no-op (idempotente tras la
// primera aplicación). Devuelve cuántas marcó.
func (f *Fanout) MarkAllRead(ctx context.Context, audience, selfID string) (int, error) {
	q := store.All().
		Where("for", audience).
		Where("userId", selfID).
		Where("read", false)
	docs, err := f.store.Collection(store.Notifications).Documents(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("consultar no leídas: %w", err)
	}
	if len(docs) == 0 {
		return 0, nil
	}

	updates := make([]store.Update, len(docs))
	for i, d := range docs {
		updates[i] = store.Update{ID: d.ID, Fields: map[string]any{"read": true}}
	}
	if err := f.store.BatchUpdate(ctx, store.Notifications, updates); err != nil {
		return 0, fmt.Errorf("batch mark-read: %w", err)
	}
	f.log.Debug().Int("count", len(updates)).Str("audience", audience).Msg("notificaciones marcadas leídas")
	return len(updates), nil
}
