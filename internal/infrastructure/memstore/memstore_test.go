package memstore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/credimarket-api/internal/domain"
	"github.com/jhoicas/credimarket-api/internal/domain/store"
	"github.com/jhoicas/credimarket-api/internal/infrastructure/memstore"
)

func recv(t *testing.T, ch <-chan []store.Document) []store.Document {
	t.Helper()
	select {
	case snap, ok := <-ch:
		require.True(t, ok, "el canal de la suscripción se cerró antes de tiempo")
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timeout esperando snapshot")
		return nil
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// CRUD básico
// ──────────────────────────────────────────────────────────────────────────────

func TestGet_NoExiste(t *testing.T) {
	s := memstore.New()
	_, err := s.Collection(store.Users).Get(context.Background(), "nadie")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSetGetUpdate(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	users := s.Collection(store.Users)

	require.NoError(t, users.Set(ctx, "u1", map[string]any{"displayName": "Marta", "score": 700}))

	doc, err := users.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Marta", doc.Data["displayName"])

	require.NoError(t, users.Update(ctx, "u1", map[string]any{"score": 750}))
	doc, err = users.Get(ctx, "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 750, doc.Data["score"])
	assert.Equal(t, "Marta", doc.Data["displayName"], "update parcial no debe tocar otros campos")

	err = users.Update(ctx, "fantasma", map[string]any{"score": 1})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDelete_Idempotente(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	users := s.Collection(store.Users)

	require.NoError(t, users.Set(ctx, "u1", map[string]any{"displayName": "Marta"}))
	require.NoError(t, users.Delete(ctx, "u1"))
	require.NoError(t, users.Delete(ctx, "u1"), "borrar un id ausente no es error")
}

func TestServerTimestamp_SeResuelve(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	fixed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return fixed })

	notifs := s.Collection(store.Notifications)
	id, err := notifs.Add(ctx, map[string]any{"title": "hola", "timestamp": store.ServerTimestamp})
	require.NoError(t, err)

	doc, err := notifs.Get(ctx, id)
	require.NoError(t, err)
	ts, ok := doc.Data["timestamp"].(string)
	require.True(t, ok, "el centinela debe quedar como RFC3339, no como struct")
	parsed, err := time.Parse(time.RFC3339Nano, ts)
	require.NoError(t, err)
	assert.True(t, parsed.Equal(fixed) || parsed.After(fixed))
}

// TestServerTimestamp_EstrictamenteCreciente: aunque el reloj no avance, dos
// escrituras consecutivas nunca comparten marca de tiempo.
func TestServerTimestamp_EstrictamenteCreciente(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	fixed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return fixed })

	notifs := s.Collection(store.Notifications)
	require.NoError(t, notifs.Set(ctx, "a", map[string]any{"timestamp": store.ServerTimestamp}))
	require.NoError(t, notifs.Set(ctx, "b", map[string]any{"timestamp": store.ServerTimestamp}))

	da, _ := notifs.Get(ctx, "a")
	db, _ := notifs.Get(ctx, "b")
	ta, _ := time.Parse(time.RFC3339Nano, da.Data["timestamp"].(string))
	tb, _ := time.Parse(time.RFC3339Nano, db.Data["timestamp"].(string))
	assert.True(t, tb.After(ta), "timestamps de servidor deben ser estrictamente crecientes")
}

// ──────────────────────────────────────────────────────────────────────────────
// Consultas
// ──────────────────────────────────────────────────────────────────────────────

func TestDocuments_FiltroAnidado(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	apps := s.Collection(store.Applications)

	require.NoError(t, apps.Set(ctx, "a1", map[string]any{
		"userId": "u1", "loan": map[string]any{"partnerId": "p1"},
	}))
	require.NoError(t, apps.Set(ctx, "a2", map[string]any{
		"userId": "u2", "loan": map[string]any{"partnerId": "p2"},
	}))

	docs, err := apps.Documents(ctx, store.Where("loan.partnerId", "p1"))
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "a1", docs[0].ID)
}

func TestDocuments_FiltroPorID(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	users := s.Collection(store.Users)
	require.NoError(t, users.Set(ctx, "u1", map[string]any{"displayName": "Marta"}))
	require.NoError(t, users.Set(ctx, "u2", map[string]any{"displayName": "Luis"}))

	docs, err := users.Documents(ctx, store.Where(store.FieldID, "u2"))
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "u2", docs[0].ID)
}

// ──────────────────────────────────────────────────────────────────────────────
// Suscripciones en vivo
// ──────────────────────────────────────────────────────────────────────────────

func TestSubscribe_SnapshotInicialYOrden(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	users := s.Collection(store.Users)
	require.NoError(t, users.Set(ctx, "u1", map[string]any{"displayName": "Marta"}))

	sub, err := users.Subscribe(ctx, store.All())
	require.NoError(t, err)
	defer sub.Cancel()

	first := recv(t, sub.Updates())
	require.Len(t, first, 1, "el primer snapshot llega de inmediato")

	require.NoError(t, users.Set(ctx, "u2", map[string]any{"displayName": "Luis"}))
	require.NoError(t, users.Set(ctx, "u3", map[string]any{"displayName": "Nora"}))

	// Cada escritura re-emite el conjunto completo, en orden de escritura.
	second := recv(t, sub.Updates())
	require.Len(t, second, 2)
	third := recv(t, sub.Updates())
	require.Len(t, third, 3)
}

func TestSubscribe_FiltraPorQuery(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	apps := s.Collection(store.Applications)

	sub, err := apps.Subscribe(ctx, store.Where("userId", "u1"))
	require.NoError(t, err)
	defer sub.Cancel()
	require.Empty(t, recv(t, sub.Updates()))

	require.NoError(t, apps.Set(ctx, "a1", map[string]any{"userId": "u1"}))
	require.NoError(t, apps.Set(ctx, "a2", map[string]any{"userId": "u2"}))

	snap := recv(t, sub.Updates())
	require.Len(t, snap, 1)
	assert.Equal(t, "a1", snap[0].ID)

	snap = recv(t, sub.Updates()) // la escritura de a2 también re-emite
	require.Len(t, snap, 1, "a2 no coincide con el filtro")
}

func TestSubscribe_CancelCierraSinError(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	sub, err := s.Collection(store.Users).Subscribe(ctx, store.All())
	require.NoError(t, err)

	recv(t, sub.Updates())
	sub.Cancel()

	for range sub.Updates() {
	}
	assert.NoError(t, sub.Err(), "cancelación limpia: Err() nil")
}

func TestSubscribe_ContextoCanceladoCierra(t *testing.T) {
	s := memstore.New()
	ctx, cancel := context.WithCancel(context.Background())
	sub, err := s.Collection(store.Users).Subscribe(ctx, store.All())
	require.NoError(t, err)

	recv(t, sub.Updates())
	cancel()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-sub.Updates():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("el canal no se cerró tras cancelar el contexto")
		}
	}
}

func TestFailSubscriptions_PropagaElError(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	sub, err := s.Collection(store.LoanActivity).Subscribe(ctx, store.All())
	require.NoError(t, err)

	recv(t, sub.Updates())
	cause := errors.New("stream remoto caído")
	s.FailSubscriptions(store.LoanActivity, cause)

	for range sub.Updates() {
	}
	assert.ErrorIs(t, sub.Err(), cause)
}

// ──────────────────────────────────────────────────────────────────────────────
// BatchUpdate atómico
// ──────────────────────────────────────────────────────────────────────────────

func TestBatchUpdate_TodasONinguna(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	notifs := s.Collection(store.Notifications)
	require.NoError(t, notifs.Set(ctx, "n1", map[string]any{"read": false}))
	require.NoError(t, notifs.Set(ctx, "n2", map[string]any{"read": false}))

	err := s.BatchUpdate(ctx, store.Notifications, []store.Update{
		{ID: "n1", Fields: map[string]any{"read": true}},
		{ID: "fantasma", Fields: map[string]any{"read": true}},
	})
	require.ErrorIs(t, err, domain.ErrNotFound)

	doc, err := notifs.Get(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, false, doc.Data["read"], "un batch fallido no debe aplicar nada")

	require.NoError(t, s.BatchUpdate(ctx, store.Notifications, []store.Update{
		{ID: "n1", Fields: map[string]any{"read": true}},
		{ID: "n2", Fields: map[string]any{"read": true}},
	}))
	doc, _ = notifs.Get(ctx, "n1")
	assert.Equal(t, true, doc.Data["read"])
	doc, _ = notifs.Get(ctx, "n2")
	assert.Equal(t, true, doc.Data["read"])
}

func TestBatchUpdate_EmiteUnSoloSnapshot(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	notifs := s.Collection(store.Notifications)
	require.NoError(t, notifs.Set(ctx, "n1", map[string]any{"read": false}))
	require.NoError(t, notifs.Set(ctx, "n2", map[string]any{"read": false}))

	sub, err := notifs.Subscribe(ctx, store.All())
	require.NoError(t, err)
	defer sub.Cancel()
	recv(t, sub.Updates())

	require.NoError(t, s.BatchUpdate(ctx, store.Notifications, []store.Update{
		{ID: "n1", Fields: map[string]any{"read": true}},
		{ID: "n2", Fields: map[string]any{"read": true}},
	}))

	snap := recv(t, sub.Updates())
	require.Len(t, snap, 2)
	for _, d := range snap {
		assert.Equal(t, true, d.Data["read"], "el snapshot del batch trae ambos cambios juntos")
	}
}

// TestSnapshot_Inmutable: mutar un snapshot recibido no afecta al store.
func TestSnapshot_Inmutable(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	users := s.Collection(store.Users)
	require.NoError(t, users.Set(ctx, "u1", map[string]any{"displayName": "Marta"}))

	doc, err := users.Get(ctx, "u1")
	require.NoError(t, err)
	doc.Data["displayName"] = "hackeado"

	again, err := users.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Marta", again.Data["displayName"])
}
