// Package postgres implementa el puerto store.Store sobre PostgreSQL:
// documentos JSONB por colección y suscripciones en vivo vía LISTEN/NOTIFY
// (cada escritura notifica el canal "documents" con la colección afectada;
// el listener re-consulta y re-emite el conjunto completo a las
// suscripciones de esa colección, preservando el orden de emisión).
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jhoicas/credimarket-api/internal/domain"
	"github.com/jhoicas/credimarket-api/internal/domain/store"
	"github.com/jhoicas/credimarket-api/pkg/logger"
)

const notifyChannel = "documents"

// DocStore adaptador Postgres del document-store.
type DocStore struct {
	pool *pgxpool.Pool
	log  *logger.Logger

	mu     sync.Mutex
	subs   map[int64]*subscription
	nextID int64

	listenCancel context.CancelFunc
}

// NewDocStore construye el adaptador, asegura el esquema y arranca el
// listener de notificaciones.
func NewDocStore(ctx context.Context, pool *pgxpool.Pool, log *logger.Logger) (*DocStore, error) {
	s := &DocStore{pool: pool, log: log, subs: make(map[int64]*subscription)}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	lctx, cancel := context.WithCancel(context.Background())
	s.listenCancel = cancel
	go s.listen(lctx)
	return s, nil
}

func (s *DocStore) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS documents (
			collection TEXT        NOT NULL,
			id         TEXT        NOT NULL,
			data       JSONB       NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (collection, id)
		);
		CREATE TABLE IF NOT EXISTS repayment_receipts (
			transaction_id TEXT        PRIMARY KEY,
			loan_id        TEXT        NOT NULL,
			amount         NUMERIC     NOT NULL,
			repaid         NUMERIC     NOT NULL,
			total_owed     NUMERIC     NOT NULL,
			status         TEXT        NOT NULL,
			issued_at      TIMESTAMPTZ NOT NULL
		);`)
	if err != nil {
		return fmt.Errorf("postgres: crear esquema: %w", err)
	}
	return nil
}

// Close cancela el listener y todas las suscripciones.
func (s *DocStore) Close() {
	s.listenCancel()
	s.mu.Lock()
	subs := make([]*subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()
	for _, sub := range subs {
		sub.Cancel()
	}
}

// Collection handle de una colección.
func (s *DocStore) Collection(path string) store.Collection {
	return &collection{store: s, path: path}
}

// BatchUpdate aplica todas las actualizaciones parciales en una sola
// transacción: el todo-o-nada del mark-read por lote sale directo del
// commit/rollback.
func (s *DocStore) BatchUpdate(ctx context.Context, path string, updates []store.Update) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, u := range updates {
		fields := cloneFields(u.Fields)
		store.ResolveTimestamps(fields, time.Now())
		raw, err := json.Marshal(fields)
		if err != nil {
			return fmt.Errorf("codificar campos de %s: %w", u.ID, err)
		}
		tag, err := tx.Exec(ctx,
			`UPDATE documents SET data = data || $3::jsonb, updated_at = now()
			 WHERE collection = $1 AND id = $2`,
			path, u.ID, raw)
		if err != nil {
			return fmt.Errorf("batch update %s: %w", u.ID, err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrNotFound
		}
	}
	if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, path); err != nil {
		return fmt.Errorf("notificar batch: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// listen mantiene una conexión dedicada en LISTEN y reparte los despertares
// a las suscripciones de la colección notificada.
func (s *DocStore) listen(ctx context.Context) {
	for ctx.Err() == nil {
		if err := s.listenOnce(ctx); err != nil && ctx.Err() == nil {
			s.log.Error().Err(err).Msg("listener de documentos caído; reintentando")
			select {
			case <-time.After(2 * time.Second):
			case <-ctx.Done():
			}
		}
	}
}

func (s *DocStore) listenOnce(ctx context.Context) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `LISTEN `+notifyChannel); err != nil {
		return err
	}
	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		s.wake(n.Payload)
	}
}

// wake re-consulta y encola un snapshot fresco en cada suscripción de la
// colección.
func (s *DocStore) wake(path string) {
	s.mu.Lock()
	subs := make([]*subscription, 0)
	for _, sub := range s.subs {
		if sub.path == path {
			subs = append(subs, sub)
		}
	}
	s.mu.Unlock()
	for _, sub := range subs {
		sub.refresh()
	}
}

// ── Collection ────────────────────────────────────────────────────────────────

type collection struct {
	store *DocStore
	path  string
}

func (c *collection) Get(ctx context.Context, id string) (store.Document, error) {
	var raw []byte
	err := c.store.pool.QueryRow(ctx,
		`SELECT data FROM documents WHERE collection = $1 AND id = $2`,
		c.path, id).Scan(&raw)
	if err != nil {
		if isNoRows(err) {
			return store.Document{}, domain.ErrNotFound
		}
		return store.Document{}, fmt.Errorf("get %s/%s: %w", c.path, id, err)
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return store.Document{}, fmt.Errorf("decodificar %s/%s: %w", c.path, id, err)
	}
	return store.Document{ID: id, Data: data}, nil
}

func (c *collection) Add(ctx context.Context, data map[string]any) (string, error) {
	id := uuid.New().String()
	if err := c.Set(ctx, id, data); err != nil {
		return "", err
	}
	return id, nil
}

func (c *collection) Set(ctx context.Context, id string, data map[string]any) error {
	fields := cloneFields(data)
	store.ResolveTimestamps(fields, time.Now())
	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("codificar %s/%s: %w", c.path, id, err)
	}
	_, err = c.store.pool.Exec(ctx,
		`INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3)
		 ON CONFLICT (collection, id)
		 DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
		c.path, id, raw)
	if err != nil {
		return fmt.Errorf("set %s/%s: %w", c.path, id, err)
	}
	return c.notify(ctx)
}

func (c *collection) Update(ctx context.Context, id string, fieldsIn map[string]any) error {
	fields := cloneFields(fieldsIn)
	store.ResolveTimestamps(fields, time.Now())
	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("codificar %s/%s: %w", c.path, id, err)
	}
	tag, err := c.store.pool.Exec(ctx,
		`UPDATE documents SET data = data || $3::jsonb, updated_at = now()
		 WHERE collection = $1 AND id = $2`,
		c.path, id, raw)
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", c.path, id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return c.notify(ctx)
}

func (c *collection) Delete(ctx context.Context, id string) error {
	_, err := c.store.pool.Exec(ctx,
		`DELETE FROM documents WHERE collection = $1 AND id = $2`, c.path, id)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", c.path, id, err)
	}
	return c.notify(ctx)
}

func (c *collection) Documents(ctx context.Context, q store.Query) ([]store.Document, error) {
	rows, err := c.store.pool.Query(ctx,
		`SELECT id, data FROM documents WHERE collection = $1 ORDER BY id`, c.path)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", c.path, err)
	}
	defer rows.Close()

	var docs []store.Document
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan %s: %w", c.path, err)
		}
		var data map[string]any
		if err := json.Unmarshal(raw, &data); err != nil {
			return nil, fmt.Errorf("decodificar %s/%s: %w", c.path, id, err)
		}
		doc := store.Document{ID: id, Data: data}
		// Los filtros de igualdad se evalúan con la misma semántica que el
		// resto de adaptadores; el volumen por colección no amerita empujar
		// los filtros a SQL.
		if q.Matches(doc) {
			docs = append(docs, doc)
		}
	}
	return docs, rows.Err()
}

func (c *collection) Subscribe(ctx context.Context, q store.Query) (store.Subscription, error) {
	first, err := c.Documents(ctx, q)
	if err != nil {
		return nil, err
	}

	c.store.mu.Lock()
	c.store.nextID++
	sub := &subscription{
		id:     c.store.nextID,
		path:   c.path,
		query:  q,
		coll:   c,
		ch:     make(chan []store.Document),
		wake:   make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
	sub.queue = append(sub.queue, first)
	c.store.subs[sub.id] = sub
	c.store.mu.Unlock()

	go sub.dispatch()
	go func() {
		select {
		case <-ctx.Done():
			sub.Cancel()
		case <-sub.closed:
		}
	}()
	return sub, nil
}

func (c *collection) notify(ctx context.Context) error {
	if _, err := c.store.pool.Exec(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, c.path); err != nil {
		return fmt.Errorf("notificar %s: %w", c.path, err)
	}
	return nil
}

func cloneFields(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
