// Package memstore implementa el puerto store.Store en memoria, con
// suscripciones en vivo y batch atómico. Es el adaptador de referencia:
// respeta las garantías del store remoto (orden por suscripción, timestamps
// de servidor monótonos, sin transacciones multi-documento salvo
// BatchUpdate) y sirve para tests y para el modo dev sin Postgres.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jhoicas/credimarket-api/internal/domain"
	"github.com/jhoicas/credimarket-api/internal/domain/store"
)

// MemStore document-store en memoria.
type MemStore struct {
	mu     sync.Mutex
	colls  map[string]map[string]map[string]any // path -> id -> campos
	subs   map[int64]*subscription
	nextID int64

	// now inyectable en tests; lastTS garantiza timestamps estrictamente
	// crecientes aunque el reloj no avance entre escrituras.
	now    func() time.Time
	lastTS time.Time
}

// New construye un MemStore vacío.
func New() *MemStore {
	return &MemStore{
		colls: make(map[string]map[string]map[string]any),
		subs:  make(map[int64]*subscription),
		now:   time.Now,
	}
}

// SetClock fija el reloj (tests).
func (s *MemStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Collection devuelve el handle de una colección (se crea perezosamente).
func (s *MemStore) Collection(path string) store.Collection {
	return &collection{store: s, path: path}
}

// BatchUpdate aplica todas las actualizaciones o ninguna: primero valida la
// existencia de cada id bajo el lock y solo entonces muta.
func (s *MemStore) BatchUpdate(ctx context.Context, path string, updates []store.Update) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	coll := s.colls[path]
	for _, u := range updates {
		if _, ok := coll[u.ID]; !ok {
			return domain.ErrNotFound
		}
	}
	now := s.serverNow()
	for _, u := range updates {
		applyFields(coll[u.ID], u.Fields, now)
	}
	s.notifyLocked(path)
	return nil
}

// FailSubscriptions hace fallar todas las suscripciones activas de una
// colección con el error dado (hook de tests para simular la caída del
// stream remoto).
func (s *MemStore) FailSubscriptions(path string, err error) {
	// Se recolectan bajo el lock y se fallan después de soltarlo: stop()
	// vuelve a tomar s.mu para quitarse del registro.
	s.mu.Lock()
	var matched []*subscription
	for _, sub := range s.subs {
		if sub.path == path {
			matched = append(matched, sub)
		}
	}
	s.mu.Unlock()
	for _, sub := range matched {
		sub.fail(err)
	}
}

// serverNow marca de tiempo de servidor, estrictamente creciente.
// Requiere s.mu.
func (s *MemStore) serverNow() time.Time {
	now := s.now().UTC()
	if !now.After(s.lastTS) {
		now = s.lastTS.Add(time.Nanosecond)
	}
	s.lastTS = now
	return now
}

// notifyLocked encola un snapshot fresco en cada suscripción de la colección.
// Requiere s.mu: el orden de encolado bajo el lock es el orden de entrega.
func (s *MemStore) notifyLocked(path string) {
	for _, sub := range s.subs {
		if sub.path == path {
			sub.push(s.snapshotLocked(path, sub.query))
		}
	}
}

func (s *MemStore) snapshotLocked(path string, q store.Query) []store.Document {
	coll := s.colls[path]
	ids := make([]string, 0, len(coll))
	for id := range coll {
		ids = append(ids, id)
	}
	// Orden estable por id para que los snapshots sean deterministas.
	sort.Strings(ids)
	docs := make([]store.Document, 0, len(ids))
	for _, id := range ids {
		doc := store.Document{ID: id, Data: deepCopy(coll[id])}
		if q.Matches(doc) {
			docs = append(docs, doc)
		}
	}
	return docs
}

// ── Collection ────────────────────────────────────────────────────────────────

type collection struct {
	store *MemStore
	path  string
}

func (c *collection) Get(ctx context.Context, id string) (store.Document, error) {
	if err := ctx.Err(); err != nil {
		return store.Document{}, err
	}
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	data, ok := c.store.colls[c.path][id]
	if !ok {
		return store.Document{}, domain.ErrNotFound
	}
	return store.Document{ID: id, Data: deepCopy(data)}, nil
}

func (c *collection) Add(ctx context.Context, data map[string]any) (string, error) {
	id := uuid.New().String()
	if err := c.Set(ctx, id, data); err != nil {
		return "", err
	}
	return id, nil
}

func (c *collection) Set(ctx context.Context, id string, data map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	cp := deepCopy(data)
	store.ResolveTimestamps(cp, c.store.serverNow())
	coll := c.store.colls[c.path]
	if coll == nil {
		coll = make(map[string]map[string]any)
		c.store.colls[c.path] = coll
	}
	coll[id] = cp
	c.store.notifyLocked(c.path)
	return nil
}

func (c *collection) Update(ctx context.Context, id string, fields map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	data, ok := c.store.colls[c.path][id]
	if !ok {
		return domain.ErrNotFound
	}
	applyFields(data, fields, c.store.serverNow())
	c.store.notifyLocked(c.path)
	return nil
}

func (c *collection) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	if _, ok := c.store.colls[c.path][id]; !ok {
		return nil
	}
	delete(c.store.colls[c.path], id)
	c.store.notifyLocked(c.path)
	return nil
}

func (c *collection) Documents(ctx context.Context, q store.Query) ([]store.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	return c.store.snapshotLocked(c.path, q), nil
}

func (c *collection) Subscribe(ctx context.Context, q store.Query) (store.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.store.mu.Lock()
	c.store.nextID++
	sub := &subscription{
		id:     c.store.nextID,
		path:   c.path,
		query:  q,
		owner:  c.store,
		ch:     make(chan []store.Document),
		wake:   make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
	c.store.subs[sub.id] = sub
	// Snapshot inicial inmediato, antes de soltar el lock, para que ninguna
	// escritura posterior se cuele delante.
	sub.push(c.store.snapshotLocked(c.path, q))
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

// ── Subscription ──────────────────────────────────────────────────────────────

// subscription entrega snapshots en el orden de encolado mediante una cola
// propia y un goroutine despachador; nunca bloquea al escritor.
type subscription struct {
	id    int64
	path  string
	query store.Query
	owner *MemStore

	mu      sync.Mutex
	queue   [][]store.Document
	err     error
	stopped bool

	ch     chan []store.Document
	wake   chan struct{}
	closed chan struct{}
}

func (s *subscription) Updates() <-chan []store.Document { return s.ch }

func (s *subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *subscription) Cancel() { s.stop(nil) }

func (s *subscription) fail(err error) { s.stop(err) }

func (s *subscription) stop(err error) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.err = err
	s.mu.Unlock()

	s.owner.mu.Lock()
	delete(s.owner.subs, s.id)
	s.owner.mu.Unlock()

	close(s.closed)
	s.signal()
}

func (s *subscription) push(snap []store.Document) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, snap)
	s.mu.Unlock()
	s.signal()
}

func (s *subscription) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscription) dispatch() {
	defer close(s.ch)
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			stopped := s.stopped
			s.mu.Unlock()
			if stopped {
				return
			}
			select {
			case <-s.wake:
			case <-s.closed:
			}
			continue
		}
		snap := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.ch <- snap:
		case <-s.closed:
			return
		}
	}
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// applyFields fusiona campos parciales de primer nivel y resuelve centinelas
// de timestamp. Las actualizaciones no usan rutas con punto: un valor mapa
// reemplaza el campo completo.
func applyFields(data map[string]any, fields map[string]any, now time.Time) {
	cp := deepCopy(fields)
	store.ResolveTimestamps(cp, now)
	for k, v := range cp {
		data[k] = v
	}
}

// deepCopy copia recursiva de los campos de un documento: los snapshots que
// salen del store son inmutables para los consumidores.
func deepCopy(data map[string]any) map[string]any {
	cp := make(map[string]any, len(data))
	for k, v := range data {
		switch tv := v.(type) {
		case map[string]any:
			cp[k] = deepCopy(tv)
		case []any:
			lst := make([]any, len(tv))
			for i, e := range tv {
				if m, ok := e.(map[string]any); ok {
					lst[i] = deepCopy(m)
				} else {
					lst[i] = e
				}
			}
			cp[k] = lst
		default:
			cp[k] = v
		}
	}
	return cp
}

