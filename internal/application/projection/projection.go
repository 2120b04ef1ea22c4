// Package projection mantiene vistas en vivo sobre el store remoto: una
// proyección por suscripción, cada una con su propio goroutine dueño, su
// snapshot inmutable más reciente y su difusión a consumidores. Las
// proyecciones son dominios de fallo independientes: un error de suscripción
// congela solo la proyección afectada.
package projection

import (
	"context"
	"sync"

	"github.com/jhoicas/credimarket-api/internal/domain/store"
	"github.com/jhoicas/credimarket-api/pkg/logger"
)

// Transform convierte el conjunto de documentos de un snapshot en el valor
// proyectado (decodificación + joins). Se ejecuta una vez por snapshot, en el
// goroutine dueño de la proyección.
type Transform[T any] func(ctx context.Context, docs []store.Document) ([]T, error)

// Projection vista en vivo de tipo T. Latest nunca bloquea; Watch entrega el
// snapshot vigente y cada uno posterior, con conflación a lo más reciente si
// el consumidor se atrasa.
type Projection[T any] struct {
	name string
	log  *logger.Logger

	mu      sync.RWMutex
	latest  []T
	ready   bool
	frozen  bool
	watchID int
	watches map[int]chan []T

	refresh chan struct{}
	done    chan struct{}
}

// Run arranca la proyección sobre una suscripción ya abierta. El goroutine
// dueño consume los snapshots en el orden en que el store los emite, aplica
// transform y difunde. Devuelve de inmediato.
func Run[T any](ctx context.Context, name string, sub store.Subscription, transform Transform[T], log *logger.Logger) *Projection[T] {
	p := &Projection[T]{
		name:    name,
		log:     log,
		watches: make(map[int]chan []T),
		refresh: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go p.loop(ctx, sub, transform)
	return p
}

func (p *Projection[T]) loop(ctx context.Context, sub store.Subscription, transform Transform[T]) {
	defer close(p.done)
	apply := func(docs []store.Document) {
		out, err := transform(ctx, docs)
		if err != nil {
			// El transform falló (p. ej. documento malformado): se conserva el
			// último snapshot bueno y se sigue consumiendo el stream.
			p.log.Error().Err(err).Str("projection", p.name).Msg("transform de snapshot falló")
			return
		}
		p.publish(out)
	}

	var lastDocs []store.Document
	seeded := false
	for {
		select {
		case docs, ok := <-sub.Updates():
			if !ok {
				// El canal se cerró: cancelación limpia o fallo del stream. En
				// fallo la proyección queda congelada en su último valor bueno.
				if err := sub.Err(); err != nil {
					p.mu.Lock()
					p.frozen = true
					p.mu.Unlock()
					p.log.Error().Err(err).Str("projection", p.name).Msg("suscripción caída; proyección congelada")
				}
				p.closeWatches()
				return
			}
			lastDocs, seeded = docs, true
			apply(docs)
		case <-p.refresh:
			if seeded {
				apply(lastDocs)
			}
		}
	}
}

// Refresh re-aplica el transform sobre el último snapshot recibido, p. ej.
// cuando cambió un documento joineado sin que cambiara ninguno primario. No
// bloquea; antes del primer snapshot es un no-op.
func (p *Projection[T]) Refresh() {
	select {
	case p.refresh <- struct{}{}:
	default:
	}
}

func (p *Projection[T]) publish(snapshot []T) {
	p.mu.Lock()
	p.latest = snapshot
	p.ready = true
	for _, ch := range p.watches {
		// Conflación: si el consumidor no ha leído el anterior, se reemplaza.
		select {
		case <-ch:
		default:
		}
		ch <- snapshot
	}
	p.mu.Unlock()
}

func (p *Projection[T]) closeWatches() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, ch := range p.watches {
		close(ch)
		delete(p.watches, id)
	}
}

// Latest snapshot vigente (inmutable: los consumidores no deben mutarlo).
func (p *Projection[T]) Latest() []T {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latest
}

// Ready indica si ya llegó al menos un snapshot.
func (p *Projection[T]) Ready() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.ready
}

// Frozen indica si la suscripción falló y la vista quedó congelada.
func (p *Projection[T]) Frozen() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.frozen
}

// Watch registra un consumidor: recibe el snapshot vigente (si existe) y cada
// snapshot posterior. El cancel devuelto retira el registro.
func (p *Projection[T]) Watch() (<-chan []T, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.watchID++
	id := p.watchID
	ch := make(chan []T, 1)
	if p.ready {
		ch <- p.latest
	}
	p.watches[id] = ch
	cancel := func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if c, ok := p.watches[id]; ok {
			close(c)
			delete(p.watches, id)
		}
	}
	return ch, cancel
}

// Wait bloquea hasta que el goroutine dueño termine (cancelación o fallo).
func (p *Projection[T]) Wait() {
	<-p.done
}
