package projection

import (
	"context"
	"reflect"
	"sync"

	"github.com/jhoicas/credimarket-api/internal/domain/store"
)

// joinConcurrency tope de lecturas fan-out simultáneas por snapshot.
const joinConcurrency = 8

// Joiner ejecuta el paso de join por lotes de una proyección: una lectura
// fan-out por documento secundario, con concurrencia acotada y una caché por
// id para no releer documentos que no cambiaron. Las lecturas de join son
// best-effort: un fallo individual deja ese id sin refrescar (los campos
// joineados son solo de display, la obsolescencia se tolera).
type Joiner struct {
	coll store.Collection

	mu    sync.Mutex
	cache map[string]store.Document

	done chan struct{}
}

// NewJoiner construye el joiner sobre la colección secundaria.
func NewJoiner(coll store.Collection) *Joiner {
	return &Joiner{coll: coll, cache: make(map[string]store.Document)}
}

// Fetch resuelve los documentos para los ids dados (duplicados permitidos).
// Devuelve un mapa id → documento con lo que se pudo obtener.
func (j *Joiner) Fetch(ctx context.Context, ids []string) map[string]store.Document {
	uniq := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id != "" {
			uniq[id] = struct{}{}
		}
	}

	out := make(map[string]store.Document, len(uniq))
	var outMu sync.Mutex

	// Los ids ya cacheados no se releen: si solo cambiaron documentos
	// primarios no relacionados, el snapshot no paga lecturas nuevas.
	missing := make([]string, 0, len(uniq))
	j.mu.Lock()
	for id := range uniq {
		if doc, ok := j.cache[id]; ok {
			out[id] = doc
		} else {
			missing = append(missing, id)
		}
	}
	j.mu.Unlock()

	sem := make(chan struct{}, joinConcurrency)
	var wg sync.WaitGroup
	for _, id := range missing {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			doc, err := j.coll.Get(ctx, id)
			if err != nil {
				// Best-effort: el documento primario conserva su snapshot
				// desnormalizado para este id.
				return
			}
			j.mu.Lock()
			j.cache[id] = doc
			j.mu.Unlock()
			outMu.Lock()
			out[id] = doc
			outMu.Unlock()
		}(id)
	}
	wg.Wait()
	return out
}

// Invalidate descarta la entrada cacheada de un id; la próxima llegada de
// snapshot lo releerá del store.
func (j *Joiner) Invalidate(id string) {
	j.mu.Lock()
	delete(j.cache, id)
	j.mu.Unlock()
}

// Track consume una suscripción a la colección secundaria y mantiene la caché
// al día: cada snapshot refresca las entradas cacheadas cuyo documento cambió
// y retira las de documentos borrados. Sin esto la caché serviría el primer
// documento leído para siempre. Cuando al menos una entrada cambió se invoca
// onChange (si no es nil), para que la proyección dueña re-joinee su último
// snapshot. Devuelve de inmediato; el goroutine termina al cerrarse la
// suscripción.
func (j *Joiner) Track(sub store.Subscription, onChange func()) {
	j.done = make(chan struct{})
	go func() {
		defer close(j.done)
		for docs := range sub.Updates() {
			byID := make(map[string]store.Document, len(docs))
			for _, d := range docs {
				byID[d.ID] = d
			}
			changed := false
			j.mu.Lock()
			for id, cached := range j.cache {
				d, ok := byID[id]
				switch {
				case !ok:
					delete(j.cache, id)
					changed = true
				case !reflect.DeepEqual(cached.Data, d.Data):
					j.cache[id] = d
					changed = true
				}
			}
			j.mu.Unlock()
			if changed && onChange != nil {
				onChange()
			}
		}
	}()
}

// Wait bloquea hasta que el goroutine de Track termine. Sin Track, no-op.
func (j *Joiner) Wait() {
	if j.done != nil {
		<-j.done
	}
}
