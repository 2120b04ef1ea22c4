package postgres

import (
	"context"
	"sync"
	"time"

	"github.com/jhoicas/credimarket-api/internal/domain/store"
)

// subscription del DocStore. Igual contrato que el resto de adaptadores: los
// snapshots se entregan en el orden de encolado y el canal se cierra al
// cancelar o fallar.
type subscription struct {
	id    int64
	path  string
	query store.Query
	coll  *collection

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

func (s *subscription) stop(err error) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.err = err
	s.mu.Unlock()

	st := s.coll.store
	st.mu.Lock()
	delete(st.subs, s.id)
	st.mu.Unlock()

	close(s.closed)
	s.signal()
}

// refresh re-consulta la colección y encola el snapshot. Un fallo de
// re-consulta tumba la suscripción con ese error: la proyección dueña la
// congelará.
func (s *subscription) refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	docs, err := s.coll.Documents(ctx, s.query)
	if err != nil {
		s.stop(err)
		return
	}
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, docs)
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
