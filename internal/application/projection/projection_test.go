package projection_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/credimarket-api/internal/application/projection"
	"github.com/jhoicas/credimarket-api/internal/domain/store"
	"github.com/jhoicas/credimarket-api/internal/infrastructure/memstore"
	"github.com/jhoicas/credimarket-api/pkg/logger"
)

func waitReady[T any](t *testing.T, p *projection.Projection[T]) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !p.Ready() {
		if time.Now().After(deadline) {
			t.Fatal("la proyección nunca recibió su primer snapshot")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal(msg)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Ciclo de vida de una proyección
// ──────────────────────────────────────────────────────────────────────────────

func TestProjection_PrimerSnapshotYActualizaciones(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := memstore.New()
	users := s.Collection(store.Users)
	require.NoError(t, users.Set(ctx, "u1", map[string]any{"displayName": "Marta", "email": "m@x.co"}))

	sub, err := users.Subscribe(ctx, store.All())
	require.NoError(t, err)
	p := projection.Run(ctx, "users", sub, projection.Users(), logger.Nop())

	waitReady(t, p)
	latest := p.Latest()
	require.Len(t, latest, 1)
	assert.Equal(t, "Marta", latest[0].DisplayName)

	require.NoError(t, users.Set(ctx, "u2", map[string]any{"displayName": "Luis"}))
	waitFor(t, func() bool { return len(p.Latest()) == 2 }, "la actualización no llegó a la vista")
}

func TestProjection_NuncaExponeElHash(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := memstore.New()
	users := s.Collection(store.Users)
	require.NoError(t, users.Set(ctx, "u1", map[string]any{
		"displayName": "Marta", "passwordHash": "$2a$10$secreto",
	}))

	sub, err := users.Subscribe(ctx, store.All())
	require.NoError(t, err)
	p := projection.Run(ctx, "users", sub, projection.Users(), logger.Nop())

	waitReady(t, p)
	require.Len(t, p.Latest(), 1)
	assert.Empty(t, p.Latest()[0].PasswordHash)
}

// TestProjection_TransformFallidoConservaElBueno: un snapshot malformado no
// tumba la vista; se conserva el último snapshot bueno y el stream sigue.
func TestProjection_TransformFallidoConservaElBueno(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := memstore.New()
	apps := s.Collection(store.Applications)
	require.NoError(t, apps.Set(ctx, "a1", map[string]any{"userId": "u1", "amount": "100"}))

	sub, err := apps.Subscribe(ctx, store.All())
	require.NoError(t, err)
	p := projection.Run(ctx, "apps", sub, projection.Applications(nil), logger.Nop())
	waitReady(t, p)
	require.Len(t, p.Latest(), 1)

	// amount no numérico: DataTo falla para ese snapshot.
	require.NoError(t, apps.Set(ctx, "a2", map[string]any{"userId": "u2", "amount": "no-numérico"}))
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, p.Latest(), 1, "el snapshot malo no debe reemplazar al bueno")
	assert.False(t, p.Frozen())

	// Un snapshot sano posterior repara la vista.
	require.NoError(t, apps.Set(ctx, "a2", map[string]any{"userId": "u2", "amount": "200"}))
	waitFor(t, func() bool { return len(p.Latest()) == 2 }, "la vista no se recuperó tras el snapshot sano")
}

func TestProjection_SuscripcionCaidaCongela(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := memstore.New()
	loans := s.Collection(store.LoanActivity)
	require.NoError(t, loans.Set(ctx, "l1", map[string]any{"userId": "u1"}))

	sub, err := loans.Subscribe(ctx, store.All())
	require.NoError(t, err)
	p := projection.Run(ctx, "loans", sub, projection.LoanActivity(), logger.Nop())
	waitReady(t, p)

	s.FailSubscriptions(store.LoanActivity, errors.New("stream caído"))
	p.Wait()

	assert.True(t, p.Frozen())
	assert.Len(t, p.Latest(), 1, "la vista congelada conserva el último snapshot bueno")
}

// TestProjection_FallosIndependientes: la caída de una suscripción no toca a
// las proyecciones hermanas sobre otras colecciones.
func TestProjection_FallosIndependientes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := memstore.New()
	require.NoError(t, s.Collection(store.LoanActivity).Set(ctx, "l1", map[string]any{"userId": "u1"}))
	require.NoError(t, s.Collection(store.Users).Set(ctx, "u1", map[string]any{"displayName": "Marta"}))

	loanSub, err := s.Collection(store.LoanActivity).Subscribe(ctx, store.All())
	require.NoError(t, err)
	userSub, err := s.Collection(store.Users).Subscribe(ctx, store.All())
	require.NoError(t, err)

	pLoans := projection.Run(ctx, "loans", loanSub, projection.LoanActivity(), logger.Nop())
	pUsers := projection.Run(ctx, "users", userSub, projection.Users(), logger.Nop())
	waitReady(t, pLoans)
	waitReady(t, pUsers)

	s.FailSubscriptions(store.LoanActivity, errors.New("stream caído"))
	pLoans.Wait()
	require.True(t, pLoans.Frozen())

	// La hermana sigue viva y recibe escrituras.
	require.NoError(t, s.Collection(store.Users).Set(ctx, "u2", map[string]any{"displayName": "Luis"}))
	waitFor(t, func() bool { return len(pUsers.Latest()) == 2 }, "la proyección sana dejó de actualizar")
	assert.False(t, pUsers.Frozen())
}

func TestProjection_WatchEntregaElVigenteYConfla(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := memstore.New()
	users := s.Collection(store.Users)
	require.NoError(t, users.Set(ctx, "u1", map[string]any{"displayName": "Marta"}))

	sub, err := users.Subscribe(ctx, store.All())
	require.NoError(t, err)
	p := projection.Run(ctx, "users", sub, projection.Users(), logger.Nop())
	waitReady(t, p)

	ch, cancelWatch := p.Watch()
	defer cancelWatch()

	first := <-ch
	require.Len(t, first, 1, "el watch arranca con el snapshot vigente")

	// Sin leer el canal, varias escrituras: el consumidor atrasado recibe
	// solo el más reciente.
	require.NoError(t, users.Set(ctx, "u2", map[string]any{"displayName": "Luis"}))
	require.NoError(t, users.Set(ctx, "u3", map[string]any{"displayName": "Nora"}))
	waitFor(t, func() bool { return len(p.Latest()) == 3 }, "las escrituras no llegaron")

	snap := <-ch
	assert.Len(t, snap, 3, "conflación: se entrega el último, no la cola completa")
}

// ──────────────────────────────────────────────────────────────────────────────
// Transforms con join
// ──────────────────────────────────────────────────────────────────────────────

func TestApplications_JoinRefrescaBorrower(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := memstore.New()
	require.NoError(t, s.Collection(store.Users).Set(ctx, "u1", map[string]any{
		"displayName": "Marta Actualizada", "avatarUrl": "nuevo.png",
	}))
	require.NoError(t, s.Collection(store.Applications).Set(ctx, "a1", map[string]any{
		"userId": "u1", "amount": "100",
		"borrower": map[string]any{"displayName": "Marta Vieja"},
		"loan":     map[string]any{"partnerId": "p1"},
	}))

	sub, err := s.Collection(store.Applications).Subscribe(ctx, store.Where("loan.partnerId", "p1"))
	require.NoError(t, err)
	joiner := projection.NewJoiner(s.Collection(store.Users))
	p := projection.Run(ctx, "apps", sub, projection.Applications(joiner), logger.Nop())

	waitReady(t, p)
	require.Len(t, p.Latest(), 1)
	assert.Equal(t, "Marta Actualizada", p.Latest()[0].Borrower.DisplayName,
		"la vista del aliado joinea el documento vivo del prestatario")
	assert.Equal(t, "nuevo.png", p.Latest()[0].Borrower.AvatarURL)
}

func TestApplications_JoinBestEffort(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := memstore.New()
	// El prestatario no existe: se conserva el snapshot desnormalizado.
	require.NoError(t, s.Collection(store.Applications).Set(ctx, "a1", map[string]any{
		"userId": "huerfano", "amount": "100",
		"borrower": map[string]any{"displayName": "Snapshot"},
	}))

	sub, err := s.Collection(store.Applications).Subscribe(ctx, store.All())
	require.NoError(t, err)
	joiner := projection.NewJoiner(s.Collection(store.Users))
	p := projection.Run(ctx, "apps", sub, projection.Applications(joiner), logger.Nop())

	waitReady(t, p)
	require.Len(t, p.Latest(), 1)
	assert.Equal(t, "Snapshot", p.Latest()[0].Borrower.DisplayName)
}

func TestNotifications_OrdenDescendente(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := memstore.New()
	notifs := s.Collection(store.Notifications)
	require.NoError(t, notifs.Set(ctx, "n1", map[string]any{
		"title": "vieja", "timestamp": store.ServerTimestamp,
	}))
	require.NoError(t, notifs.Set(ctx, "n2", map[string]any{
		"title": "nueva", "timestamp": store.ServerTimestamp,
	}))

	sub, err := notifs.Subscribe(ctx, store.All())
	require.NoError(t, err)
	p := projection.Run(ctx, "notifs", sub, projection.Notifications(), logger.Nop())

	waitReady(t, p)
	latest := p.Latest()
	require.Len(t, latest, 2)
	assert.Equal(t, "nueva", latest[0].Title, "la más reciente primero")
	assert.Equal(t, "vieja", latest[1].Title)
}

func TestDirectory_JoineaProductos(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := memstore.New()
	require.NoError(t, s.Collection(store.Partners).Set(ctx, "p1", map[string]any{"name": "Banco Uno"}))
	require.NoError(t, s.Collection(store.ProductsOf("p1")).Set(ctx, "prod1", map[string]any{
		"name": "Libre inversión", "maxAmount": 20000, "termMonths": 12,
	}))

	sub, err := s.Collection(store.Partners).Subscribe(ctx, store.All())
	require.NoError(t, err)
	p := projection.Run(ctx, "directory", sub, projection.Directory(s), logger.Nop())

	waitReady(t, p)
	latest := p.Latest()
	require.Len(t, latest, 1)
	require.Len(t, latest[0].Products, 1)
	assert.Equal(t, "Libre inversión", latest[0].Products[0].Name)
}

// ──────────────────────────────────────────────────────────────────────────────
// Joiner: caché por id
// ──────────────────────────────────────────────────────────────────────────────

// countingColl envuelve una colección contando los Get, para verificar que la
// caché evita relecturas.
type countingColl struct {
	store.Collection
	gets chan string
}

func (c *countingColl) Get(ctx context.Context, id string) (store.Document, error) {
	c.gets <- id
	return c.Collection.Get(ctx, id)
}

func TestJoiner_CacheEvitaRelecturas(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	require.NoError(t, s.Collection(store.Users).Set(ctx, "u1", map[string]any{"displayName": "Marta"}))

	cc := &countingColl{Collection: s.Collection(store.Users), gets: make(chan string, 16)}
	j := projection.NewJoiner(cc)

	out := j.Fetch(ctx, []string{"u1", "u1"})
	require.Len(t, out, 1)
	assert.Len(t, cc.gets, 1, "duplicados en el mismo lote cuestan una sola lectura")

	out = j.Fetch(ctx, []string{"u1"})
	require.Len(t, out, 1)
	assert.Len(t, cc.gets, 1, "un id cacheado no se relee")

	j.Invalidate("u1")
	out = j.Fetch(ctx, []string{"u1"})
	require.Len(t, out, 1)
	assert.Len(t, cc.gets, 2, "tras invalidar se vuelve al store")
}

// TestJoiner_TrackRefrescaLaCache: con Track activo, un cambio en el documento
// secundario refresca la entrada cacheada sin releer del store; un borrado la
// retira de la caché.
func TestJoiner_TrackRefrescaLaCache(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := memstore.New()
	users := s.Collection(store.Users)
	require.NoError(t, users.Set(ctx, "u1", map[string]any{"displayName": "Nombre Original"}))

	cc := &countingColl{Collection: users, gets: make(chan string, 16)}
	j := projection.NewJoiner(cc)

	sub, err := users.Subscribe(ctx, store.All())
	require.NoError(t, err)
	j.Track(sub, nil)

	out := j.Fetch(ctx, []string{"u1"})
	require.Len(t, out, 1)
	require.Len(t, cc.gets, 1)

	require.NoError(t, users.Update(ctx, "u1", map[string]any{"displayName": "Nombre Nuevo"}))
	waitFor(t, func() bool {
		doc := j.Fetch(ctx, []string{"u1"})["u1"]
		return doc.Data["displayName"] == "Nombre Nuevo"
	}, "el cambio del documento no refrescó la caché")
	assert.Len(t, cc.gets, 1, "el refresco llega por la suscripción, no por relecturas")

	// Borrado: la entrada sale de la caché y el siguiente Fetch vuelve al
	// store (best-effort: no encuentra nada).
	require.NoError(t, users.Delete(ctx, "u1"))
	waitFor(t, func() bool {
		out := j.Fetch(ctx, []string{"u1"})
		return len(out) == 0
	}, "el borrado no retiró la entrada cacheada")

	cancel()
	j.Wait()
}
