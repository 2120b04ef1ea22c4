package session

import (
	"context"
	"fmt"

	"github.com/jhoicas/credimarket-api/internal/application/projection"
	"github.com/jhoicas/credimarket-api/internal/domain"
	"github.com/jhoicas/credimarket-api/internal/domain/entity"
	"github.com/jhoicas/credimarket-api/internal/domain/store"
	"github.com/jhoicas/credimarket-api/pkg/logger"
)

// Session sesión resuelta de un principal: posee sus proyecciones y sus
// suscripciones. Reemplaza al contexto global del proveedor único: se
// construye al resolver el rol y se destruye con Close() en cada cambio de
// principal — una suscripción que sobrevive al cambio de rol filtra datos
// del rol anterior, así que el teardown es parte del contrato.
type Session struct {
	UserID  string
	Role    Role
	Partner *entity.Partner // solo rol aliado

	// Proyecciones del prestatario.
	OwnUser *projection.Projection[entity.User]

	// Proyecciones del aliado.
	Products *projection.Projection[entity.LoanProduct]
	Loans    *projection.Projection[entity.LoanActivityItem]

	// Ambos roles. Applications filtra por userId (prestatario) o por
	// loan.partnerId con join de prestatario (aliado).
	Applications  *projection.Projection[entity.Application]
	Directory     *projection.Projection[entity.Partner]
	Notifications *projection.Projection[entity.Notification]

	joiner *projection.Joiner
	cancel context.CancelFunc
}

// Opener resuelve principales y abre sesiones con sus proyecciones.
type Opener struct {
	store    store.Store
	resolver *Resolver
	log      *logger.Logger
}

// NewOpener construye el opener.
func NewOpener(st store.Store, log *logger.Logger) *Opener {
	return &Opener{store: st, resolver: NewResolver(st), log: log}
}

// Resolver expone el resolver (para re-evaluar rol sin abrir sesión).
func (o *Opener) Resolver() *Resolver { return o.resolver }

// Open resuelve el rol del principal y arranca el juego de proyecciones de
// ese rol. Si alguna suscripción no abre, cierra lo ya abierto y falla: no
// se entrega una sesión a medias.
func (o *Opener) Open(ctx context.Context, principalID string) (*Session, error) {
	res, err := o.resolver.Resolve(ctx, principalID)
	if err != nil {
		return nil, err
	}

	sctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s := &Session{
		UserID:  principalID,
		Role:    res.Role,
		Partner: res.Partner,
		cancel:  cancel,
	}

	if err := o.start(sctx, s); err != nil {
		s.Close()
		return nil, fmt.Errorf("%w: abrir proyecciones de %s: %v", domain.ErrResolution, principalID, err)
	}
	o.log.Info().Str("principal", principalID).Str("role", string(s.Role)).Msg("sesión abierta")
	return s, nil
}

func (o *Opener) start(ctx context.Context, s *Session) error {
	switch s.Role {
	case RoleBorrower:
		ownSub, err := o.store.Collection(store.Users).
			Subscribe(ctx, store.Where(store.FieldID, s.UserID))
		if err != nil {
			return err
		}
		s.OwnUser = projection.Run(ctx, "own-user", ownSub, projection.Users(), o.log)

		appsSub, err := o.store.Collection(store.Applications).
			Subscribe(ctx, store.Where("userId", s.UserID))
		if err != nil {
			return err
		}
		s.Applications = projection.Run(ctx, "borrower-applications", appsSub, projection.Applications(nil), o.log)

	case RolePartner:
		prodSub, err := o.store.Collection(store.ProductsOf(s.UserID)).Subscribe(ctx, store.All())
		if err != nil {
			return err
		}
		s.Products = projection.Run(ctx, "partner-products", prodSub, projection.LoanProducts(), o.log)

		loansSub, err := o.store.Collection(store.LoanActivity).
			Subscribe(ctx, store.Where("partnerId", s.UserID))
		if err != nil {
			return err
		}
		s.Loans = projection.Run(ctx, "partner-loans", loansSub, projection.LoanActivity(), o.log)

		appsSub, err := o.store.Collection(store.Applications).
			Subscribe(ctx, store.Where("loan.partnerId", s.UserID))
		if err != nil {
			return err
		}
		// La caché del join se mantiene al día con una suscripción propia a
		// users: un cambio de nombre/avatar del prestatario refresca la
		// entrada cacheada y re-joinea el snapshot vigente de solicitudes.
		joiner := projection.NewJoiner(o.store.Collection(store.Users))
		usersSub, err := o.store.Collection(store.Users).Subscribe(ctx, store.All())
		if err != nil {
			return err
		}
		s.Applications = projection.Run(ctx, "partner-applications", appsSub, projection.Applications(joiner), o.log)
		joiner.Track(usersSub, s.Applications.Refresh)
		s.joiner = joiner
	}

	dirSub, err := o.store.Collection(store.Partners).Subscribe(ctx, store.All())
	if err != nil {
		return err
	}
	s.Directory = projection.Run(ctx, "directory", dirSub, projection.Directory(o.store), o.log)

	notifSub, err := o.store.Collection(store.Notifications).
		Subscribe(ctx, store.Where("userId", s.UserID))
	if err != nil {
		return err
	}
	s.Notifications = projection.Run(ctx, "notifications", notifSub, projection.Notifications(), o.log)

	return nil
}

// Close cancela todas las suscripciones de la sesión y espera a que cada
// proyección termine. Idempotente.
func (s *Session) Close() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.cancel = nil
	for _, w := range []interface{ Wait() }{
		waitable(s.OwnUser), waitable(s.Products), waitable(s.Loans),
		waitable(s.Applications), waitable(s.Directory), waitable(s.Notifications),
	} {
		if w != nil {
			w.Wait()
		}
	}
	if s.joiner != nil {
		s.joiner.Wait()
	}
}

// waitable evita el clásico nil-interface-no-nil con punteros tipados.
func waitable[T any](p *projection.Projection[T]) interface{ Wait() } {
	if p == nil {
		return nil
	}
	return p
}
