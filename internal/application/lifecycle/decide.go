// Package lifecycle gobierna las transiciones de estado de una solicitud de
// crédito: Pending → Approved | Denied, con Approved y Denied terminales. La
// aprobación es el único disparador autoritativo de creación del registro de
// actividad de crédito.
package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/jhoicas/credimarket-api/internal/application/notifications"
	"github.com/jhoicas/credimarket-api/internal/domain"
	"github.com/jhoicas/credimarket-api/internal/domain/entity"
	"github.com/jhoicas/credimarket-api/internal/domain/store"
	"github.com/jhoicas/credimarket-api/pkg/logger"
	"github.com/jhoicas/credimarket-api/pkg/money"
	"github.com/shopspring/decimal"
)

// Outcome resultado de una decisión.
type Outcome string

const (
	OutcomeApproved Outcome = entity.ApplicationApproved
	OutcomeDenied   Outcome = entity.ApplicationDenied
)

// EventPublisher publica eventos de dominio hacia el exchange de mensajería.
// Puede ser nil (publicación deshabilitada).
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

// DecidedEvent carga del evento application.approved / application.denied.
type DecidedEvent struct {
	ApplicationID string          `json:"application_id"`
	UserID        string          `json:"user_id"`
	PartnerID     string          `json:"partner_id"`
	Amount        decimal.Decimal `json:"amount"`
	Outcome       string          `json:"outcome"`
}

// Machine máquina de ciclo de vida de solicitudes.
type Machine struct {
	store  store.Store
	fanout *notifications.Fanout
	events EventPublisher
	log    *logger.Logger
}

// NewMachine construye la máquina. events puede ser nil.
func NewMachine(st store.Store, fanout *notifications.Fanout, events EventPublisher, log *logger.Logger) *Machine {
	return &Machine{store: st, fanout: fanout, events: events, log: log}
}

// Decide aplica la transición de estado de una solicitud:
//
//  1. Lee la solicitud del store autoritativo (nunca de la proyección: la
//     proyección puede no haber incorporado aún la propia escritura).
//     Ausente → ErrNotFound; ya terminal → ErrInvalidTransition, estado
//     intacto — re-decidir una solicitud decidida es error del caller y es
//     lo que protege el "exactamente un" registro de actividad.
//  2. Escribe el nuevo estado (escritura de un solo documento).
//  3. Si aprueba, escribe el LoanActivityItem bajo el id determinista
//     entity.LoanActivityID(appID): un reintento de aprobación sobrescribe
//     en lugar de duplicar.
//
// No hay transacción entre (2) y (3): existe una ventana estrecha donde la
// solicitud figura aprobada sin registro de actividad; las proyecciones
// reconcilian solas cuando aterriza la segunda escritura.
func (m *Machine) Decide(ctx context.Context, applicationID string, outcome Outcome) error {
	if outcome != OutcomeApproved && outcome != OutcomeDenied {
		return fmt.Errorf("%w: resultado %q", domain.ErrValidation, outcome)
	}

	apps := m.store.Collection(store.Applications)
	doc, err := apps.Get(ctx, applicationID)
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("%w: solicitud %s", domain.ErrNotFound, applicationID)
	}
	if err != nil {
		return fmt.Errorf("leer solicitud %s: %w", applicationID, err)
	}

	var app entity.Application
	if err := doc.DataTo(&app); err != nil {
		return fmt.Errorf("decodificar solicitud %s: %w", applicationID, err)
	}
	app.ID = doc.ID
	if app.Terminal() {
		return fmt.Errorf("%w: la solicitud %s ya está %s", domain.ErrInvalidTransition, applicationID, app.Status)
	}

	if err := apps.Update(ctx, applicationID, map[string]any{"status": string(outcome)}); err != nil {
		return fmt.Errorf("escribir estado de %s: %w", applicationID, err)
	}

	if outcome == OutcomeApproved {
		if err := m.createLoanActivity(ctx, &app); err != nil {
			return err
		}
	}

	m.notifyBorrower(ctx, &app, outcome)
	m.publishEvent(ctx, &app, outcome)

	m.log.Info().
		Str("application", applicationID).
		Str("outcome", string(outcome)).
		Msg("solicitud decidida")
	return nil
}

func (m *Machine) createLoanActivity(ctx context.Context, app *entity.Application) error {
	item := entity.LoanActivityItem{
		UserID:          app.UserID,
		Borrower:        app.Borrower,
		PartnerID:       app.Loan.PartnerID,
		Principal:       app.Amount,
		Repaid:          decimal.Zero,
		InterestAccrued: decimal.Zero,
		Status:          entity.LoanActive,
	}
	data, err := store.DataFrom(item)
	if err != nil {
		return fmt.Errorf("codificar actividad de %s: %w", app.ID, err)
	}
	data["createdAt"] = store.ServerTimestamp

	id := entity.LoanActivityID(app.ID)
	if err := m.store.Collection(store.LoanActivity).Set(ctx, id, data); err != nil {
		return fmt.Errorf("crear actividad %s: %w", id, err)
	}
	return nil
}

func (m *Machine) notifyBorrower(ctx context.Context, app *entity.Application, outcome Outcome) {
	title := "Solicitud aprobada"
	msg := fmt.Sprintf("Tu solicitud de %s con %s fue aprobada.",
		money.Format(app.Amount), app.Loan.PartnerName)
	if outcome == OutcomeDenied {
		title = "Solicitud negada"
		msg = fmt.Sprintf("Tu solicitud de %s con %s fue negada.",
			money.Format(app.Amount), app.Loan.PartnerName)
	}
	// La notificación es secundaria a la decisión: si falla se registra y la
	// decisión queda en pie.
	if err := m.fanout.Notify(ctx, entity.AudienceUser, app.UserID, entity.CategoryApplication, title, msg); err != nil {
		m.log.Error().Err(err).Str("application", app.ID).Msg("notificar decisión falló")
	}
}

func (m *Machine) publishEvent(ctx context.Context, app *entity.Application, outcome Outcome) {
	if m.events == nil {
		return
	}
	ev := DecidedEvent{
		ApplicationID: app.ID,
		UserID:        app.UserID,
		PartnerID:     app.Loan.PartnerID,
		Amount:        app.Amount,
		Outcome:       string(outcome),
	}
	if err := m.events.Publish(ctx, "application."+string(outcome), ev); err != nil {
		m.log.Error().Err(err).Str("application", app.ID).Msg("publicar evento falló")
	}
}
