package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/credimarket-api/internal/domain"
	"github.com/jhoicas/credimarket-api/internal/domain/entity"
	"github.com/jhoicas/credimarket-api/internal/domain/store"
	"github.com/jhoicas/credimarket-api/pkg/money"
)

// SubmitInput datos para crear una solicitud.
type SubmitInput struct {
	UserID        string
	Score         int
	PartnerID     string
	ProductID     string
	Amount        decimal.Decimal
	AIExplanation string
}

// Submit crea una solicitud en estado Pending: toma el snapshot del
// prestatario y la referencia desnormalizada del producto, y notifica al
// aliado. El createdAt lo asigna el servidor.
func (m *Machine) Submit(ctx context.Context, in SubmitInput) (string, error) {
	if in.Amount.LessThanOrEqual(decimal.Zero) {
		return "", fmt.Errorf("%w: el monto debe ser positivo", domain.ErrValidation)
	}

	userDoc, err := m.store.Collection(store.Users).Get(ctx, in.UserID)
	if errors.Is(err, domain.ErrNotFound) {
		return "", fmt.Errorf("%w: usuario %s", domain.ErrNotFound, in.UserID)
	}
	if err != nil {
		return "", fmt.Errorf("leer usuario %s: %w", in.UserID, err)
	}
	var user entity.User
	if err := userDoc.DataTo(&user); err != nil {
		return "", fmt.Errorf("decodificar usuario %s: %w", in.UserID, err)
	}

	partnerDoc, err := m.store.Collection(store.Partners).Get(ctx, in.PartnerID)
	if errors.Is(err, domain.ErrNotFound) {
		return "", fmt.Errorf("%w: aliado %s", domain.ErrNotFound, in.PartnerID)
	}
	if err != nil {
		return "", fmt.Errorf("leer aliado %s: %w", in.PartnerID, err)
	}
	var partner entity.Partner
	if err := partnerDoc.DataTo(&partner); err != nil {
		return "", fmt.Errorf("decodificar aliado %s: %w", in.PartnerID, err)
	}

	prodDoc, err := m.store.Collection(store.ProductsOf(in.PartnerID)).Get(ctx, in.ProductID)
	if errors.Is(err, domain.ErrNotFound) {
		return "", fmt.Errorf("%w: producto %s", domain.ErrNotFound, in.ProductID)
	}
	if err != nil {
		return "", fmt.Errorf("leer producto %s: %w", in.ProductID, err)
	}
	var product entity.LoanProduct
	if err := prodDoc.DataTo(&product); err != nil {
		return "", fmt.Errorf("decodificar producto %s: %w", in.ProductID, err)
	}
	if product.MaxAmount > 0 && in.Amount.GreaterThan(decimal.NewFromInt(product.MaxAmount)) {
		return "", fmt.Errorf("%w: el monto excede el máximo del producto", domain.ErrValidation)
	}

	app := entity.Application{
		UserID: in.UserID,
		Borrower: entity.BorrowerSnapshot{
			DisplayName: user.DisplayName,
			AvatarURL:   user.AvatarURL,
		},
		Score: in.Score,
		Loan: entity.LoanRef{
			ProductID:   in.ProductID,
			ProductName: product.Name,
			PartnerName: partner.Name,
			PartnerID:   in.PartnerID,
		},
		Amount:        in.Amount,
		Status:        entity.ApplicationPending,
		AIExplanation: in.AIExplanation,
	}
	data, err := store.DataFrom(app)
	if err != nil {
		return "", fmt.Errorf("codificar solicitud: %w", err)
	}
	data["createdAt"] = store.ServerTimestamp

	id, err := m.store.Collection(store.Applications).Add(ctx, data)
	if err != nil {
		return "", fmt.Errorf("crear solicitud: %w", err)
	}

	msg := fmt.Sprintf("%s solicitó %s en %s.", user.DisplayName, money.Format(in.Amount), product.Name)
	if err := m.fanout.Notify(ctx, entity.AudiencePartner, in.PartnerID, entity.CategoryApplication, "Nueva solicitud", msg); err != nil {
		m.log.Error().Err(err).Str("application", id).Msg("notificar solicitud falló")
	}

	m.log.Info().Str("application", id).Str("user", in.UserID).Msg("solicitud creada")
	return id, nil
}
