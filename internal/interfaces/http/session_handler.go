package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/credimarket-api/internal/application/dto"
	"github.com/jhoicas/credimarket-api/internal/application/session"
	"github.com/jhoicas/credimarket-api/internal/domain/entity"
)

// SessionHandler resolución de rol y snapshots de proyecciones.
type SessionHandler struct {
	registry *session.Registry
}

// NewSessionHandler construye el handler.
func NewSessionHandler(registry *session.Registry) *SessionHandler {
	return &SessionHandler{registry: registry}
}

func (h *SessionHandler) current(c *fiber.Ctx) (*session.Session, error) {
	return currentSession(c, h.registry)
}

// currentSession devuelve la sesión viva del principal, abriéndola si es la
// primera petición tras el login.
func currentSession(c *fiber.Ctx, registry *session.Registry) (*session.Session, error) {
	principal := GetUserID(c)
	if s := registry.Get(principal); s != nil {
		return s, nil
	}
	return registry.Open(c.Context(), principal)
}

// Session GET /api/session — rol resuelto de la sesión.
func (h *SessionHandler) Session(c *fiber.Ctx) error {
	s, err := h.current(c)
	if err != nil {
		return fail(c, err)
	}
	resp := dto.SessionResponse{UserID: s.UserID, Role: string(s.Role)}
	if s.Partner != nil {
		p := toPartnerResponse(*s.Partner)
		resp.Partner = &p
	}
	return c.JSON(resp)
}

// Directory GET /api/partners — directorio global con productos joineados.
func (h *SessionHandler) Directory(c *fiber.Ctx) error {
	s, err := h.current(c)
	if err != nil {
		return fail(c, err)
	}
	partners := s.Directory.Latest()
	out := make([]dto.PartnerResponse, 0, len(partners))
	for _, p := range partners {
		out = append(out, toPartnerResponse(p))
	}
	return c.JSON(out)
}

// Applications GET /api/applications — proyección de solicitudes del rol.
func (h *SessionHandler) Applications(c *fiber.Ctx) error {
	s, err := h.current(c)
	if err != nil {
		return fail(c, err)
	}
	apps := s.Applications.Latest()
	out := make([]dto.ApplicationResponse, 0, len(apps))
	for _, a := range apps {
		out = append(out, dto.ApplicationResponse{
			ID:          a.ID,
			UserID:      a.UserID,
			DisplayName: a.Borrower.DisplayName,
			AvatarURL:   a.Borrower.AvatarURL,
			Score:       a.Score,
			ProductName: a.Loan.ProductName,
			PartnerName: a.Loan.PartnerName,
			Amount:      a.Amount,
			Status:      a.Status,
			CreatedAt:   a.CreatedAt,
		})
	}
	return c.JSON(out)
}

// Notifications GET /api/notifications — buzón del rol, timestamp descendente.
func (h *SessionHandler) Notifications(c *fiber.Ctx) error {
	s, err := h.current(c)
	if err != nil {
		return fail(c, err)
	}
	notifs := s.Notifications.Latest()
	out := make([]dto.NotificationResponse, 0, len(notifs))
	for _, n := range notifs {
		out = append(out, dto.NotificationResponse{
			ID:        n.ID,
			For:       n.For,
			Category:  n.Category,
			Title:     n.Title,
			Message:   n.Message,
			Timestamp: n.Timestamp,
			Read:      n.Read,
		})
	}
	return c.JSON(out)
}

func toPartnerResponse(p entity.Partner) dto.PartnerResponse {
	products := make([]dto.ProductResponse, 0, len(p.Products))
	for _, prod := range p.Products {
		products = append(products, dto.ProductResponse{
			ID:           prod.ID,
			Name:         prod.Name,
			Rate:         prod.Rate,
			MaxAmount:    prod.MaxAmount,
			TermMonths:   prod.TermMonths,
			Requirements: prod.Requirements,
		})
	}
	return dto.PartnerResponse{
		ID:          p.ID,
		Name:        p.Name,
		LogoURL:     p.LogoURL,
		Description: p.Description,
		Website:     p.Website,
		Products:    products,
	}
}
