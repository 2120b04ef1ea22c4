package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/credimarket-api/internal/application/dto"
	"github.com/jhoicas/credimarket-api/internal/application/notifications"
	"github.com/jhoicas/credimarket-api/internal/application/session"
)

// NotificationHandler bandeja de notificaciones.
type NotificationHandler struct {
	fanout *notifications.Fanout
}

// NewNotificationHandler construye el handler.
func NewNotificationHandler(fanout *notifications.Fanout) *NotificationHandler {
	return &NotificationHandler{fanout: fanout}
}

// MarkAllRead POST /api/notifications/read — marca toda la bandeja como
// leída en un solo lote atómico. Repetir la llamada sin notificaciones
// pendientes es un no-op y devuelve marked = 0.
func (h *NotificationHandler) MarkAllRead(c *fiber.Ctx) error {
	audience := "user"
	if GetRole(c) == string(session.RolePartner) {
		audience = "partner"
	}
	marked, err := h.fanout.MarkAllRead(c.Context(), audience, GetUserID(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(dto.MarkReadResponse{Marked: marked})
}
