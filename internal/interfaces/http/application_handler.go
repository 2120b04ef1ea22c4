package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/credimarket-api/internal/application/dto"
	"github.com/jhoicas/credimarket-api/internal/application/lifecycle"
)

// ApplicationHandler creación y decisión de solicitudes.
type ApplicationHandler struct {
	machine *lifecycle.Machine
}

// NewApplicationHandler construye el handler.
func NewApplicationHandler(machine *lifecycle.Machine) *ApplicationHandler {
	return &ApplicationHandler{machine: machine}
}

// Submit POST /api/applications (rol prestatario)
func (h *ApplicationHandler) Submit(c *fiber.Ctx) error {
	var req dto.SubmitApplicationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "BAD_BODY", Message: "cuerpo JSON inválido"})
	}
	id, err := h.machine.Submit(c.Context(), lifecycle.SubmitInput{
		UserID:    GetUserID(c),
		Score:     req.Score,
		PartnerID: req.PartnerID,
		ProductID: req.ProductID,
		Amount:    req.Amount,
	})
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": id})
}

// Decide POST /api/applications/:id/decide (rol aliado)
func (h *ApplicationHandler) Decide(c *fiber.Ctx) error {
	var req dto.DecideRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "BAD_BODY", Message: "cuerpo JSON inválido"})
	}
	if err := h.machine.Decide(c.Context(), c.Params("id"), lifecycle.Outcome(req.Outcome)); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
