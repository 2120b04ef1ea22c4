package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/credimarket-api/internal/application/auth"
	"github.com/jhoicas/credimarket-api/internal/application/dto"
)

// AuthHandler endpoints de cuenta: registro, login, logout, avatar.
type AuthHandler struct {
	uc *auth.AuthUseCase
}

// NewAuthHandler construye el handler.
func NewAuthHandler(uc *auth.AuthUseCase) *AuthHandler {
	return &AuthHandler{uc: uc}
}

// Register POST /api/auth/register
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "BAD_BODY", Message: "cuerpo JSON inválido"})
	}
	id, token, err := h.uc.Register(c.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.AuthResponse{UserID: id, Token: token})
}

// Login POST /api/auth/login
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "BAD_BODY", Message: "cuerpo JSON inválido"})
	}
	id, token, err := h.uc.Login(c.Context(), req.Email, req.Password)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(dto.AuthResponse{UserID: id, Token: token})
}

// Logout POST /api/auth/logout (protegido)
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	h.uc.Logout(GetUserID(c))
	return c.SendStatus(fiber.StatusNoContent)
}

// SetAvatar PUT /api/users/me/avatar (protegido)
func (h *AuthHandler) SetAvatar(c *fiber.Ctx) error {
	var req dto.SetAvatarRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "BAD_BODY", Message: "cuerpo JSON inválido"})
	}
	if err := h.uc.SetAvatarURL(c.Context(), GetUserID(c), req.AvatarURL); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
