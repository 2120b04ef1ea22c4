package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/credimarket-api/internal/application/auth"
	"github.com/jhoicas/credimarket-api/internal/application/lifecycle"
	"github.com/jhoicas/credimarket-api/internal/application/loans"
	"github.com/jhoicas/credimarket-api/internal/application/notifications"
	"github.com/jhoicas/credimarket-api/internal/application/session"
	"github.com/jhoicas/credimarket-api/internal/domain/store"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	AuthUC    *auth.AuthUseCase
	Registry  *session.Registry
	Machine   *lifecycle.Machine
	Engine    *loans.Engine
	Fanout    *notifications.Fanout
	Store     store.Store
	PDF       ReceiptPDFGenerator
	JWTSecret string
}

// Router registra las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	api := app.Group("/api")

	// Auth (público)
	authGroup := api.Group("/auth")
	authHandler := NewAuthHandler(deps.AuthUC)
	authGroup.Post("/register", authHandler.Register)
	authGroup.Post("/login", authHandler.Login)

	// Rutas protegidas (requieren Bearer Token)
	protected := api.Group("/", AuthMiddleware(deps.JWTSecret))

	account := protected.Group("/auth")
	account.Post("/logout", authHandler.Logout)
	account.Put("/avatar", authHandler.SetAvatar)

	// Sesión y proyecciones (protegido)
	sessionHandler := NewSessionHandler(deps.Registry)
	protected.Get("/session", sessionHandler.Session)
	protected.Get("/partners", sessionHandler.Directory)
	protected.Get("/applications", sessionHandler.Applications)
	protected.Get("/notifications", sessionHandler.Notifications)

	// Solicitudes (protegido; cada operación exige su rol)
	applications := protected.Group("/applications")
	applicationHandler := NewApplicationHandler(deps.Machine)
	applications.Post("/", RequireRole(string(session.RoleBorrower)), applicationHandler.Submit)
	applications.Post("/:id/decide", RequireRole(string(session.RolePartner)), applicationHandler.Decide)

	// Créditos y abonos (protegido, rol aliado)
	loansGroup := protected.Group("/loans", RequireRole(string(session.RolePartner)))
	loanHandler := NewLoanHandler(deps.Engine, deps.Registry, deps.Store, deps.PDF)
	loansGroup.Get("/", loanHandler.List)
	loansGroup.Post("/:id/repay", loanHandler.Repay)
	loansGroup.Get("/:id/receipts/:txn/pdf", loanHandler.ReceiptPDF)

	// Notificaciones (protegido)
	notifGroup := protected.Group("/notifications")
	notificationHandler := NewNotificationHandler(deps.Fanout)
	notifGroup.Post("/read", notificationHandler.MarkAllRead)
}
