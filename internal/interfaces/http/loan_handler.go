package http

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/credimarket-api/internal/application/dto"
	"github.com/jhoicas/credimarket-api/internal/application/loans"
	"github.com/jhoicas/credimarket-api/internal/application/session"
	"github.com/jhoicas/credimarket-api/internal/domain"
	"github.com/jhoicas/credimarket-api/internal/domain/entity"
	"github.com/jhoicas/credimarket-api/internal/domain/store"
)

// ReceiptPDFGenerator genera la constancia gráfica de un abono.
type ReceiptPDFGenerator interface {
	GenerateReceiptPDF(ctx context.Context, receipt loans.Receipt, item *entity.LoanActivityItem) ([]byte, error)
}

// LoanHandler libro de créditos y abonos.
type LoanHandler struct {
	engine   *loans.Engine
	registry *session.Registry
	store    store.Store
	pdf      ReceiptPDFGenerator
}

// NewLoanHandler construye el handler.
func NewLoanHandler(engine *loans.Engine, registry *session.Registry, st store.Store, pdf ReceiptPDFGenerator) *LoanHandler {
	return &LoanHandler{engine: engine, registry: registry, store: st, pdf: pdf}
}

// List GET /api/loans — proyección del libro del aliado. La sesión se abre
// perezosamente igual que en /api/session: sin sesión no se responde un
// libro vacío falso.
func (h *LoanHandler) List(c *fiber.Ctx) error {
	s, err := currentSession(c, h.registry)
	if err != nil {
		return fail(c, err)
	}
	if s.Loans == nil {
		return c.JSON([]dto.LoanResponse{})
	}
	items := s.Loans.Latest()
	out := make([]dto.LoanResponse, 0, len(items))
	for i := range items {
		it := items[i]
		out = append(out, dto.LoanResponse{
			ID:              it.ID,
			UserID:          it.UserID,
			DisplayName:     it.Borrower.DisplayName,
			PartnerID:       it.PartnerID,
			Principal:       it.Principal,
			Repaid:          it.Repaid,
			InterestAccrued: it.InterestAccrued,
			TotalOwed:       h.engine.TotalOwed(it.Principal),
			Progress:        h.engine.Progress(&it),
			Status:          it.Status,
			CreatedAt:       it.CreatedAt,
		})
	}
	return c.JSON(out)
}

// Repay POST /api/loans/:id/repay — aplica un abono. El header
// Idempotency-Key, si viene, deduplica reintentos: la misma clave devuelve
// el recibo original sin recontar.
func (h *LoanHandler) Repay(c *fiber.Ctx) error {
	var req dto.RepayRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "BAD_BODY", Message: "cuerpo JSON inválido"})
	}
	receipt, err := h.engine.Repay(c.Context(), c.Params("id"), req.Amount, c.Get("Idempotency-Key"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(dto.ReceiptResponse{
		TransactionID: receipt.TransactionID,
		LoanID:        receipt.LoanID,
		Amount:        receipt.Amount,
		Repaid:        receipt.Repaid,
		TotalOwed:     receipt.TotalOwed,
		Status:        receipt.Status,
		IssuedAt:      receipt.IssuedAt,
	})
}

// ReceiptPDF GET /api/loans/:id/receipts/:txn/pdf — constancia en PDF.
func (h *LoanHandler) ReceiptPDF(c *fiber.Ctx) error {
	receipt, ok := h.engine.Receipt(c.Params("txn"))
	if !ok || receipt.LoanID != c.Params("id") {
		return fail(c, fmt.Errorf("%w: recibo %s", domain.ErrNotFound, c.Params("txn")))
	}

	doc, err := h.store.Collection(store.LoanActivity).Get(c.Context(), receipt.LoanID)
	if errors.Is(err, domain.ErrNotFound) {
		return fail(c, fmt.Errorf("%w: crédito %s", domain.ErrNotFound, receipt.LoanID))
	}
	if err != nil {
		return fail(c, err)
	}
	var item entity.LoanActivityItem
	if err := doc.DataTo(&item); err != nil {
		return fail(c, err)
	}
	item.ID = doc.ID

	bytes, err := h.pdf.GenerateReceiptPDF(c.Context(), receipt, &item)
	if err != nil {
		return fail(c, err)
	}
	c.Set("Content-Type", "application/pdf")
	c.Set("Content-Disposition", `attachment; filename="recibo-`+receipt.TransactionID+`.pdf"`)
	return c.Send(bytes)
}
