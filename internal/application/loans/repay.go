// Package loans implementa el motor de pagos sobre el libro simulado.
package loans

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/credimarket-api/internal/application/notifications"
	"github.com/jhoicas/credimarket-api/internal/domain"
	"github.com/jhoicas/credimarket-api/internal/domain/entity"
	"github.com/jhoicas/credimarket-api/internal/domain/ledger"
	"github.com/jhoicas/credimarket-api/internal/domain/store"
	"github.com/jhoicas/credimarket-api/pkg/logger"
	"github.com/jhoicas/credimarket-api/pkg/money"
)

// Receipt constancia de un abono, referencia opaca para auditoría y UI.
type Receipt struct {
	TransactionID string          `json:"transactionId"`
	LoanID        string          `json:"loanId"`
	Amount        decimal.Decimal `json:"amount"`
	Repaid        decimal.Decimal `json:"repaid"`
	TotalOwed     decimal.Decimal `json:"totalOwed"`
	Status        string          `json:"status"`
	IssuedAt      time.Time       `json:"issuedAt"`
}

// ReceiptArchiver persiste recibos para auditoría (tabla NUMERIC en el
// adaptador Postgres). Puede ser nil.
type ReceiptArchiver interface {
	Archive(ctx context.Context, r Receipt) error
}

// Terms parámetros de la simulación de amortización. El LoanActivityItem no
// guarda tasa ni plazo, así que el motor los recibe configurados.
type Terms struct {
	RatePercent decimal.Decimal
	TermMonths  int
}

// Engine aplica abonos con recorte exacto y promoción de estado.
type Engine struct {
	store   store.Store
	terms   Terms
	fanout  *notifications.Fanout
	archive ReceiptArchiver
	log     *logger.Logger

	// seen dedup por clave de idempotencia: un retry con la misma clave
	// devuelve el recibo original sin recontar. Sin clave, la operación es
	// no idempotente y el dedup queda a cargo del caller (política
	// documentada del contrato).
	mu     sync.Mutex
	seen   map[string]Receipt
	issued map[string]Receipt // por referencia de transacción, para consulta del recibo
}

// NewEngine construye el motor. archive puede ser nil.
func NewEngine(st store.Store, terms Terms, fanout *notifications.Fanout, archive ReceiptArchiver, log *logger.Logger) *Engine {
	return &Engine{
		store:   st,
		terms:   terms,
		fanout:  fanout,
		archive: archive,
		log:     log,
		seen:    make(map[string]Receipt),
		issued:  make(map[string]Receipt),
	}
}

// TotalOwed total adeudado de un crédito bajo los términos simulados.
func (e *Engine) TotalOwed(principal decimal.Decimal) decimal.Decimal {
	return ledger.TotalOwed(principal, e.terms.RatePercent, e.terms.TermMonths)
}

// Repay aplica un abono al crédito:
//
//   - amount ≤ 0 → ErrValidation; crédito inexistente → ErrNotFound; crédito
//     ya saldado → ErrValidation (nunca se empuja repaid por encima del total).
//   - repaid crece monótonamente y se recorta exactamente en totalOwed; al
//     llegar al tope el estado pasa a Paid Off. Delinquent lo asigna un
//     proceso externo y aquí jamás se toca.
//   - txnID opcional: con clave repetida se devuelve el recibo original.
func (e *Engine) Repay(ctx context.Context, loanID string, amount decimal.Decimal, txnID string) (Receipt, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return Receipt{}, fmt.Errorf("%w: el abono debe ser positivo", domain.ErrValidation)
	}
	if loanID == "" {
		return Receipt{}, fmt.Errorf("%w: loanId vacío", domain.ErrValidation)
	}

	if txnID != "" {
		e.mu.Lock()
		if r, ok := e.seen[txnID]; ok {
			e.mu.Unlock()
			return r, nil
		}
		e.mu.Unlock()
	}

	coll := e.store.Collection(store.LoanActivity)
	doc, err := coll.Get(ctx, loanID)
	if errors.Is(err, domain.ErrNotFound) {
		return Receipt{}, fmt.Errorf("%w: crédito %s", domain.ErrNotFound, loanID)
	}
	if err != nil {
		return Receipt{}, fmt.Errorf("leer crédito %s: %w", loanID, err)
	}

	var item entity.LoanActivityItem
	if err := doc.DataTo(&item); err != nil {
		return Receipt{}, fmt.Errorf("decodificar crédito %s: %w", loanID, err)
	}
	item.ID = doc.ID

	totalOwed := e.TotalOwed(item.Principal)
	if item.Status == entity.LoanPaidOff || item.Repaid.GreaterThanOrEqual(totalOwed) {
		return Receipt{}, fmt.Errorf("%w: el crédito %s ya está saldado", domain.ErrValidation, loanID)
	}

	newRepaid, paidOff := ledger.Cap(item.Repaid, amount, totalOwed)
	applied := newRepaid.Sub(item.Repaid)

	fields := map[string]any{
		"repaid": newRepaid,
		// El esquema plano acumula todo el interés del plazo desde el primer
		// abono: interestAccrued = totalOwed − principal.
		"interestAccrued": totalOwed.Sub(item.Principal),
	}
	if paidOff {
		fields["status"] = entity.LoanPaidOff
	}
	if err := coll.Update(ctx, loanID, fields); err != nil {
		return Receipt{}, fmt.Errorf("escribir abono en %s: %w", loanID, err)
	}

	status := item.Status
	if paidOff {
		status = entity.LoanPaidOff
	}
	receipt := Receipt{
		TransactionID: uuid.New().String(),
		LoanID:        loanID,
		Amount:        applied,
		Repaid:        newRepaid,
		TotalOwed:     totalOwed,
		Status:        status,
		IssuedAt:      time.Now().UTC(),
	}

	e.mu.Lock()
	if txnID != "" {
		e.seen[txnID] = receipt
	}
	e.issued[receipt.TransactionID] = receipt
	e.mu.Unlock()

	if e.archive != nil {
		if err := e.archive.Archive(ctx, receipt); err != nil {
			// La auditoría es secundaria al abono: se registra y se continúa.
			e.log.Error().Err(err).Str("loan", loanID).Msg("archivar recibo falló")
		}
	}

	e.notifyPartner(ctx, &item, receipt, paidOff)

	e.log.Info().
		Str("loan", loanID).
		Str("txn", receipt.TransactionID).
		Str("repaid", newRepaid.String()).
		Bool("paid_off", paidOff).
		Msg("abono aplicado")
	return receipt, nil
}

// Receipt devuelve un recibo emitido por su referencia de transacción.
func (e *Engine) Receipt(transactionID string) (Receipt, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.issued[transactionID]
	return r, ok
}

// Progress fracción pagada de un crédito para display.
func (e *Engine) Progress(item *entity.LoanActivityItem) decimal.Decimal {
	return ledger.Progress(item.Repaid, e.TotalOwed(item.Principal))
}

func (e *Engine) notifyPartner(ctx context.Context, item *entity.LoanActivityItem, r Receipt, paidOff bool) {
	title := "Abono recibido"
	msg := fmt.Sprintf("%s abonó %s a su crédito.", item.Borrower.DisplayName, money.Format(r.Amount))
	if paidOff {
		title = "Crédito saldado"
		msg = fmt.Sprintf("%s saldó su crédito de %s.", item.Borrower.DisplayName, money.Format(item.Principal))
	}
	if err := e.fanout.Notify(ctx, entity.AudiencePartner, item.PartnerID, entity.CategoryRepayment, title, msg); err != nil {
		e.log.Error().Err(err).Str("loan", item.ID).Msg("notificar abono falló")
	}
}
