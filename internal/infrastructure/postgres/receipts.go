package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jhoicas/credimarket-api/internal/application/loans"
)

// Compile-time: ReceiptRepository implementa loans.ReceiptArchiver.
var _ loans.ReceiptArchiver = (*ReceiptRepository)(nil)

// ReceiptRepository auditoría de recibos de abono. Los montos van en
// columnas NUMERIC y viajan como shopspring/decimal gracias al codec
// registrado en el pool.
type ReceiptRepository struct {
	pool *pgxpool.Pool
}

// NewReceiptRepository construye el repositorio con el pool.
func NewReceiptRepository(pool *pgxpool.Pool) *ReceiptRepository {
	return &ReceiptRepository{pool: pool}
}

// Archive persiste el recibo. La clave primaria es la referencia de
// transacción: un recibo jamás se sobreescribe.
func (r *ReceiptRepository) Archive(ctx context.Context, receipt loans.Receipt) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO repayment_receipts
		   (transaction_id, loan_id, amount, repaid, total_owed, status, issued_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (transaction_id) DO NOTHING`,
		receipt.TransactionID, receipt.LoanID,
		receipt.Amount, receipt.Repaid, receipt.TotalOwed,
		receipt.Status, receipt.IssuedAt)
	if err != nil {
		return fmt.Errorf("archivar recibo %s: %w", receipt.TransactionID, err)
	}
	return nil
}
