package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/patient-portal/internal/portalapi"
)

// OutcomeStatus classifies a submit attempt.
type OutcomeStatus string

const (
	// OutcomeRejected means a local precondition blocked the attempt.
	OutcomeRejected OutcomeStatus = "rejected"
	// OutcomeThrottled means the attempt was over the velocity limit.
	OutcomeThrottled OutcomeStatus = "throttled"
	// OutcomeFailed means the remote API declined the payment.
	OutcomeFailed OutcomeStatus = "failed"
	// OutcomeError means the remote API could not be reached.
	OutcomeError     OutcomeStatus = "error"
	OutcomeSucceeded OutcomeStatus = "succeeded"
	// OutcomeReceiptFailed means a cash payment succeeded but its receipt
	// could not be filed.
	OutcomeReceiptFailed OutcomeStatus = "receipt_failed"
)

// Outcome is one row of the submit ledger. It never holds card data.
type Outcome struct {
	ID        uuid.UUID
	PageID    string
	PatientID string
	Method    portalapi.PaymentMethod
	Status    OutcomeStatus
	Amount    float64
	Message   string
	CreatedAt time.Time
}

// OutcomeRecorder stores submit outcomes.
type OutcomeRecorder interface {
	Record(ctx context.Context, outcome Outcome) error
}

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, Outcome) error { return nil }

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresOutcomeRecorder writes outcomes to the payment_outcomes table.
type PostgresOutcomeRecorder struct {
	db execer
}

// NewPostgresOutcomeRecorder creates a recorder backed by pgx.
func NewPostgresOutcomeRecorder(pool *pgxpool.Pool) *PostgresOutcomeRecorder {
	if pool == nil {
		panic("payments: pgx pool required")
	}
	return &PostgresOutcomeRecorder{db: pool}
}

func newOutcomeRecorderWithExec(db execer) *PostgresOutcomeRecorder {
	return &PostgresOutcomeRecorder{db: db}
}

func (r *PostgresOutcomeRecorder) Record(ctx context.Context, o Outcome) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO payment_outcomes (id, page_id, patient_id, method, status, amount, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	if _, err := r.db.Exec(ctx, query,
		o.ID, o.PageID, o.PatientID, string(o.Method), string(o.Status), o.Amount, o.Message, o.CreatedAt,
	); err != nil {
		return fmt.Errorf("payments: record outcome: %w", err)
	}
	return nil
}
