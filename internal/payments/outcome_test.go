package payments

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"

	"github.com/wolfman30/patient-portal/internal/portalapi"
)

func TestPostgresOutcomeRecorder(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	recorder := newOutcomeRecorderWithExec(mock)
	id := uuid.New()
	created := time.Date(2026, 10, 14, 9, 30, 0, 0, time.UTC)

	mock.ExpectExec("INSERT INTO payment_outcomes").
		WithArgs(id, "page-1", "patient-1", "Cash", "receipt_failed", 55.0, "receipt write failed", created).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = recorder.Record(context.Background(), Outcome{
		ID:        id,
		PageID:    "page-1",
		PatientID: "patient-1",
		Method:    portalapi.MethodCash,
		Status:    OutcomeReceiptFailed,
		Amount:    55,
		Message:   "receipt write failed",
		CreatedAt: created,
	})
	if err != nil {
		t.Fatalf("Record returned error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresOutcomeRecorderFillsDefaults(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	recorder := newOutcomeRecorderWithExec(mock)
	mock.ExpectExec("INSERT INTO payment_outcomes").
		WithArgs(pgxmock.AnyArg(), "page-2", "patient-2", "CreditCard", "succeeded", 120.5, "", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = recorder.Record(context.Background(), Outcome{
		PageID:    "page-2",
		PatientID: "patient-2",
		Method:    portalapi.MethodCreditCard,
		Status:    OutcomeSucceeded,
		Amount:    120.5,
	})
	if err != nil {
		t.Fatalf("Record returned error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresOutcomeRecorderWrapsError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	recorder := newOutcomeRecorderWithExec(mock)
	mock.ExpectExec("INSERT INTO payment_outcomes").WillReturnError(errors.New("connection reset"))

	err = recorder.Record(context.Background(), Outcome{PageID: "page-3", Status: OutcomeError})
	if err == nil || !strings.Contains(err.Error(), "record outcome") {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}
