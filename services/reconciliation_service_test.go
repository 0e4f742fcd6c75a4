package services

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/ohmiler/milerdev-sub000/model"
)

func TestClampLookBack(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{0, 7},
		{-5, 7},
		{7, 7},
		{30, 30},
		{90, 90},
		{365, 90},
	}
	for _, tt := range tests {
		if got := ClampLookBack(tt.in); got != tt.want {
			t.Errorf("ClampLookBack(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestSummaryFillsAllBuckets(t *testing.T) {
	db, mock := newTestDB(t)
	svc := NewReconciliationService(db, nil)

	rows := sqlmock.NewRows([]string{"status", "count"}).
		AddRow("pending", 4).
		AddRow("completed", 12)
	mock.ExpectQuery(`SELECT status, COUNT\(\*\) AS count FROM "payments"`).
		WillReturnRows(rows)

	summary, err := svc.Summary(context.Background(), 30)
	if err != nil {
		t.Fatalf("Summary() error: %v", err)
	}
	if summary[model.PaymentStatusPending] != 4 {
		t.Errorf("pending = %d, want 4", summary[model.PaymentStatusPending])
	}
	if summary[model.PaymentStatusCompleted] != 12 {
		t.Errorf("completed = %d, want 12", summary[model.PaymentStatusCompleted])
	}
	// Buckets with no payments must still be present, reported as zero
	if count, ok := summary[model.PaymentStatusRefunded]; !ok || count != 0 {
		t.Errorf("refunded = %d (present=%v), want explicit 0", count, ok)
	}
	if len(summary) != 5 {
		t.Errorf("summary has %d buckets, want 5", len(summary))
	}
}

func TestBulkMarkFailedPartialOutcomes(t *testing.T) {
	db, mock := newTestDB(t)
	payments := NewPaymentService(db, nil, nil, nil, nil, nil, nil, nil)
	svc := NewReconciliationService(db, payments)

	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}

	// First id moves to failed
	mock.ExpectExec(`UPDATE "payments" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO "payment_audit_logs"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	// Second id was concurrently completed: the CAS matches nothing
	mock.ExpectExec(`UPDATE "payments" SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT \* FROM "payments"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status"}).AddRow(ids[1].String(), "completed"))
	// Third id moves to failed
	mock.ExpectExec(`UPDATE "payments" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO "payment_audit_logs"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(2))

	outcomes := svc.BulkMarkFailed(context.Background(), ids, 1)
	if len(outcomes) != 3 {
		t.Fatalf("got %d outcomes, want 3", len(outcomes))
	}
	if !outcomes[0].OK || !outcomes[2].OK {
		t.Errorf("outcomes[0].OK = %v, outcomes[2].OK = %v, want both true", outcomes[0].OK, outcomes[2].OK)
	}
	if outcomes[1].OK || outcomes[1].Error != "payment was already processed" {
		t.Errorf("outcomes[1] = %+v, want conflict", outcomes[1])
	}
}

func TestApproveCompletedRetriesGrant(t *testing.T) {
	db, mock := newTestDB(t)
	catalog := NewCatalogService(db, nil)
	enrollments := NewEnrollmentService(db, catalog, nil)
	payments := NewPaymentService(db, nil, nil, enrollments, nil, nil, nil, nil)
	svc := NewReconciliationService(db, payments)

	id := uuid.New()

	// The payment completed earlier but its enrollment grant failed;
	// approve re-runs the grant instead of refusing.
	mock.ExpectQuery(`SELECT \* FROM "payments"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status", "user_id", "course_id"}).
			AddRow(id.String(), "completed", 9, 42))
	mock.ExpectExec(`INSERT INTO "enrollments"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE "payments" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1)) // retry bookkeeping
	mock.ExpectQuery(`INSERT INTO "payment_audit_logs"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

	payment, granted, err := svc.Approve(context.Background(), id, 1, "grant retry")
	if err != nil {
		t.Fatalf("Approve() error: %v", err)
	}
	if payment.Status != model.PaymentStatusCompleted {
		t.Errorf("status = %s, want completed", payment.Status)
	}
	if granted == nil || len(granted.NewlyEnrolled) != 1 {
		t.Errorf("granted = %+v, want one newly enrolled course", granted)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestApproveConflictLeavesRetryCountAlone(t *testing.T) {
	db, mock := newTestDB(t)
	payments := NewPaymentService(db, nil, nil, nil, nil, nil, nil, nil)
	svc := NewReconciliationService(db, payments)

	id := uuid.New()

	mock.ExpectQuery(`SELECT \* FROM "payments"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status"}).AddRow(id.String(), "verifying"))
	// Auto-resolve wins the race: the CAS matches nothing
	mock.ExpectExec(`UPDATE "payments" SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT \* FROM "payments"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status"}).AddRow(id.String(), "failed"))

	_, _, err := svc.Approve(context.Background(), id, 1, "")
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("Approve() error = %v, want ErrConflict", err)
	}
	// No retry-count update was expected or issued
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unexpected database activity: %v", err)
	}
}

func TestExportCSVHeader(t *testing.T) {
	db, mock := newTestDB(t)
	svc := NewReconciliationService(db, nil)

	mock.ExpectQuery(`SELECT count\(\*\) FROM "payments"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`SELECT \* FROM "payments"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	var buf bytes.Buffer
	if err := svc.ExportCSV(context.Background(), model.PaymentStatusVerifying, 30, &buf); err != nil {
		t.Fatalf("ExportCSV() error: %v", err)
	}

	got := strings.TrimSpace(buf.String())
	want := "payment_id,created_at,status,method,amount,currency,user_email,item_kind,item_title,external_ref,retry_count"
	if got != want {
		t.Errorf("csv header = %q, want %q", got, want)
	}
}
