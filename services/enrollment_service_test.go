package services

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/ohmiler/milerdev-sub000/model"
)

func TestGrantIsIdempotent(t *testing.T) {
	db, mock := newTestDB(t)
	svc := NewEnrollmentService(db, NewCatalogService(db, nil), nil)

	courseID := uint(42)
	payment := &model.Payment{
		ID:       uuid.New(),
		UserID:   9,
		CourseID: &courseID,
		Status:   model.PaymentStatusCompleted,
	}

	// First grant inserts the row
	mock.ExpectExec(`INSERT INTO "enrollments"`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	first, err := svc.Grant(context.Background(), payment)
	if err != nil {
		t.Fatalf("Grant() error: %v", err)
	}
	if len(first.NewlyEnrolled) != 1 || first.NewlyEnrolled[0] != courseID {
		t.Errorf("NewlyEnrolled = %v, want [%d]", first.NewlyEnrolled, courseID)
	}

	// Second grant over the same payment: the conflict-tolerant insert
	// affects nothing and the result reports the course as already owned
	mock.ExpectExec(`INSERT INTO "enrollments"`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	second, err := svc.Grant(context.Background(), payment)
	if err != nil {
		t.Fatalf("second Grant() error: %v", err)
	}
	if len(second.NewlyEnrolled) != 0 {
		t.Errorf("second NewlyEnrolled = %v, want empty", second.NewlyEnrolled)
	}
	if len(second.AlreadyOwned) != 1 || second.AlreadyOwned[0] != courseID {
		t.Errorf("second AlreadyOwned = %v, want [%d]", second.AlreadyOwned, courseID)
	}
}

func TestGrantRequiresCompletedPayment(t *testing.T) {
	db, _ := newTestDB(t)
	svc := NewEnrollmentService(db, NewCatalogService(db, nil), nil)

	courseID := uint(42)
	payment := &model.Payment{
		ID:       uuid.New(),
		UserID:   9,
		CourseID: &courseID,
		Status:   model.PaymentStatusVerifying,
	}

	if _, err := svc.Grant(context.Background(), payment); err == nil {
		t.Error("Grant() accepted a payment that is not completed")
	}
}
