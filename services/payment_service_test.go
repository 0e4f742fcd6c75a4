package services

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/ohmiler/milerdev-sub000/model"
	"github.com/ohmiler/milerdev-sub000/services/gateway"
)

func newPaymentTestService(t *testing.T) (*PaymentService, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newTestDB(t)
	svc := NewPaymentService(db, nil, nil, nil, nil, nil, nil, nil)
	return svc, mock
}

func TestTransitionSuccess(t *testing.T) {
	svc, mock := newPaymentTestService(t)
	id := uuid.New()

	mock.ExpectExec(`UPDATE "payments" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := svc.Transition(context.Background(), id, model.PaymentStatusPending, model.PaymentStatusVerifying)
	if err != nil {
		t.Fatalf("Transition() error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestTransitionConflict(t *testing.T) {
	svc, mock := newPaymentTestService(t)
	id := uuid.New()

	// CAS matches zero rows because another writer already moved the payment
	mock.ExpectExec(`UPDATE "payments" SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT \* FROM "payments"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status"}).AddRow(id.String(), "completed"))

	err := svc.Transition(context.Background(), id, model.PaymentStatusPending, model.PaymentStatusCompleted)
	if !errors.Is(err, ErrConflict) {
		t.Errorf("Transition() error = %v, want ErrConflict", err)
	}
}

func TestTransitionNotFound(t *testing.T) {
	svc, mock := newPaymentTestService(t)
	id := uuid.New()

	mock.ExpectExec(`UPDATE "payments" SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT \* FROM "payments"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	err := svc.Transition(context.Background(), id, model.PaymentStatusPending, model.PaymentStatusFailed)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Transition() error = %v, want ErrNotFound", err)
	}
}

func TestExpireStale(t *testing.T) {
	svc, mock := newPaymentTestService(t)

	mock.ExpectExec(`UPDATE "payments" SET`).
		WillReturnResult(sqlmock.NewResult(0, 3))

	statuses := []model.PaymentStatus{model.PaymentStatusPending, model.PaymentStatusVerifying}
	count, err := svc.ExpireStale(context.Background(), statuses, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("ExpireStale() error: %v", err)
	}
	if count != 3 {
		t.Errorf("ExpireStale() = %d, want 3", count)
	}
}

func signNotification(n *gateway.Notification, serverKey string) {
	sum := sha512.Sum512([]byte(n.OrderID + n.StatusCode + n.GrossAmount + serverKey))
	n.SignatureKey = hex.EncodeToString(sum[:])
}

func TestCallbackBadSignatureHasNoSideEffects(t *testing.T) {
	db, mock := newTestDB(t)
	adapter := gateway.NewAdapter(gateway.Config{ServerKey: "test-server-key"})
	svc := NewPaymentService(db, nil, nil, nil, nil, nil, nil, adapter)

	n := gateway.Notification{
		OrderID:      uuid.New().String(),
		StatusCode:   "200",
		GrossAmount:  "500.00",
		SignatureKey: "definitely-not-a-signature",
	}

	_, err := svc.HandleGatewayCallback(context.Background(), n)
	if !errors.Is(err, gateway.ErrInvalidSignature) {
		t.Fatalf("HandleGatewayCallback() error = %v, want ErrInvalidSignature", err)
	}
	// No SQL expectations were set: the rejection must come before the
	// event log is written.
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unexpected database activity: %v", err)
	}
}

func newCheckoutTestService(t *testing.T) (*PaymentService, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newTestDB(t)
	catalog := NewCatalogService(db, nil)
	coupons := NewCouponService(db)
	pricing := NewPricingService(catalog, coupons)
	enrollments := NewEnrollmentService(db, catalog, nil)
	svc := NewPaymentService(db, pricing, coupons, enrollments, nil, nil, nil, nil)
	return svc, mock
}

func TestFreeCheckoutConsumesCouponSlot(t *testing.T) {
	svc, mock := newCheckoutTestService(t)

	mock.ExpectQuery(`SELECT \* FROM "courses"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "price", "currency", "published"}).
			AddRow(1, "Go Fundamentals", 50000, "THB", true))
	mock.ExpectQuery(`SELECT \* FROM "coupons"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "code", "discount_kind", "discount_value"}).
			AddRow(3, "FREE100", "percent", 100))
	// The coupon slot is consumed even though no payment row is created
	mock.ExpectExec(`UPDATE "coupons" SET "redeemed_count"=redeemed_count \+ 1`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO "enrollments"`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	result, err := svc.CreatePayment(context.Background(), CreatePaymentRequest{
		UserID:     9,
		Item:       ItemRef{Kind: ItemKindCourse, ID: 1},
		Method:     model.PaymentMethodBankTransfer,
		CouponCode: "FREE100",
	})
	if err != nil {
		t.Fatalf("CreatePayment() error: %v", err)
	}
	if result.Payment != nil {
		t.Error("free checkout created a payment row")
	}
	if result.Granted == nil || len(result.Granted.NewlyEnrolled) != 1 {
		t.Errorf("Granted = %+v, want one newly enrolled course", result.Granted)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestFreeCheckoutExhaustedCouponRejected(t *testing.T) {
	svc, mock := newCheckoutTestService(t)

	mock.ExpectQuery(`SELECT \* FROM "courses"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "price", "currency", "published"}).
			AddRow(1, "Go Fundamentals", 50000, "THB", true))
	mock.ExpectQuery(`SELECT \* FROM "coupons"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "code", "discount_kind", "discount_value"}).
			AddRow(3, "FREE100", "percent", 100))
	mock.ExpectExec(`UPDATE "coupons" SET "redeemed_count"=redeemed_count \+ 1`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := svc.CreatePayment(context.Background(), CreatePaymentRequest{
		UserID:     9,
		Item:       ItemRef{Kind: ItemKindCourse, ID: 1},
		Method:     model.PaymentMethodBankTransfer,
		CouponCode: "FREE100",
	})
	if !errors.Is(err, ErrCouponInvalid) {
		t.Errorf("CreatePayment() error = %v, want ErrCouponInvalid", err)
	}
}

func TestCardCheckoutRejectsFractionalAmount(t *testing.T) {
	svc, mock := newCheckoutTestService(t)

	// ฿499.99 cannot be charged in whole baht
	mock.ExpectQuery(`SELECT \* FROM "courses"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "price", "currency", "published"}).
			AddRow(1, "Go Fundamentals", 49999, "THB", true))

	_, err := svc.CreatePayment(context.Background(), CreatePaymentRequest{
		UserID: 9,
		Item:   ItemRef{Kind: ItemKindCourse, ID: 1},
		Method: model.PaymentMethodCardGateway,
	})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("CreatePayment() error = %v, want ValidationError", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCallbackReplayRerunsGrant(t *testing.T) {
	db, mock := newTestDB(t)
	catalog := NewCatalogService(db, nil)
	enrollments := NewEnrollmentService(db, catalog, nil)
	adapter := gateway.NewAdapter(gateway.Config{ServerKey: "test-server-key"})
	svc := NewPaymentService(db, nil, nil, enrollments, nil, nil, nil, adapter)

	id := uuid.New()
	n := gateway.Notification{
		OrderID:           id.String(),
		StatusCode:        "200",
		GrossAmount:       "500.00",
		TransactionStatus: "settlement",
	}
	signNotification(&n, "test-server-key")

	completedRow := func() *sqlmock.Rows {
		return sqlmock.NewRows([]string{"id", "status", "user_id", "course_id"}).
			AddRow(id.String(), "completed", 9, 42)
	}

	mock.ExpectQuery(`INSERT INTO "payment_gateway_events"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectQuery(`SELECT \* FROM "payments"`).WillReturnRows(completedRow())
	// CAS into completed loses: the payment is already there
	mock.ExpectExec(`UPDATE "payments" SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT \* FROM "payments"`).WillReturnRows(completedRow())
	mock.ExpectQuery(`SELECT \* FROM "payments"`).WillReturnRows(completedRow())
	// The replay re-runs the grant; the course is already owned, so the
	// conflict-tolerant insert affects nothing
	mock.ExpectExec(`INSERT INTO "enrollments"`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`UPDATE "payment_gateway_events"`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ack, err := svc.HandleGatewayCallback(context.Background(), n)
	if err != nil {
		t.Fatalf("HandleGatewayCallback() error: %v", err)
	}
	if ack.Status != "ok" || ack.Reason != "already processed" {
		t.Errorf("ack = %+v, want ok/already processed", ack)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCallbackUnknownOrderAcknowledged(t *testing.T) {
	db, mock := newTestDB(t)
	adapter := gateway.NewAdapter(gateway.Config{ServerKey: "test-server-key"})
	svc := NewPaymentService(db, nil, nil, nil, nil, nil, nil, adapter)

	n := gateway.Notification{
		OrderID:           "ORDER-from-another-system",
		StatusCode:        "200",
		GrossAmount:       "500.00",
		TransactionStatus: "settlement",
	}
	signNotification(&n, "test-server-key")

	mock.ExpectQuery(`INSERT INTO "payment_gateway_events"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectExec(`UPDATE "payment_gateway_events"`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ack, err := svc.HandleGatewayCallback(context.Background(), n)
	if err != nil {
		t.Fatalf("HandleGatewayCallback() error: %v", err)
	}
	if ack.Status != "ignored" {
		t.Errorf("ack status = %q, want ignored", ack.Status)
	}
}
