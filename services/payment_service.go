package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/ohmiler/milerdev-sub000/model"
	"github.com/ohmiler/milerdev-sub000/services/gateway"
	"github.com/ohmiler/milerdev-sub000/services/slipverify"
)

// SlipVerifier is the contract the ledger needs from the slip verification
// adapter. One bounded synchronous call; retry policy stays here.
type SlipVerifier interface {
	Verify(ctx context.Context, req slipverify.VerifyRequest) (*slipverify.Verdict, error)
}

// SlipStorage stores uploaded slip images and hands back opaque keys
type SlipStorage interface {
	Upload(ctx context.Context, paymentID string, data []byte, contentType string) (string, error)
}

// CheckoutGateway is the contract the ledger needs from the card gateway
type CheckoutGateway interface {
	CreateSession(payment *model.Payment, itemTitle string, customer gateway.Customer) (*gateway.Session, error)
	VerifySignature(n gateway.Notification) error
}

// PaymentService owns the payment state machine. Every transition is a
// compare-and-swap keyed on (payment id, expected prior status), so
// concurrent writers cannot both succeed and at most one transition into
// completed ever lands per payment.
type PaymentService struct {
	db          *gorm.DB
	pricing     *PricingService
	coupons     *CouponService
	enrollments *EnrollmentService
	notifier    *NotificationService
	verifier    SlipVerifier
	slips       SlipStorage
	gateway     CheckoutGateway
}

// NewPaymentService creates a new payment service
func NewPaymentService(
	db *gorm.DB,
	pricing *PricingService,
	coupons *CouponService,
	enrollments *EnrollmentService,
	notifier *NotificationService,
	verifier SlipVerifier,
	slips SlipStorage,
	checkoutGateway CheckoutGateway,
) *PaymentService {
	return &PaymentService{
		db:          db,
		pricing:     pricing,
		coupons:     coupons,
		enrollments: enrollments,
		notifier:    notifier,
		verifier:    verifier,
		slips:       slips,
		gateway:     checkoutGateway,
	}
}

// CreatePaymentRequest represents one checkout submission
type CreatePaymentRequest struct {
	UserID        uint
	Item          ItemRef
	Method        model.PaymentMethod
	CouponCode    string
	CustomerName  string
	CustomerEmail string
}

// CreatePaymentResult is what checkout returns. Exactly one of Payment or
// Granted is set: a final price of zero bypasses the payment machine and
// enrolls directly.
type CreatePaymentResult struct {
	Quote       *Quote         `json:"quote"`
	Payment     *model.Payment `json:"payment,omitempty"`
	Granted     *GrantResult   `json:"granted,omitempty"`
	RedirectURL string         `json:"redirect_url,omitempty"`
	SnapToken   string         `json:"snap_token,omitempty"`
}

// CreatePayment resolves the price and opens a payment in pending. Coupon
// redemption and payment creation commit in one transaction: two checkouts
// racing for a coupon's last slot cannot both get it.
func (s *PaymentService) CreatePayment(ctx context.Context, req CreatePaymentRequest) (*CreatePaymentResult, error) {
	switch req.Method {
	case model.PaymentMethodCardGateway, model.PaymentMethodBankTransfer:
	default:
		return nil, &ValidationError{Field: "method", Reason: fmt.Sprintf("unsupported payment method %q", req.Method)}
	}

	quote, err := s.pricing.Resolve(ctx, req.Item, req.CouponCode)
	if err != nil {
		return nil, err
	}

	// The gateway prices in whole baht; a sub-baht amount would be
	// silently under-charged, so card checkout rejects it up front.
	if req.Method == model.PaymentMethodCardGateway && quote.FinalPrice%100 != 0 {
		return nil, &ValidationError{Field: "method", Reason: "amount is not a whole-baht value, pay by bank transfer instead"}
	}

	// Free after discount: enroll directly, no payment row. The coupon
	// slot is still consumed, a free checkout is its redemption moment.
	if quote.FinalPrice == 0 {
		if quote.CouponID != nil {
			if err := s.coupons.Redeem(ctx, s.db, *quote.CouponID); err != nil {
				return nil, err
			}
		}
		granted, err := s.enrollments.EnrollFree(ctx, req.UserID, quote.Item)
		if err != nil {
			return nil, err
		}
		return &CreatePaymentResult{Quote: quote, Granted: granted}, nil
	}

	payment := &model.Payment{
		ID:       uuid.New(),
		UserID:   req.UserID,
		Amount:   quote.FinalPrice,
		Currency: quote.Currency,
		Method:   req.Method,
		Status:   model.PaymentStatusPending,
		CouponID: quote.CouponID,
	}
	switch quote.Item.Kind {
	case ItemKindCourse:
		payment.CourseID = &quote.Item.ID
	case ItemKindBundle:
		payment.BundleID = &quote.Item.ID
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if quote.CouponID != nil {
			if err := s.coupons.Redeem(ctx, tx, *quote.CouponID); err != nil {
				return err
			}
		}
		if err := tx.Create(payment).Error; err != nil {
			return fmt.Errorf("failed to create payment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := &CreatePaymentResult{Quote: quote, Payment: payment}

	if req.Method == model.PaymentMethodCardGateway {
		session, err := s.gateway.CreateSession(payment, quote.Item.Title, gateway.Customer{
			Name:  req.CustomerName,
			Email: req.CustomerEmail,
		})
		if err != nil {
			// The money can never arrive without a session, so the
			// payment fails observably instead of hanging in pending.
			log.Printf("[PAYMENT] Gateway session for %s failed: %v", payment.ID, err)
			if ferr := s.Fail(ctx, payment.ID, model.PaymentStatusPending); ferr != nil {
				log.Printf("[PAYMENT] Could not fail payment %s after gateway error: %v", payment.ID, ferr)
			}
			return nil, &ExternalServiceError{Service: "gateway", Err: err}
		}

		if err := s.db.WithContext(ctx).
			Model(&model.Payment{}).
			Where("id = ?", payment.ID).
			Update("external_ref", session.OrderID).Error; err != nil {
			return nil, fmt.Errorf("failed to store gateway reference: %w", err)
		}
		payment.ExternalRef = session.OrderID
		result.RedirectURL = session.RedirectURL
		result.SnapToken = session.Token
	}

	return result, nil
}

// GetPayment loads one payment by id
func (s *PaymentService) GetPayment(ctx context.Context, id uuid.UUID) (*model.Payment, error) {
	var payment model.Payment
	if err := s.db.WithContext(ctx).First(&payment, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load payment %s: %w", id, err)
	}
	return &payment, nil
}

// ListForUser returns a user's payments, newest first
func (s *PaymentService) ListForUser(ctx context.Context, userID uint, limit, offset int) ([]model.Payment, int64, error) {
	query := s.db.WithContext(ctx).Model(&model.Payment{}).Where("user_id = ?", userID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count payments: %w", err)
	}

	if limit <= 0 || limit > 100 {
		limit = 20
	}

	var payments []model.Payment
	if err := query.Preload("Course").Preload("Bundle").
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&payments).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list payments: %w", err)
	}
	return payments, total, nil
}

// Transition moves a payment from one status to another with a
// compare-and-swap on the stored status. A concurrent writer that got there
// first makes the update match zero rows; the caller gets ErrConflict and
// must re-read before deciding anything.
func (s *PaymentService) Transition(ctx context.Context, id uuid.UUID, from, to model.PaymentStatus) error {
	return s.transition(ctx, id, from, to, nil)
}

func (s *PaymentService) transition(ctx context.Context, id uuid.UUID, from, to model.PaymentStatus, extra map[string]interface{}) error {
	updates := map[string]interface{}{"status": to}
	for k, v := range extra {
		updates[k] = v
	}

	result := s.db.WithContext(ctx).
		Model(&model.Payment{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to transition payment %s %s->%s: %w", id, from, to, result.Error)
	}
	if result.RowsAffected == 0 {
		// Either the payment does not exist or someone else moved it.
		if _, err := s.GetPayment(ctx, id); err != nil {
			return err
		}
		return ErrConflict
	}
	return nil
}

// Complete performs the transition into completed and grants enrollments.
// The two are one logical unit, but deliberately enrollment-retriable: once
// the CAS into completed lands the money has been received, so a failed
// grant is retried (Grant is idempotent) rather than the payment rolled
// back.
func (s *PaymentService) Complete(ctx context.Context, id uuid.UUID, from model.PaymentStatus) (*model.Payment, *GrantResult, error) {
	if err := s.transition(ctx, id, from, model.PaymentStatusCompleted, nil); err != nil {
		return nil, nil, err
	}

	payment, err := s.GetPayment(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	granted, err := s.enrollments.Grant(ctx, payment)
	if err != nil {
		// Payment stays completed. The operator retry path re-runs the
		// grant; duplicates are impossible by the (user, course) key.
		log.Printf("[PAYMENT] Enrollment grant for %s failed, needs retry: %v", id, err)
		return payment, nil, fmt.Errorf("payment %s completed but enrollment grant failed: %w", id, err)
	}

	if s.notifier != nil {
		s.notifier.NotifyPaymentCompleted(ctx, payment)
	}

	return payment, granted, nil
}

// RetryGrant re-runs the enrollment grant for a payment that is already
// completed. Granting is idempotent, so it is safe to call without knowing
// whether the original grant ran; courses already owned report as such.
func (s *PaymentService) RetryGrant(ctx context.Context, payment *model.Payment) (*GrantResult, error) {
	if payment.Status != model.PaymentStatusCompleted {
		return nil, ErrConflict
	}
	granted, err := s.enrollments.Grant(ctx, payment)
	if err != nil {
		return nil, fmt.Errorf("enrollment grant retry for %s failed: %w", payment.ID, err)
	}
	return granted, nil
}

// Fail moves a payment into failed from the given prior status and emits
// the failure notification.
func (s *PaymentService) Fail(ctx context.Context, id uuid.UUID, from model.PaymentStatus) error {
	if err := s.transition(ctx, id, from, model.PaymentStatusFailed, nil); err != nil {
		return err
	}
	if s.notifier != nil {
		if payment, err := s.GetPayment(ctx, id); err == nil {
			s.notifier.NotifyPaymentFailed(ctx, payment)
		}
	}
	return nil
}

// AttachSlip stores an uploaded transfer slip, moves the payment into
// verifying and runs verification synchronously. Verifier trouble never
// leaves the payment stuck: transport errors and no-matches both land in
// failed, and the detail stays in the log.
func (s *PaymentService) AttachSlip(ctx context.Context, id uuid.UUID, userID uint, image []byte, contentType string) (*model.Payment, error) {
	payment, err := s.GetPayment(ctx, id)
	if err != nil {
		return nil, err
	}
	if payment.UserID != userID {
		return nil, ErrNotFound
	}
	if payment.Method != model.PaymentMethodBankTransfer {
		return nil, &ValidationError{Field: "payment", Reason: "slip upload requires a bank transfer payment"}
	}
	if len(image) == 0 {
		return nil, &ValidationError{Field: "slip", Reason: "slip image is empty"}
	}

	key, err := s.slips.Upload(ctx, id.String(), image, contentType)
	if err != nil {
		return nil, &ExternalServiceError{Service: "slip storage", Err: err}
	}

	now := time.Now()
	if err := s.transition(ctx, id, model.PaymentStatusPending, model.PaymentStatusVerifying, map[string]interface{}{
		"slip_key":         key,
		"slip_uploaded_at": now,
		"external_ref":     key,
	}); err != nil {
		return nil, err
	}

	verdict, err := s.verifier.Verify(ctx, slipverify.VerifyRequest{
		Image:          image,
		Filename:       "slip.jpg",
		ExpectedAmount: payment.Amount,
		Currency:       payment.Currency,
		Reference:      id.String(),
	})
	if err != nil {
		log.Printf("[PAYMENT] Slip verification for %s failed: %v", id, err)
		if ferr := s.Fail(ctx, id, model.PaymentStatusVerifying); ferr != nil && !errors.Is(ferr, ErrConflict) {
			return nil, ferr
		}
		return s.GetPayment(ctx, id)
	}

	if !verdict.Matched {
		log.Printf("[PAYMENT] Slip for %s did not match expected amount %d %s", id, payment.Amount, payment.Currency)
		if ferr := s.Fail(ctx, id, model.PaymentStatusVerifying); ferr != nil && !errors.Is(ferr, ErrConflict) {
			return nil, ferr
		}
		return s.GetPayment(ctx, id)
	}

	completed, _, err := s.Complete(ctx, id, model.PaymentStatusVerifying)
	if err != nil {
		return completed, err
	}
	return completed, nil
}

// WebhookAck tells the handler how to answer the gateway
type WebhookAck struct {
	PaymentID string `json:"payment_id,omitempty"`
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
}

// HandleGatewayCallback processes an authenticated gateway notification.
// Processing is idempotent by order id: a replayed success for an already
// completed payment is acknowledged as a no-op, and a late callback can
// never resurrect a payment that already reached a terminal state.
func (s *PaymentService) HandleGatewayCallback(ctx context.Context, n gateway.Notification) (*WebhookAck, error) {
	if err := s.gateway.VerifySignature(n); err != nil {
		// Reject before any side effect, event log included.
		return nil, err
	}

	event := s.recordGatewayEvent(ctx, n)

	paymentID, err := uuid.Parse(n.OrderID)
	if err != nil {
		s.finishGatewayEvent(ctx, event, model.GatewayEventIgnored, "order id is not a payment id")
		return &WebhookAck{Status: "ignored", Reason: "unknown order"}, nil
	}

	payment, err := s.GetPayment(ctx, paymentID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.finishGatewayEvent(ctx, event, model.GatewayEventIgnored, "payment not found")
			return &WebhookAck{Status: "ignored", Reason: "unknown order"}, nil
		}
		s.finishGatewayEvent(ctx, event, model.GatewayEventFailed, err.Error())
		return nil, err
	}
	event.PaymentID = &payment.ID

	switch gateway.MapStatus(n) {
	case gateway.OutcomeSuccess:
		_, _, err := s.Complete(ctx, paymentID, model.PaymentStatusPending)
		if err != nil {
			if errors.Is(err, ErrConflict) {
				// Replay or a racing writer. Re-read before deciding.
				current, gerr := s.GetPayment(ctx, paymentID)
				if gerr == nil && current.Status == model.PaymentStatusCompleted {
					// Re-run the grant so a payment whose original grant
					// failed is healed by the replay. Granting is
					// idempotent, a no-op when the rows already exist.
					if _, gerr := s.enrollments.Grant(ctx, current); gerr != nil {
						s.finishGatewayEvent(ctx, event, model.GatewayEventFailed, gerr.Error())
						return nil, fmt.Errorf("replayed grant for %s failed: %w", paymentID, gerr)
					}
					s.finishGatewayEvent(ctx, event, model.GatewayEventIgnored, "already completed")
					return &WebhookAck{PaymentID: n.OrderID, Status: "ok", Reason: "already processed"}, nil
				}
				s.finishGatewayEvent(ctx, event, model.GatewayEventIgnored, "payment in terminal state")
				return &WebhookAck{PaymentID: n.OrderID, Status: "ignored", Reason: "already processed"}, nil
			}
			s.finishGatewayEvent(ctx, event, model.GatewayEventFailed, err.Error())
			return nil, err
		}
		s.finishGatewayEvent(ctx, event, model.GatewayEventProcessed, "")
		return &WebhookAck{PaymentID: n.OrderID, Status: "ok"}, nil

	case gateway.OutcomeFailure:
		if err := s.Fail(ctx, paymentID, model.PaymentStatusPending); err != nil {
			if errors.Is(err, ErrConflict) {
				s.finishGatewayEvent(ctx, event, model.GatewayEventIgnored, "payment no longer pending")
				return &WebhookAck{PaymentID: n.OrderID, Status: "ignored", Reason: "already processed"}, nil
			}
			s.finishGatewayEvent(ctx, event, model.GatewayEventFailed, err.Error())
			return nil, err
		}
		s.finishGatewayEvent(ctx, event, model.GatewayEventProcessed, "")
		return &WebhookAck{PaymentID: n.OrderID, Status: "ok"}, nil

	default: // OutcomePending
		s.finishGatewayEvent(ctx, event, model.GatewayEventProcessed, "no decision yet")
		return &WebhookAck{PaymentID: n.OrderID, Status: "ok", Reason: "pending"}, nil
	}
}

// ExpireStale bulk-fails payments that sat in the given statuses for longer
// than the staleness window. It is the backstop for payments whose failure
// transition never ran, e.g. after a crash mid-flight.
func (s *PaymentService) ExpireStale(ctx context.Context, statuses []model.PaymentStatus, olderThan time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Model(&model.Payment{}).
		Where("status IN ? AND created_at < ?", statuses, olderThan).
		Update("status", model.PaymentStatusFailed)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to expire stale payments: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *PaymentService) recordGatewayEvent(ctx context.Context, n gateway.Notification) *model.PaymentGatewayEvent {
	payload, _ := json.Marshal(n)
	event := &model.PaymentGatewayEvent{
		OrderID:           n.OrderID,
		TransactionStatus: n.TransactionStatus,
		Signature:         n.SignatureKey,
		Payload:           datatypes.JSON(payload),
		Status:            model.GatewayEventReceived,
	}
	if err := s.db.WithContext(ctx).Create(event).Error; err != nil {
		log.Printf("[WEBHOOK] Failed to record gateway event for order %s: %v", n.OrderID, err)
	}
	return event
}

func (s *PaymentService) finishGatewayEvent(ctx context.Context, event *model.PaymentGatewayEvent, status model.GatewayEventStatus, errMsg string) {
	if event.ID == 0 {
		return
	}
	updates := map[string]interface{}{"status": status, "error_msg": errMsg}
	if event.PaymentID != nil {
		updates["payment_id"] = *event.PaymentID
	}
	if err := s.db.WithContext(ctx).
		Model(&model.PaymentGatewayEvent{}).
		Where("id = ?", event.ID).
		Updates(updates).Error; err != nil {
		log.Printf("[WEBHOOK] Failed to update gateway event %d: %v", event.ID, err)
	}
}
