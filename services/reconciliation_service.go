package services

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ohmiler/milerdev-sub000/model"
)

// Look-back window bounds for reconciliation queries
const (
	MinLookBackDays = 7
	MaxLookBackDays = 90

	// exportLimit bounds one CSV export so a single request cannot drag
	// the whole payments table through memory.
	exportLimit = 5000
)

// ReconciliationService is the operator-facing control loop over payments
// that did not resolve on their own. Every operator action re-checks the
// stored status through the ledger's compare-and-swap, because the payment
// may have auto-resolved between the list query and the operator's click.
type ReconciliationService struct {
	db       *gorm.DB
	payments *PaymentService
}

// NewReconciliationService creates a new reconciliation service
func NewReconciliationService(db *gorm.DB, payments *PaymentService) *ReconciliationService {
	return &ReconciliationService{db: db, payments: payments}
}

// Row is one payment annotated with display names for the triage view
type Row struct {
	Payment   model.Payment `json:"payment"`
	UserName  string        `json:"user_name"`
	UserEmail string        `json:"user_email"`
	ItemTitle string        `json:"item_title"`
	ItemKind  ItemKind      `json:"item_kind"`
}

// ClampLookBack forces daysBack into the supported 7-90 day window
func ClampLookBack(daysBack int) int {
	if daysBack < MinLookBackDays {
		return MinLookBackDays
	}
	if daysBack > MaxLookBackDays {
		return MaxLookBackDays
	}
	return daysBack
}

// List returns payments in the requested status bucket within the look-back
// window, newest first, with denormalized user and item display fields.
func (s *ReconciliationService) List(ctx context.Context, bucket model.PaymentStatus, daysBack, limit, offset int) ([]Row, int64, error) {
	since := time.Now().AddDate(0, 0, -ClampLookBack(daysBack))

	query := s.db.WithContext(ctx).
		Model(&model.Payment{}).
		Where("status = ? AND created_at >= ?", bucket, since)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count payments: %w", err)
	}

	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var payments []model.Payment
	if err := query.
		Preload("User").Preload("Course").Preload("Bundle").
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&payments).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list payments: %w", err)
	}

	rows := make([]Row, 0, len(payments))
	for _, p := range payments {
		rows = append(rows, annotate(p))
	}
	return rows, total, nil
}

// Summary returns the per-status payment counts driving the triage view
func (s *ReconciliationService) Summary(ctx context.Context, daysBack int) (map[model.PaymentStatus]int64, error) {
	since := time.Now().AddDate(0, 0, -ClampLookBack(daysBack))

	type bucketCount struct {
		Status model.PaymentStatus
		Count  int64
	}
	var counts []bucketCount
	if err := s.db.WithContext(ctx).
		Model(&model.Payment{}).
		Select("status, COUNT(*) AS count").
		Where("created_at >= ?", since).
		Group("status").
		Scan(&counts).Error; err != nil {
		return nil, fmt.Errorf("failed to summarize payments: %w", err)
	}

	summary := map[model.PaymentStatus]int64{
		model.PaymentStatusPending:   0,
		model.PaymentStatusVerifying: 0,
		model.PaymentStatusCompleted: 0,
		model.PaymentStatusFailed:    0,
		model.PaymentStatusRefunded:  0,
	}
	for _, c := range counts {
		summary[c.Status] = c.Count
	}
	return summary, nil
}

// Approve is the explicit human override: an operator moves a failed or
// verifying payment straight to completed, bypassing the slip verifier, and
// enrollments are granted synchronously. On a payment that is already
// completed, approve re-runs the grant instead: that is the recovery path
// for a payment completed while its enrollment grant failed.
func (s *ReconciliationService) Approve(ctx context.Context, id uuid.UUID, actorID uint, note string) (*model.Payment, *GrantResult, error) {
	payment, err := s.payments.GetPayment(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	from := payment.Status
	if from == model.PaymentStatusCompleted {
		granted, err := s.payments.RetryGrant(ctx, payment)
		if err != nil {
			return nil, nil, err
		}
		if err := s.bumpRetry(ctx, id); err != nil {
			log.Printf("[RECON] Retry bookkeeping for %s: %v", id, err)
		}
		s.audit(ctx, actorID, id, model.AuditActionApprove, from, model.PaymentStatusCompleted, note)
		return payment, granted, nil
	}

	if from != model.PaymentStatusFailed && from != model.PaymentStatusVerifying {
		return nil, nil, ErrConflict
	}

	completed, granted, err := s.payments.Complete(ctx, id, from)
	if err != nil {
		// Bump the retry bookkeeping only when the transition landed; an
		// approve that lost the race to an auto-resolve leaves the
		// counters alone.
		if completed != nil {
			if berr := s.bumpRetry(ctx, id); berr != nil {
				log.Printf("[RECON] Retry bookkeeping for %s: %v", id, berr)
			}
		}
		return completed, granted, err
	}

	if err := s.bumpRetry(ctx, id); err != nil {
		log.Printf("[RECON] Retry bookkeeping for %s: %v", id, err)
	}
	s.audit(ctx, actorID, id, model.AuditActionApprove, from, model.PaymentStatusCompleted, note)
	return completed, granted, nil
}

// Reject marks a payment as terminally failed by operator decision. It
// lands in the same status as an automatic failure; the audit action keeps
// the two distinguishable.
func (s *ReconciliationService) Reject(ctx context.Context, id uuid.UUID, actorID uint, note string) (*model.Payment, error) {
	payment, err := s.payments.GetPayment(ctx, id)
	if err != nil {
		return nil, err
	}

	from := payment.Status
	switch from {
	case model.PaymentStatusVerifying, model.PaymentStatusPending:
		if err := s.payments.Transition(ctx, id, from, model.PaymentStatusFailed); err != nil {
			return nil, err
		}
	case model.PaymentStatusFailed:
		// Already failed; the reject only records the operator decision.
	default:
		return nil, ErrConflict
	}

	s.audit(ctx, actorID, id, model.AuditActionReject, from, model.PaymentStatusFailed, note)
	return s.payments.GetPayment(ctx, id)
}

// Refund moves a completed payment to refunded on operator action
func (s *ReconciliationService) Refund(ctx context.Context, id uuid.UUID, actorID uint, note string) (*model.Payment, error) {
	if err := s.payments.Transition(ctx, id, model.PaymentStatusCompleted, model.PaymentStatusRefunded); err != nil {
		return nil, err
	}
	s.audit(ctx, actorID, id, model.AuditActionRefund, model.PaymentStatusCompleted, model.PaymentStatusRefunded, note)
	return s.payments.GetPayment(ctx, id)
}

// BulkOutcome reports the result for one id of a bulk action
type BulkOutcome struct {
	PaymentID string `json:"payment_id"`
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
}

// BulkMarkFailed moves each listed verifying payment to failed. Items are
// committed one by one and the outcomes aggregated: a payment that was
// concurrently auto-completed reports a conflict while the rest still go
// through, and its enrollments stay intact.
func (s *ReconciliationService) BulkMarkFailed(ctx context.Context, ids []uuid.UUID, actorID uint) []BulkOutcome {
	outcomes := make([]BulkOutcome, 0, len(ids))

	for _, id := range ids {
		outcome := BulkOutcome{PaymentID: id.String()}

		err := s.payments.Transition(ctx, id, model.PaymentStatusVerifying, model.PaymentStatusFailed)
		switch {
		case err == nil:
			outcome.OK = true
			s.audit(ctx, actorID, id, model.AuditActionBulkFail, model.PaymentStatusVerifying, model.PaymentStatusFailed, "")
		case errors.Is(err, ErrConflict):
			outcome.Error = "payment was already processed"
		case errors.Is(err, ErrNotFound):
			outcome.Error = "payment not found"
		default:
			outcome.Error = "update failed"
			log.Printf("[RECON] Bulk mark-failed %s: %v", id, err)
		}

		outcomes = append(outcomes, outcome)
	}

	return outcomes
}

// ExpireStale bulk-fails payments that have been sitting in pending or
// verifying for longer than the window. Invoked by the admin cleanup
// endpoint and by the scheduled sweep; actorID is zero for the scheduler.
func (s *ReconciliationService) ExpireStale(ctx context.Context, window time.Duration, actorID uint) (int64, error) {
	cutoff := time.Now().Add(-window)
	expired, err := s.payments.ExpireStale(ctx, []model.PaymentStatus{
		model.PaymentStatusPending,
		model.PaymentStatusVerifying,
	}, cutoff)
	if err != nil {
		return 0, err
	}

	if expired > 0 && actorID != 0 {
		s.audit(ctx, actorID, uuid.Nil, model.AuditActionExpireStale, "", model.PaymentStatusFailed,
			fmt.Sprintf("expired %d payments older than %s", expired, window))
	}
	return expired, nil
}

// ExportCSV writes the bucket's payments within the window as CSV. The
// result set is bounded; it is an operator export, not a data pipeline.
func (s *ReconciliationService) ExportCSV(ctx context.Context, bucket model.PaymentStatus, daysBack int, w io.Writer) error {
	rows, _, err := s.List(ctx, bucket, daysBack, exportLimit, 0)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{
		"payment_id", "created_at", "status", "method", "amount", "currency",
		"user_email", "item_kind", "item_title", "external_ref", "retry_count",
	}); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}

	for _, row := range rows {
		p := row.Payment
		record := []string{
			p.ID.String(),
			p.CreatedAt.Format(time.RFC3339),
			string(p.Status),
			string(p.Method),
			strconv.FormatInt(p.Amount, 10),
			p.Currency,
			row.UserEmail,
			string(row.ItemKind),
			row.ItemTitle,
			p.ExternalRef,
			strconv.Itoa(p.RetryCount),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func (s *ReconciliationService) bumpRetry(ctx context.Context, id uuid.UUID) error {
	if err := s.db.WithContext(ctx).
		Model(&model.Payment{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"retry_count":   gorm.Expr("retry_count + 1"),
			"last_retry_at": time.Now(),
		}).Error; err != nil {
		return fmt.Errorf("failed to bump retry count for %s: %w", id, err)
	}
	return nil
}

func (s *ReconciliationService) audit(ctx context.Context, actorID uint, paymentID uuid.UUID, action string, from, to model.PaymentStatus, note string) {
	entry := &model.PaymentAuditLog{
		ActorID:    actorID,
		PaymentID:  paymentID,
		Action:     action,
		FromStatus: from,
		ToStatus:   to,
		Note:       note,
	}
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		log.Printf("[RECON] Failed to write audit log (%s on %s): %v", action, paymentID, err)
	}
}

func annotate(p model.Payment) Row {
	row := Row{
		Payment:   p,
		UserName:  p.User.Name,
		UserEmail: p.User.Email,
	}
	switch {
	case p.Course != nil:
		row.ItemKind = ItemKindCourse
		row.ItemTitle = p.Course.Title
	case p.Bundle != nil:
		row.ItemKind = ItemKindBundle
		row.ItemTitle = p.Bundle.Title
	}
	return row
}
