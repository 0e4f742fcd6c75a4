package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ohmiler/milerdev-sub000/model"
	"gorm.io/gorm"
)

// CouponService is the single source of truth for coupon validity and
// redemption counts. PricingService uses it read-only at quote time;
// PaymentService commits the redemption inside the payment-creation
// transaction.
type CouponService struct {
	db *gorm.DB
}

// NewCouponService creates a new coupon service
func NewCouponService(db *gorm.DB) *CouponService {
	return &CouponService{db: db}
}

// Lookup finds a coupon by its normalized code. Unknown codes return
// ErrCouponInvalid, indistinguishable from expired or exhausted codes.
func (s *CouponService) Lookup(ctx context.Context, code string) (*model.Coupon, error) {
	normalized := model.NormalizeCouponCode(code)
	if normalized == "" {
		return nil, ErrCouponInvalid
	}

	var coupon model.Coupon
	if err := s.db.WithContext(ctx).
		Where("code = ?", normalized).
		First(&coupon).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCouponInvalid
		}
		return nil, fmt.Errorf("failed to look up coupon: %w", err)
	}
	return &coupon, nil
}

// Validate checks a coupon against the item being purchased at the given
// time. Expiry, not-yet-valid and exhaustion all collapse into
// ErrCouponInvalid; only a course-restriction mismatch is reported
// separately as ErrCouponNotApplicable.
func (s *CouponService) Validate(coupon *model.Coupon, item *ResolvedItem, now time.Time) error {
	if coupon.ValidFrom != nil && now.Before(*coupon.ValidFrom) {
		return ErrCouponInvalid
	}
	if coupon.ValidUntil != nil && now.After(*coupon.ValidUntil) {
		return ErrCouponInvalid
	}
	if coupon.MaxRedemptions != nil && coupon.RedeemedCount >= *coupon.MaxRedemptions {
		return ErrCouponInvalid
	}
	if coupon.CourseID != nil {
		if item.Kind != ItemKindCourse || item.ID != *coupon.CourseID {
			return ErrCouponNotApplicable
		}
	}
	return nil
}

// Redeem increments the coupon's redemption count inside tx, guarded so the
// count can never pass max_redemptions. Two checkouts racing for the last
// slot both run the conditional update; the loser matches zero rows and gets
// ErrCouponInvalid, which aborts its enclosing payment-creation transaction.
func (s *CouponService) Redeem(ctx context.Context, tx *gorm.DB, couponID uint) error {
	result := tx.WithContext(ctx).
		Model(&model.Coupon{}).
		Where("id = ? AND (max_redemptions IS NULL OR redeemed_count < max_redemptions)", couponID).
		UpdateColumn("redeemed_count", gorm.Expr("redeemed_count + 1"))
	if result.Error != nil {
		return fmt.Errorf("failed to redeem coupon %d: %w", couponID, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrCouponInvalid
	}
	return nil
}
