package model

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// CouponDiscountKind is either a percentage of the price or a fixed amount
type CouponDiscountKind string

const (
	CouponDiscountPercent CouponDiscountKind = "percent"
	CouponDiscountFixed   CouponDiscountKind = "fixed"
)

// Coupon represents a discount code. RedeemedCount is only ever incremented
// together with the creation of the payment that consumes the slot.
type Coupon struct {
	ID             uint               `gorm:"primaryKey" json:"id"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
	DeletedAt      gorm.DeletedAt     `gorm:"index" json:"-"`
	Code           string             `gorm:"uniqueIndex;not null" json:"code"`
	DiscountKind   CouponDiscountKind `gorm:"type:varchar(10);not null" json:"discount_kind"`
	DiscountValue  int64              `gorm:"not null" json:"discount_value"` // percent (0-100) or minor units
	MaxRedemptions *int               `json:"max_redemptions,omitempty"`      // nil = unlimited
	RedeemedCount  int                `gorm:"default:0" json:"redeemed_count"`
	ValidFrom      *time.Time         `json:"valid_from,omitempty"`
	ValidUntil     *time.Time         `json:"valid_until,omitempty"`
	CourseID       *uint              `gorm:"index" json:"course_id,omitempty"` // restricts the coupon to one course

	// Relationships
	Course *Course `gorm:"foreignKey:CourseID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName specifies the table name for Coupon
func (Coupon) TableName() string {
	return "coupons"
}

// NormalizeCouponCode upper-cases and trims a user-supplied coupon code
func NormalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
