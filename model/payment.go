package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PaymentStatus represents a payment's position in the intake state machine
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusVerifying PaymentStatus = "verifying"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

// PaymentMethod represents how the buyer pays
type PaymentMethod string

const (
	PaymentMethodCardGateway  PaymentMethod = "card_gateway"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
)

// Payment represents one purchase attempt for a course or a bundle.
// Exactly one of CourseID/BundleID is set. Amount is the final price after
// any coupon discount and is never recomputed after creation.
type Payment struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
	UserID         uint           `gorm:"not null;index" json:"user_id"`
	CourseID       *uint          `gorm:"index" json:"course_id,omitempty"`
	BundleID       *uint          `gorm:"index" json:"bundle_id,omitempty"`
	Amount         int64          `gorm:"not null" json:"amount"` // minor units (satang)
	Currency       string         `gorm:"type:varchar(3);default:'THB'" json:"currency"`
	Method         PaymentMethod  `gorm:"type:varchar(20);not null" json:"method"`
	Status         PaymentStatus  `gorm:"type:varchar(20);default:'pending';index" json:"status"`
	ExternalRef    string         `gorm:"type:varchar(191);index" json:"external_ref"` // gateway order id or slip storage key
	CouponID       *uint          `gorm:"index" json:"coupon_id,omitempty"`
	RetryCount     int            `gorm:"default:0" json:"retry_count"`
	LastRetryAt    *time.Time     `json:"last_retry_at,omitempty"`
	SlipKey        string         `gorm:"type:text" json:"slip_key,omitempty"` // object storage key of the uploaded slip
	SlipUploadedAt *time.Time     `json:"slip_uploaded_at,omitempty"`

	// Relationships
	User   User    `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"user,omitempty"`
	Course *Course `gorm:"foreignKey:CourseID;constraint:OnDelete:SET NULL" json:"course,omitempty"`
	Bundle *Bundle `gorm:"foreignKey:BundleID;constraint:OnDelete:SET NULL" json:"bundle,omitempty"`
	Coupon *Coupon `gorm:"foreignKey:CouponID;constraint:OnDelete:SET NULL" json:"coupon,omitempty"`
}

// TableName specifies the table name for Payment
func (Payment) TableName() string {
	return "payments"
}

// BeforeCreate assigns a payment id when the caller has not set one
func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// IsTerminal reports whether no further automatic transition is allowed
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusCompleted || s == PaymentStatusRefunded
}
