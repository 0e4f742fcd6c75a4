package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// NotificationType represents the type/severity of notification
type NotificationType string

const (
	NotificationTypeInfo    NotificationType = "info"
	NotificationTypeSuccess NotificationType = "success"
	NotificationTypeError   NotificationType = "error"
)

// NotificationCategory represents the category of notification
type NotificationCategory string

const (
	NotificationCategoryPayment    NotificationCategory = "payment"
	NotificationCategoryEnrollment NotificationCategory = "enrollment"
	NotificationCategoryGeneral    NotificationCategory = "general"
)

// UserNotification represents a notification for a user. Delivery is
// fire-and-forget: a failed insert is logged and never rolls back the
// payment or enrollment that triggered it.
type UserNotification struct {
	ID        uint                 `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time            `json:"created_at"`
	UpdatedAt time.Time            `json:"updated_at"`
	DeletedAt gorm.DeletedAt       `gorm:"index" json:"deleted_at,omitempty"`
	UserID    uint                 `gorm:"index;not null" json:"user_id"`
	Type      NotificationType     `gorm:"type:varchar(20);not null" json:"type"`
	Category  NotificationCategory `gorm:"type:varchar(30);not null" json:"category"`
	Title     string               `gorm:"type:varchar(255);not null" json:"title"`
	Message   string               `gorm:"type:text" json:"message"`
	Read      bool                 `gorm:"default:false" json:"read"`
	Metadata  datatypes.JSON       `gorm:"type:jsonb" json:"metadata,omitempty"` // Additional context

	// Relationships
	User User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

// NotificationMetadata represents common metadata fields
type NotificationMetadata struct {
	PaymentID      string `json:"payment_id,omitempty"`
	CourseID       uint   `json:"course_id,omitempty"`
	BundleID       uint   `json:"bundle_id,omitempty"`
	Amount         int64  `json:"amount,omitempty"`
	Currency       string `json:"currency,omitempty"`
	CoursesGranted int    `json:"courses_granted,omitempty"`
}
