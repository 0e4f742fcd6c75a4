package model

import (
	"time"

	"github.com/google/uuid"
)

// Enrollment grants a user access to one course. Unique on (user, course);
// re-granting the same pair is a no-op, not an error.
type Enrollment struct {
	UserID          uint       `gorm:"primaryKey" json:"user_id"`
	CourseID        uint       `gorm:"primaryKey" json:"course_id"`
	EnrolledAt      time.Time  `gorm:"autoCreateTime" json:"enrolled_at"`
	ProgressPercent int        `gorm:"default:0" json:"progress_percent"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	PaymentID       *uuid.UUID `gorm:"type:uuid;index" json:"payment_id,omitempty"` // nil for free-item enrolls

	// Relationships
	User   User   `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Course Course `gorm:"foreignKey:CourseID;constraint:OnDelete:CASCADE" json:"course,omitempty"`
}

// TableName specifies the table name for Enrollment
func (Enrollment) TableName() string {
	return "enrollments"
}
