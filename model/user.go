package model

import (
	"time"

	"gorm.io/gorm"
)

// User roles
const (
	RoleStudent = "student"
	RoleAdmin   = "admin"
)

// User represents a registered user in the system
type User struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
	Email        string         `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string         `gorm:"not null" json:"-"` // Never expose password in JSON
	Name         string         `gorm:"not null" json:"name"`
	Role         string         `gorm:"type:varchar(20);default:'student'" json:"role"` // student, admin

	// Relationships
	Enrollments   []Enrollment       `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"enrollments,omitempty"`
	Payments      []Payment          `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Notifications []UserNotification `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	AuditLog      []PaymentAuditLog  `gorm:"foreignKey:ActorID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName specifies the table name for User
func (User) TableName() string {
	return "users"
}

// IsAdmin reports whether the user holds the admin role
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
