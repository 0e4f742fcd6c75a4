package model

import (
	"time"

	"gorm.io/gorm"
)

// Course represents a single purchasable online course
type Course struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
	Title       string         `gorm:"not null" json:"title"`
	Slug        string         `gorm:"uniqueIndex;not null" json:"slug"`
	Description string         `gorm:"type:text" json:"description"`
	Price       int64          `gorm:"not null" json:"price"` // minor units (satang)
	Currency    string         `gorm:"type:varchar(3);default:'THB'" json:"currency"`
	CoverURL    string         `gorm:"type:text" json:"cover_url"`
	Published   bool           `gorm:"default:false;index" json:"published"`

	// Relationships
	Enrollments []Enrollment   `gorm:"foreignKey:CourseID;constraint:OnDelete:CASCADE" json:"-"`
	Bundles     []BundleCourse `gorm:"foreignKey:CourseID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName specifies the table name for Course
func (Course) TableName() string {
	return "courses"
}

// Bundle represents a fixed set of courses sold at one price
type Bundle struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
	Title       string         `gorm:"not null" json:"title"`
	Slug        string         `gorm:"uniqueIndex;not null" json:"slug"`
	Description string         `gorm:"type:text" json:"description"`
	Price       int64          `gorm:"not null" json:"price"` // minor units (satang)
	Currency    string         `gorm:"type:varchar(3);default:'THB'" json:"currency"`
	Published   bool           `gorm:"default:false;index" json:"published"`

	// Relationships
	Courses []BundleCourse `gorm:"foreignKey:BundleID;constraint:OnDelete:CASCADE" json:"courses,omitempty"`
}

// TableName specifies the table name for Bundle
func (Bundle) TableName() string {
	return "bundles"
}

// BundleCourse links a bundle to one of its courses with a display position
type BundleCourse struct {
	BundleID uint `gorm:"primaryKey" json:"bundle_id"`
	CourseID uint `gorm:"primaryKey" json:"course_id"`
	Position int  `gorm:"default:0" json:"position"`

	// Relationships
	Bundle Bundle `gorm:"foreignKey:BundleID;constraint:OnDelete:CASCADE" json:"-"`
	Course Course `gorm:"foreignKey:CourseID;constraint:OnDelete:CASCADE" json:"course,omitempty"`
}

// TableName specifies the table name for BundleCourse
func (BundleCourse) TableName() string {
	return "bundle_courses"
}
