package services

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/ohmiler/milerdev-sub000/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GrantResult reports which courses a grant actually unlocked. NewlyEnrolled
// drives the user-facing "X courses unlocked" message; AlreadyOwned lists
// courses the user had before the grant ran.
type GrantResult struct {
	NewlyEnrolled []uint `json:"newly_enrolled"`
	AlreadyOwned  []uint `json:"already_owned"`
}

// EnrollmentService converts completed payments into enrollment rows.
// Granting is a set union keyed on (user, course): safe to re-run after a
// crash mid-grant, and a second run over the same payment reports zero
// newly-enrolled courses.
type EnrollmentService struct {
	db       *gorm.DB
	catalog  *CatalogService
	notifier *NotificationService
}

// NewEnrollmentService creates a new enrollment service
func NewEnrollmentService(db *gorm.DB, catalog *CatalogService, notifier *NotificationService) *EnrollmentService {
	return &EnrollmentService{db: db, catalog: catalog, notifier: notifier}
}

// Grant creates the enrollment rows for a completed payment. A single-course
// payment yields one row; a bundle payment yields one row per course in the
// bundle as read at grant time. Each row is committed on its own: a partial
// failure is recovered by re-running, not by rolling back rows already
// created.
func (s *EnrollmentService) Grant(ctx context.Context, payment *model.Payment) (*GrantResult, error) {
	if payment.Status != model.PaymentStatusCompleted {
		return nil, fmt.Errorf("payment %s is %s, only completed payments grant enrollments", payment.ID, payment.Status)
	}

	courseIDs, err := s.paymentCourseIDs(ctx, payment)
	if err != nil {
		return nil, err
	}

	result, err := s.enroll(ctx, payment.UserID, courseIDs, &payment.ID)
	if err != nil {
		return nil, err
	}

	if s.notifier != nil && len(result.NewlyEnrolled) > 0 {
		s.notifier.NotifyEnrollmentGranted(ctx, payment.UserID, payment, len(result.NewlyEnrolled))
	}

	return result, nil
}

// EnrollFree is the direct-enroll path for items whose final price resolved
// to zero. No payment row exists, so the enrollment carries no payment id.
func (s *EnrollmentService) EnrollFree(ctx context.Context, userID uint, item *ResolvedItem) (*GrantResult, error) {
	result, err := s.enroll(ctx, userID, item.CourseIDs, nil)
	if err != nil {
		return nil, err
	}
	if s.notifier != nil && len(result.NewlyEnrolled) > 0 {
		s.notifier.NotifyEnrollmentGranted(ctx, userID, nil, len(result.NewlyEnrolled))
	}
	return result, nil
}

// ListForUser returns a user's enrollments with course details
func (s *EnrollmentService) ListForUser(ctx context.Context, userID uint) ([]model.Enrollment, error) {
	var enrollments []model.Enrollment
	if err := s.db.WithContext(ctx).
		Preload("Course").
		Where("user_id = ?", userID).
		Order("enrolled_at DESC").
		Find(&enrollments).Error; err != nil {
		return nil, fmt.Errorf("failed to list enrollments for user %d: %w", userID, err)
	}
	return enrollments, nil
}

func (s *EnrollmentService) paymentCourseIDs(ctx context.Context, payment *model.Payment) ([]uint, error) {
	switch {
	case payment.CourseID != nil:
		return []uint{*payment.CourseID}, nil
	case payment.BundleID != nil:
		// Bundle contents are read fresh here. Enrollments already granted
		// are not retroactively altered when a bundle changes later.
		return s.catalog.BundleCourseIDs(ctx, *payment.BundleID)
	default:
		return nil, fmt.Errorf("payment %s references neither a course nor a bundle", payment.ID)
	}
}

func (s *EnrollmentService) enroll(ctx context.Context, userID uint, courseIDs []uint, paymentID *uuid.UUID) (*GrantResult, error) {
	result := &GrantResult{
		NewlyEnrolled: []uint{},
		AlreadyOwned:  []uint{},
	}

	for _, courseID := range courseIDs {
		enrollment := model.Enrollment{
			UserID:    userID,
			CourseID:  courseID,
			PaymentID: paymentID,
		}

		// ON CONFLICT DO NOTHING keeps the re-run idempotent: a duplicate
		// (user, course) pair affects zero rows instead of erroring.
		res := s.db.WithContext(ctx).
			Clauses(clause.OnConflict{DoNothing: true}).
			Create(&enrollment)
		if res.Error != nil {
			return nil, fmt.Errorf("failed to enroll user %d in course %d: %w", userID, courseID, res.Error)
		}

		if res.RowsAffected > 0 {
			result.NewlyEnrolled = append(result.NewlyEnrolled, courseID)
		} else {
			result.AlreadyOwned = append(result.AlreadyOwned, courseID)
			log.Printf("[ENROLL] User %d already owns course %d, skipping", userID, courseID)
		}
	}

	return result, nil
}
