package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/ohmiler/milerdev-sub000/model"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// NotificationService handles user notifications. It is the audit/
// notification sink of the payment pipeline: "payment completed",
// "payment failed" and "enrollment granted" all land here.
type NotificationService struct {
	db    *gorm.DB
	email *EmailService
}

// NewNotificationService creates a new notification service
func NewNotificationService(db *gorm.DB) *NotificationService {
	return &NotificationService{db: db, email: NewEmailService()}
}

// CreateNotificationRequest represents a request to create a notification
type CreateNotificationRequest struct {
	UserID   uint
	Type     model.NotificationType
	Category model.NotificationCategory
	Title    string
	Message  string
	Metadata *model.NotificationMetadata
}

// CreateNotification creates a new notification for a user
func (s *NotificationService) CreateNotification(ctx context.Context, req CreateNotificationRequest) (*model.UserNotification, error) {
	notification := &model.UserNotification{
		UserID:   req.UserID,
		Type:     req.Type,
		Category: req.Category,
		Title:    req.Title,
		Message:  req.Message,
		Read:     false,
	}

	if req.Metadata != nil {
		metadataJSON, err := json.Marshal(req.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal metadata: %w", err)
		}
		notification.Metadata = datatypes.JSON(metadataJSON)
	}

	if err := s.db.WithContext(ctx).Create(notification).Error; err != nil {
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}

	return notification, nil
}

// NotifyPaymentCompleted records a "payment completed" notification.
// Fire-and-forget: failures are logged, never propagated, so a broken sink
// cannot roll back a payment.
func (s *NotificationService) NotifyPaymentCompleted(ctx context.Context, payment *model.Payment) {
	_, err := s.CreateNotification(ctx, CreateNotificationRequest{
		UserID:   payment.UserID,
		Type:     model.NotificationTypeSuccess,
		Category: model.NotificationCategoryPayment,
		Title:    "Payment received",
		Message:  "Your payment has been verified. Your courses are ready.",
		Metadata: paymentMetadata(payment),
	})
	if err != nil {
		log.Printf("[NOTIFY] Failed to record payment completed for %s: %v", payment.ID, err)
	}

	s.sendReceiptEmail(payment)
}

// sendReceiptEmail emails a purchase receipt in the background. Best effort:
// SMTP being down must never surface to the payment pipeline.
func (s *NotificationService) sendReceiptEmail(payment *model.Payment) {
	if !s.email.IsConfigured() {
		return
	}

	var user model.User
	if err := s.db.First(&user, payment.UserID).Error; err != nil {
		log.Printf("[NOTIFY] Failed to load user %d for receipt email: %v", payment.UserID, err)
		return
	}

	title := s.paymentItemTitle(payment)
	p := *payment

	go func() {
		if err := s.email.SendPaymentReceiptEmail(user.Email, user.Name, title, p.Amount, p.Currency, p.ID.String()); err != nil {
			log.Printf("[NOTIFY] Failed to send receipt email for %s: %v", p.ID, err)
		}
	}()
}

func (s *NotificationService) paymentItemTitle(p *model.Payment) string {
	if p.CourseID != nil {
		var course model.Course
		if err := s.db.First(&course, *p.CourseID).Error; err == nil {
			return course.Title
		}
	}
	if p.BundleID != nil {
		var bundle model.Bundle
		if err := s.db.First(&bundle, *p.BundleID).Error; err == nil {
			return bundle.Title
		}
	}
	return "Your purchase"
}

// NotifyPaymentFailed records a "payment failed" notification.
func (s *NotificationService) NotifyPaymentFailed(ctx context.Context, payment *model.Payment) {
	_, err := s.CreateNotification(ctx, CreateNotificationRequest{
		UserID:   payment.UserID,
		Type:     model.NotificationTypeError,
		Category: model.NotificationCategoryPayment,
		Title:    "Payment could not be verified",
		Message:  "We could not verify your payment. Please try again or contact support.",
		Metadata: paymentMetadata(payment),
	})
	if err != nil {
		log.Printf("[NOTIFY] Failed to record payment failed for %s: %v", payment.ID, err)
	}
}

// NotifyEnrollmentGranted records an "enrollment granted" notification with
// the number of newly unlocked courses.
func (s *NotificationService) NotifyEnrollmentGranted(ctx context.Context, userID uint, payment *model.Payment, newlyGranted int) {
	meta := &model.NotificationMetadata{CoursesGranted: newlyGranted}
	if payment != nil {
		meta = paymentMetadata(payment)
		meta.CoursesGranted = newlyGranted
	}

	_, err := s.CreateNotification(ctx, CreateNotificationRequest{
		UserID:   userID,
		Type:     model.NotificationTypeSuccess,
		Category: model.NotificationCategoryEnrollment,
		Title:    "Enrollment complete",
		Message:  fmt.Sprintf("%d course(s) unlocked.", newlyGranted),
		Metadata: meta,
	})
	if err != nil {
		log.Printf("[NOTIFY] Failed to record enrollment granted for user %d: %v", userID, err)
	}
}

// ListNotifications returns a user's notifications, newest first
func (s *NotificationService) ListNotifications(ctx context.Context, userID uint, unreadOnly bool, limit, offset int) ([]model.UserNotification, int64, error) {
	query := s.db.WithContext(ctx).Model(&model.UserNotification{}).Where("user_id = ?", userID)
	if unreadOnly {
		query = query.Where("read = ?", false)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count notifications: %w", err)
	}

	if limit <= 0 || limit > 100 {
		limit = 20
	}

	var notifications []model.UserNotification
	if err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&notifications).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list notifications: %w", err)
	}

	return notifications, total, nil
}

// MarkRead marks one notification as read
func (s *NotificationService) MarkRead(ctx context.Context, userID, notificationID uint) error {
	result := s.db.WithContext(ctx).
		Model(&model.UserNotification{}).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Update("read", true)
	if result.Error != nil {
		return fmt.Errorf("failed to mark notification read: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func paymentMetadata(p *model.Payment) *model.NotificationMetadata {
	meta := &model.NotificationMetadata{
		PaymentID: p.ID.String(),
		Amount:    p.Amount,
		Currency:  p.Currency,
	}
	if p.CourseID != nil {
		meta.CourseID = *p.CourseID
	}
	if p.BundleID != nil {
		meta.BundleID = *p.BundleID
	}
	return meta
}
