package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/ohmiler/milerdev-sub000/model"
)

// ExpireStalePayments fails payments that sat in pending or verifying past
// the staleness window without a verdict. This is the backstop for the
// cases where even the failure transition never ran (crash mid-flight).
func (m *CronManager) ExpireStalePayments() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	jobName := "expire_stale_payments"

	expired, err := m.reconciliation.ExpireStale(ctx, m.staleWindow, 0)
	if err != nil {
		m.logJobError(jobName, err)
		return
	}

	m.logJobComplete(jobName, fmt.Sprintf("Expired %d stale payments (window %s)", expired, m.staleWindow))
}

// CleanupGatewayEvents removes processed gateway event rows older than 90
// days. The payment audit log keeps the operator-facing trail; raw webhook
// payloads only need to stick around long enough for dispute handling.
func (m *CronManager) CleanupGatewayEvents() {
	jobName := "cleanup_gateway_events"
	cutoff := time.Now().AddDate(0, 0, -90)

	result := m.db.
		Where("created_at < ? AND status IN ?", cutoff, []model.GatewayEventStatus{
			model.GatewayEventProcessed,
			model.GatewayEventIgnored,
		}).
		Delete(&model.PaymentGatewayEvent{})
	if result.Error != nil {
		m.logJobError(jobName, result.Error)
		return
	}

	m.logJobComplete(jobName, fmt.Sprintf("Deleted %d old gateway events", result.RowsAffected))
}

// CleanupNotifications removes read notifications older than 60 days
func (m *CronManager) CleanupNotifications() {
	jobName := "cleanup_notifications"
	cutoff := time.Now().AddDate(0, 0, -60)

	result := m.db.
		Where("created_at < ? AND read = ?", cutoff, true).
		Delete(&model.UserNotification{})
	if result.Error != nil {
		m.logJobError(jobName, result.Error)
		return
	}

	m.logJobComplete(jobName, fmt.Sprintf("Deleted %d old notifications", result.RowsAffected))
}
