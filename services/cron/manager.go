package cron

import (
	"log"
	"time"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"github.com/ohmiler/milerdev-sub000/model"
	"github.com/ohmiler/milerdev-sub000/services"
)

// CronManager manages all scheduled cron jobs
type CronManager struct {
	cron           *cron.Cron
	db             *gorm.DB
	reconciliation *services.ReconciliationService
	staleWindow    time.Duration
}

// NewCronManager creates a new cron manager. staleWindow is how long a
// payment may sit in pending/verifying before the sweep fails it.
func NewCronManager(db *gorm.DB, reconciliation *services.ReconciliationService, staleWindow time.Duration) *CronManager {
	// Create cron with seconds precision
	c := cron.New(cron.WithSeconds())

	if staleWindow <= 0 {
		staleWindow = 24 * time.Hour
	}

	return &CronManager{
		cron:           c,
		db:             db,
		reconciliation: reconciliation,
		staleWindow:    staleWindow,
	}
}

// Start starts all cron jobs
func (m *CronManager) Start() error {
	log.Println("Starting cron jobs...")

	if err := m.registerJobs(); err != nil {
		return err
	}

	m.cron.Start()

	log.Println("Cron jobs started successfully")
	return nil
}

// Stop stops all cron jobs
func (m *CronManager) Stop() {
	log.Println("Stopping cron jobs...")
	ctx := m.cron.Stop()
	<-ctx.Done()
	log.Println("Cron jobs stopped")
}

// registerJobs registers all cron jobs with their schedules
func (m *CronManager) registerJobs() error {
	// 1. Every hour: fail payments stuck in pending/verifying past the
	// staleness window. The same sweep is reachable on demand from the
	// admin reconciliation screen.
	_, err := m.cron.AddFunc("0 0 * * * *", func() {
		m.logJobStart("expire_stale_payments")
		m.ExpireStalePayments()
	})
	if err != nil {
		return err
	}

	// 2. Daily at 2 AM: Cleanup old gateway event rows
	_, err = m.cron.AddFunc("0 0 2 * * *", func() {
		m.logJobStart("cleanup_gateway_events")
		m.CleanupGatewayEvents()
	})
	if err != nil {
		return err
	}

	// 3. Daily at 2:30 AM: Cleanup old read notifications
	_, err = m.cron.AddFunc("0 30 2 * * *", func() {
		m.logJobStart("cleanup_notifications")
		m.CleanupNotifications()
	})
	if err != nil {
		return err
	}

	log.Println("All cron jobs registered successfully")
	return nil
}

// logJobStart logs the start of a cron job
func (m *CronManager) logJobStart(jobName string) {
	log.Printf("[CRON] Starting job: %s at %s", jobName, time.Now().Format(time.RFC3339))

	cronLog := model.CronJobLog{
		JobName:   jobName,
		Status:    model.CronJobRunning,
		StartedAt: time.Now(),
	}
	m.db.Create(&cronLog)
}

// logJobComplete logs successful completion of a cron job
func (m *CronManager) logJobComplete(jobName string, message string) {
	log.Printf("[CRON] Completed job: %s - %s", jobName, message)

	m.db.Model(&model.CronJobLog{}).
		Where("job_name = ? AND status = ?", jobName, model.CronJobRunning).
		Order("started_at DESC").
		Limit(1).
		Updates(map[string]interface{}{
			"status":       model.CronJobCompleted,
			"completed_at": time.Now(),
			"message":      message,
		})
}

// logJobError logs a cron job error
func (m *CronManager) logJobError(jobName string, err error) {
	log.Printf("[CRON] Error in job: %s - %v", jobName, err)

	m.db.Model(&model.CronJobLog{}).
		Where("job_name = ? AND status = ?", jobName, model.CronJobRunning).
		Order("started_at DESC").
		Limit(1).
		Updates(map[string]interface{}{
			"status":       model.CronJobFailed,
			"completed_at": time.Now(),
			"error_msg":    err.Error(),
		})
}
