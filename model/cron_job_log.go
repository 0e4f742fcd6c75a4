package model

import (
	"time"

	"gorm.io/gorm"
)

// Cron job statuses. A row stuck in running means the process died
// mid-sweep; the next run simply starts a new row.
const (
	CronJobRunning   = "running"
	CronJobCompleted = "completed"
	CronJobFailed    = "failed"
)

// CronJobLog records one run of a scheduled job (stale-payment sweep,
// gateway event cleanup, notification cleanup). Operators read this table
// to confirm the sweeps actually ran.
type CronJobLog struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	JobName     string         `gorm:"type:varchar(100);not null;index" json:"job_name"`
	Status      string         `gorm:"type:varchar(20);not null" json:"status"`
	StartedAt   time.Time      `gorm:"not null" json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at"`
	Message     string         `gorm:"type:text" json:"message"` // e.g. "Expired 3 stale payments"
	ErrorMsg    string         `gorm:"type:text" json:"error_msg"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for CronJobLog
func (CronJobLog) TableName() string {
	return "cron_job_logs"
}
