package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Operator actions recorded on the reconciliation audit trail. An operator
// reject and an automatic failure land in the same payment status, so the
// audit action is what distinguishes them afterwards.
const (
	AuditActionApprove     = "approve"
	AuditActionReject      = "reject"
	AuditActionRefund      = "refund"
	AuditActionBulkFail    = "bulk_fail"
	AuditActionExpireStale = "expire_stale"
)

// PaymentAuditLog represents one operator action over a payment during
// reconciliation
type PaymentAuditLog struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`
	ActorID    uint           `gorm:"not null;index" json:"actor_id"`
	PaymentID  uuid.UUID      `gorm:"type:uuid;not null;index" json:"payment_id"`
	Action     string         `gorm:"type:varchar(30);not null" json:"action"`
	FromStatus PaymentStatus  `gorm:"type:varchar(20)" json:"from_status"`
	ToStatus   PaymentStatus  `gorm:"type:varchar(20)" json:"to_status"`
	Note       string         `gorm:"type:text" json:"note"`

	// Relationships
	Actor User `gorm:"foreignKey:ActorID;constraint:OnDelete:CASCADE" json:"actor,omitempty"`
}

// TableName specifies the table name for PaymentAuditLog
func (PaymentAuditLog) TableName() string {
	return "payment_audit_logs"
}
