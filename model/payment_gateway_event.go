package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// GatewayEventStatus tracks how an inbound gateway callback was handled
type GatewayEventStatus string

const (
	GatewayEventReceived  GatewayEventStatus = "received"
	GatewayEventProcessed GatewayEventStatus = "processed"
	GatewayEventIgnored   GatewayEventStatus = "ignored"
	GatewayEventFailed    GatewayEventStatus = "failed"
)

// PaymentGatewayEvent is the audit row for one inbound gateway webhook
// delivery. Every callback is recorded, including replays and callbacks for
// unknown order ids.
type PaymentGatewayEvent struct {
	ID                uint               `gorm:"primaryKey" json:"id"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
	PaymentID         *uuid.UUID         `gorm:"type:uuid;index" json:"payment_id,omitempty"`
	OrderID           string             `gorm:"type:varchar(191);index" json:"order_id"`
	TransactionStatus string             `gorm:"type:varchar(40)" json:"transaction_status"`
	Signature         string             `gorm:"type:text" json:"signature"`
	Payload           datatypes.JSON     `gorm:"type:jsonb" json:"payload"`
	Status            GatewayEventStatus `gorm:"type:varchar(20);default:'received'" json:"status"`
	ErrorMsg          string             `gorm:"type:text" json:"error_msg,omitempty"`
}

// TableName specifies the table name for PaymentGatewayEvent
func (PaymentGatewayEvent) TableName() string {
	return "payment_gateway_events"
}
