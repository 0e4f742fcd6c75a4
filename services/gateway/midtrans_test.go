package gateway

import (
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/ohmiler/milerdev-sub000/model"
)

func sign(orderID, statusCode, grossAmount, serverKey string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}

func TestVerifySignature(t *testing.T) {
	adapter := NewAdapter(Config{ServerKey: "sk-test"})

	n := Notification{
		OrderID:     "order-123",
		StatusCode:  "200",
		GrossAmount: "500.00",
	}
	n.SignatureKey = sign(n.OrderID, n.StatusCode, n.GrossAmount, "sk-test")

	if err := adapter.VerifySignature(n); err != nil {
		t.Errorf("valid signature rejected: %v", err)
	}
}

func TestVerifySignatureTampered(t *testing.T) {
	adapter := NewAdapter(Config{ServerKey: "sk-test"})

	n := Notification{
		OrderID:     "order-123",
		StatusCode:  "200",
		GrossAmount: "500.00",
	}
	// Signed over a different amount than the one delivered
	n.SignatureKey = sign(n.OrderID, n.StatusCode, "999.00", "sk-test")

	if err := adapter.VerifySignature(n); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("VerifySignature() error = %v, want ErrInvalidSignature", err)
	}
}

func TestVerifySignatureEmpty(t *testing.T) {
	adapter := NewAdapter(Config{ServerKey: "sk-test"})

	err := adapter.VerifySignature(Notification{OrderID: "order-123"})
	if !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("VerifySignature() error = %v, want ErrInvalidSignature", err)
	}
}

func TestMapStatus(t *testing.T) {
	tests := []struct {
		name   string
		status string
		fraud  string
		want   Outcome
	}{
		{"settlement", "settlement", "", OutcomeSuccess},
		{"capture accepted", "capture", "accept", OutcomeSuccess},
		{"capture challenged", "capture", "challenge", OutcomePending},
		{"capture denied", "capture", "deny", OutcomeFailure},
		{"deny", "deny", "", OutcomeFailure},
		{"cancel", "cancel", "", OutcomeFailure},
		{"expire", "expire", "", OutcomeFailure},
		{"failure", "failure", "", OutcomeFailure},
		{"pending", "pending", "", OutcomePending},
		{"unknown status", "refund", "", OutcomePending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := Notification{TransactionStatus: tt.status, FraudStatus: tt.fraud}
			if got := MapStatus(n); got != tt.want {
				t.Errorf("MapStatus(%s/%s) = %v, want %v", tt.status, tt.fraud, got, tt.want)
			}
		})
	}
}

func TestMinorToGross(t *testing.T) {
	if got := minorToGross(50000); got != 500 {
		t.Errorf("minorToGross(50000) = %d, want 500", got)
	}
}

func TestCreateSessionRejectsFractionalAmount(t *testing.T) {
	adapter := NewAdapter(Config{ServerKey: "sk-test"})

	// ฿499.99: one satang short of chargeable, must never truncate into
	// an under-charge
	payment := &model.Payment{ID: uuid.New(), Amount: 49999}
	if _, err := adapter.CreateSession(payment, "Go Fundamentals", Customer{}); err == nil {
		t.Error("CreateSession() accepted a sub-baht amount")
	}
}

func TestCreateSessionRejectsNonPositiveAmount(t *testing.T) {
	adapter := NewAdapter(Config{ServerKey: "sk-test"})

	payment := &model.Payment{ID: uuid.New(), Amount: 0}
	if _, err := adapter.CreateSession(payment, "Go Fundamentals", Customer{}); err == nil {
		t.Error("CreateSession() accepted a zero amount")
	}
}
