package gateway

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"

	midtrans "github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/snap"

	"github.com/ohmiler/milerdev-sub000/model"
)

// ErrInvalidSignature is returned for callbacks whose signature does not
// verify. Such callbacks must be rejected without side effects.
var ErrInvalidSignature = errors.New("invalid gateway signature")

// Adapter wraps the Midtrans Snap client. It creates hosted checkout
// sessions and authenticates inbound notifications; all state transitions
// stay with the caller.
type Adapter struct {
	snapClient snap.Client
	serverKey  string
}

// Config holds gateway credentials
type Config struct {
	ServerKey     string
	UseProduction bool
}

// Customer carries the buyer details attached to a checkout session
type Customer struct {
	Name  string
	Email string
}

// Session is a created hosted-checkout session. OrderID doubles as the
// payment's external reference.
type Session struct {
	OrderID     string
	Token       string
	RedirectURL string
}

// NewAdapter creates a new gateway adapter
func NewAdapter(config Config) *Adapter {
	a := &Adapter{serverKey: config.ServerKey}
	env := midtrans.Sandbox
	if config.UseProduction {
		env = midtrans.Production
	}
	a.snapClient.New(config.ServerKey, env)
	return a
}

// CreateSession opens a hosted checkout session for the payment and returns
// the redirect URL the buyer is sent to. The payment id is used as the
// gateway order id.
func (a *Adapter) CreateSession(payment *model.Payment, itemTitle string, customer Customer) (*Session, error) {
	if payment.Amount <= 0 {
		return nil, fmt.Errorf("invalid payment amount %d", payment.Amount)
	}
	// The gateway charges whole baht. A sub-baht amount would truncate
	// into an under-charge, never silently drop the satang.
	if payment.Amount%100 != 0 {
		return nil, fmt.Errorf("payment amount %d satang is not a whole-baht value", payment.Amount)
	}

	orderID := payment.ID.String()
	gross := minorToGross(payment.Amount)

	req := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  orderID,
			GrossAmt: gross,
		},
		CustomerDetail: &midtrans.CustomerDetails{
			FName: customer.Name,
			Email: customer.Email,
		},
		Items: &[]midtrans.ItemDetails{
			{
				ID:    orderID,
				Price: gross,
				Qty:   1,
				Name:  truncate(itemTitle, 50),
			},
		},
		CreditCard: &snap.CreditCardDetails{Secure: true},
	}

	resp, err := a.snapClient.CreateTransaction(req)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}

	return &Session{
		OrderID:     orderID,
		Token:       resp.Token,
		RedirectURL: resp.RedirectURL,
	}, nil
}

// Notification is the payload of an inbound gateway callback
type Notification struct {
	TransactionTime   string `json:"transaction_time"`
	TransactionStatus string `json:"transaction_status"` // capture, settlement, pending, deny, cancel, expire, refund, failure
	StatusCode        string `json:"status_code"`
	SignatureKey      string `json:"signature_key"`
	OrderID           string `json:"order_id"`
	GrossAmount       string `json:"gross_amount"`
	PaymentType       string `json:"payment_type"`
	FraudStatus       string `json:"fraud_status"` // accept / challenge / deny
	TransactionID     string `json:"transaction_id"`
}

// VerifySignature authenticates a callback. The gateway signs with
// SHA512(order_id + status_code + gross_amount + server_key); anything else
// is rejected before any state transition is attempted.
func (a *Adapter) VerifySignature(n Notification) error {
	if n.SignatureKey == "" {
		return ErrInvalidSignature
	}
	raw := n.OrderID + n.StatusCode + n.GrossAmount + a.serverKey
	sum := sha512.Sum512([]byte(raw))
	want := hex.EncodeToString(sum[:])
	if subtle.ConstantTimeCompare([]byte(want), []byte(n.SignatureKey)) != 1 {
		return ErrInvalidSignature
	}
	return nil
}

// Outcome is the adapter's reading of one callback
type Outcome int

const (
	// OutcomePending means the gateway has not decided yet; no transition.
	OutcomePending Outcome = iota
	// OutcomeSuccess means the charge settled.
	OutcomeSuccess
	// OutcomeFailure means the charge was denied, cancelled or expired.
	OutcomeFailure
)

// MapStatus folds the gateway's transaction/fraud status pair into an
// outcome the payment state machine understands.
func MapStatus(n Notification) Outcome {
	switch n.TransactionStatus {
	case "settlement":
		return OutcomeSuccess
	case "capture":
		if n.FraudStatus == "accept" {
			return OutcomeSuccess
		}
		if n.FraudStatus == "challenge" {
			return OutcomePending
		}
		return OutcomeFailure
	case "deny", "cancel", "expire", "failure":
		return OutcomeFailure
	default: // "pending" and anything unrecognized
		return OutcomePending
	}
}

// minorToGross converts satang to whole baht for the gateway, which prices
// in major units.
func minorToGross(minor int64) int64 {
	return minor / 100
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n]
}
