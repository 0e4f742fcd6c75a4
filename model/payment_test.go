package model

import "testing"

func TestPaymentStatusIsTerminal(t *testing.T) {
	terminal := map[PaymentStatus]bool{
		PaymentStatusPending:   false,
		PaymentStatusVerifying: false,
		PaymentStatusCompleted: true,
		PaymentStatusFailed:    false,
		PaymentStatusRefunded:  true,
	}
	for status, want := range terminal {
		if got := status.IsTerminal(); got != want {
			t.Errorf("%s.IsTerminal() = %v, want %v", status, got, want)
		}
	}
}

func TestNormalizeCouponCode(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"welcome10", "WELCOME10"},
		{"  WELCOME10  ", "WELCOME10"},
		{" launch100\n", "LAUNCH100"},
		{"", ""},
		{"   ", ""},
	}
	for _, tt := range tests {
		if got := NormalizeCouponCode(tt.in); got != tt.want {
			t.Errorf("NormalizeCouponCode(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
