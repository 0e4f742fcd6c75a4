package slipverify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func verifyServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(Config{BaseURL: server.URL, APIKey: "vk-test"})
}

func TestVerifyMatched(t *testing.T) {
	client := verifyServer(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer vk-test" {
			t.Errorf("Authorization = %q, want Bearer vk-test", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("ParseMultipartForm: %v", err)
		}
		if got := r.FormValue("expected_amount"); got != "50000" {
			t.Errorf("expected_amount = %q, want 50000", got)
		}
		if got := r.FormValue("currency"); got != "THB" {
			t.Errorf("currency = %q, want THB", got)
		}
		if got := r.FormValue("reference"); got != "pay-1" {
			t.Errorf("reference = %q, want pay-1", got)
		}
		if _, _, err := r.FormFile("file"); err != nil {
			t.Errorf("FormFile: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"matched": true, "extracted_amount": 50000, "confidence": 0.97}`))
	})

	verdict, err := client.Verify(context.Background(), VerifyRequest{
		Image:          []byte("slip-bytes"),
		Filename:       "slip.jpg",
		ExpectedAmount: 50000,
		Currency:       "THB",
		Reference:      "pay-1",
	})
	if err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	if !verdict.Matched {
		t.Error("Matched = false, want true")
	}
}

func TestVerifyAmountMismatchForcesNoMatch(t *testing.T) {
	client := verifyServer(t, func(w http.ResponseWriter, r *http.Request) {
		// Service claims a match but extracted one satang short
		w.Write([]byte(`{"matched": true, "extracted_amount": 49999}`))
	})

	verdict, err := client.Verify(context.Background(), VerifyRequest{
		Image:          []byte("slip-bytes"),
		Filename:       "slip.jpg",
		ExpectedAmount: 50000,
		Currency:       "THB",
	})
	if err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	if verdict.Matched {
		t.Error("Matched = true for a mismatched amount, want false")
	}
}

func TestVerifyServiceError(t *testing.T) {
	client := verifyServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream OCR is down", http.StatusBadGateway)
	})

	_, err := client.Verify(context.Background(), VerifyRequest{Image: []byte("x"), Filename: "s.jpg"})
	if err == nil {
		t.Fatal("Verify() returned nil error for a 502 response")
	}
	if !strings.Contains(err.Error(), "502") {
		t.Errorf("error %q does not mention the status code", err)
	}
}

func TestVerifyMalformedResponse(t *testing.T) {
	client := verifyServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>not json</html>`))
	})

	_, err := client.Verify(context.Background(), VerifyRequest{Image: []byte("x"), Filename: "s.jpg"})
	if err == nil {
		t.Fatal("Verify() returned nil error for an unparseable response")
	}
}
