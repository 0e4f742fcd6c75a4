package slipverify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"
)

// Client handles communication with the external slip verification service.
// It performs a single synchronous call with a bounded timeout; retry and
// backoff policy belong to the caller.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// DefaultTimeout bounds one verification round trip
const DefaultTimeout = 12 * time.Second

// Config holds configuration for the slip verification client
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// VerifyRequest carries one uploaded transfer slip and the amount it is
// expected to cover.
type VerifyRequest struct {
	Image          []byte
	Filename       string
	ExpectedAmount int64 // minor units
	Currency       string
	Reference      string // payment id, echoed back by the service
}

// Verdict is the fixed response contract at the verifier boundary.
// A business "no match" is a normal Matched=false verdict, never an error;
// anything that prevents reaching a verdict (timeout, non-200, malformed
// body) is returned as an error instead.
type Verdict struct {
	Matched         bool     `json:"matched"`
	ExtractedAmount *int64   `json:"extracted_amount,omitempty"` // minor units
	Confidence      *float64 `json:"confidence,omitempty"`
	RawReference    string   `json:"raw_reference,omitempty"`
}

// NewClient creates a new slip verification client
func NewClient(config Config) *Client {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		BaseURL: config.BaseURL,
		APIKey:  config.APIKey,
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Verify submits the slip image and expected amount and returns the
// service's verdict. The extracted amount must equal the expected amount
// exactly: amounts are minor units of an integer-minor-unit currency, so no
// epsilon applies and a one-satang mismatch is a no-match.
func (c *Client) Verify(ctx context.Context, req VerifyRequest) (*Verdict, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", req.Filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(req.Image); err != nil {
		return nil, fmt.Errorf("failed to write file content: %w", err)
	}

	if err := writer.WriteField("expected_amount", strconv.FormatInt(req.ExpectedAmount, 10)); err != nil {
		return nil, fmt.Errorf("failed to write expected_amount: %w", err)
	}
	if err := writer.WriteField("currency", req.Currency); err != nil {
		return nil, fmt.Errorf("failed to write currency: %w", err)
	}
	if err := writer.WriteField("reference", req.Reference); err != nil {
		return nil, fmt.Errorf("failed to write reference: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close writer: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL+"/v1/verify", body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	if c.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("slip verification request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("slip verification service returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var verdict Verdict
	if err := json.NewDecoder(resp.Body).Decode(&verdict); err != nil {
		// Fail closed: a response we cannot parse is a service error,
		// never an implicit match.
		return nil, fmt.Errorf("failed to decode verification response: %w", err)
	}

	// The service may report a text match while extracting a different
	// amount. An amount mismatch is a no-match, not a partial success.
	if verdict.Matched && verdict.ExtractedAmount != nil && *verdict.ExtractedAmount != req.ExpectedAmount {
		verdict.Matched = false
	}

	return &verdict, nil
}
