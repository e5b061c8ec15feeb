package claimsagasdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Claimsaga HTTP API client.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 30 * time.Second,
	}
}

// ClaimInput is the intake payload.
type ClaimInput struct {
	PolicyID   string `json:"policyId"`
	HolderName string `json:"holderName"`
	VIN        string `json:"vin"`
	LossDate   string `json:"lossDate"`
	LossType   string `json:"lossType"`
	Details    string `json:"details,omitempty"`
}

// Verification is the fraud verdict attached to a claim (partial).
type Verification struct {
	Verified            bool     `json:"verified"`
	FraudScore          float64  `json:"fraudScore"`
	Reasons             []string `json:"reasons"`
	RequiredHumanReview bool     `json:"requiredHumanReview"`
	PolicyStatus        string   `json:"policyStatus"`
}

// Valuation is the payout breakdown attached to a claim.
type Valuation struct {
	PreIncidentValue   float64  `json:"preIncidentValue"`
	PostIncidentValue  float64  `json:"postIncidentValue"`
	RawDiminishedValue float64  `json:"rawDiminishedValue"`
	PercentCap         float64  `json:"percentCap"`
	AbsoluteCap        float64  `json:"absoluteCap"`
	PayoutAmount       float64  `json:"payoutAmount"`
	AutoApproveCap     *float64 `json:"autoApproveCap,omitempty"`
}

// Payment is the disbursement outcome attached to a claim.
type Payment struct {
	Status        string  `json:"status"`
	TransactionID string  `json:"transactionId"`
	Method        string  `json:"method"`
	Amount        float64 `json:"amount"`
}

// Claim represents the API claim model.
type Claim struct {
	ClaimID      string        `json:"claimId"`
	Status       string        `json:"status"`
	PolicyID     string        `json:"policyId"`
	HolderName   string        `json:"holderName"`
	VIN          string        `json:"vin"`
	LossDate     string        `json:"lossDate"`
	LossType     string        `json:"lossType"`
	Details      string        `json:"details,omitempty"`
	Verification *Verification `json:"verification,omitempty"`
	Valuation    *Valuation    `json:"valuation,omitempty"`
	Payment      *Payment      `json:"payment,omitempty"`
	CreatedAt    string        `json:"createdAt"`
	UpdatedAt    string        `json:"updatedAt"`
}

// AuditEntry represents an audit log entry.
type AuditEntry struct {
	ID        int64          `json:"id"`
	TS        string         `json:"ts"`
	EventType string         `json:"eventType"`
	Data      map[string]any `json:"data"`
}

// Watch represents a monitored VIN.
type Watch struct {
	VIN       string `json:"vin"`
	Reason    string `json:"reason"`
	ClaimID   string `json:"claimId"`
	StartedAt string `json:"startedAt"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// FileClaim files a claim and returns it in its final saga state.
func (c *Client) FileClaim(ctx context.Context, in ClaimInput) (Claim, error) {
	var resp Claim
	err := c.do(ctx, http.MethodPost, "claims", in, &resp)
	return resp, err
}

// GetClaim fetches a claim by id.
func (c *Client) GetClaim(ctx context.Context, claimID string) (Claim, error) {
	var resp Claim
	err := c.do(ctx, http.MethodGet, "claims/"+url.PathEscape(claimID), nil, &resp)
	return resp, err
}

// ListClaims returns every claim, newest first.
func (c *Client) ListClaims(ctx context.Context) ([]Claim, error) {
	var resp struct {
		Items []Claim `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "claims", nil, &resp)
	return resp.Items, err
}

// AuditTrail returns the events recorded for a claim.
func (c *Client) AuditTrail(ctx context.Context, claimID string) ([]AuditEntry, error) {
	var resp []AuditEntry
	err := c.do(ctx, http.MethodGet, "audit/claim/"+url.PathEscape(claimID), nil, &resp)
	return resp, err
}

// RecentAudit returns the latest audit events; limit <= 0 uses the server default.
func (c *Client) RecentAudit(ctx context.Context, limit int) ([]AuditEntry, error) {
	endpoint := "audit"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []AuditEntry
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Watches lists monitored VINs.
func (c *Client) Watches(ctx context.Context) ([]Watch, error) {
	var resp []Watch
	err := c.do(ctx, http.MethodGet, "monitor/list", nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	hc := c.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: c.Timeout}
	}
	target := strings.TrimRight(c.BaseURL, "/") + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
