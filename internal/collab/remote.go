package collab

import (
	"context"
	"fmt"

	"claimsaga/internal/domain"
)

type VerificationClient struct{ *Client }

func (c VerificationClient) Verify(ctx context.Context, req domain.VerifyRequest) (domain.VerificationResult, error) {
	var out domain.VerificationResult
	if err := c.Post(ctx, "verify", req, &out); err != nil {
		return out, err
	}
	// Reason codes are a closed set; anything else is a contract break.
	for _, r := range out.Reasons {
		if !r.Valid() {
			return out, fmt.Errorf("verify response: unknown reason code %q", r)
		}
	}
	return out, nil
}

type ValuationClient struct{ *Client }

func (c ValuationClient) Valuate(ctx context.Context, req domain.ValuationRequest) (domain.Valuation, error) {
	var out domain.Valuation
	err := c.Post(ctx, "valuate", req, &out)
	return out, err
}

type PaymentClient struct{ *Client }

func (c PaymentClient) Pay(ctx context.Context, req domain.PaymentRequest) (domain.Payment, error) {
	var out domain.Payment
	err := c.Post(ctx, "pay", req, &out)
	return out, err
}

type AuditClient struct{ *Client }

func (c AuditClient) Record(ctx context.Context, eventType string, data map[string]any) error {
	body := map[string]any{"eventType": eventType, "data": data}
	return c.Post(ctx, "audit", body, nil)
}

type WatchClient struct{ *Client }

func (c WatchClient) Watch(ctx context.Context, req domain.WatchRequest) error {
	return c.Post(ctx, "monitor/start", req, nil)
}
