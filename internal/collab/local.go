package collab

import (
	"context"

	"claimsaga/internal/audit"
	"claimsaga/internal/domain"
	"claimsaga/internal/payment"
	"claimsaga/internal/valuation"
	"claimsaga/internal/verify"
	"claimsaga/internal/watch"
)

// In-process adapters used when no collaborator URL is configured.

type LocalVerifier struct{ Engine verify.Engine }

func (l LocalVerifier) Verify(ctx context.Context, req domain.VerifyRequest) (domain.VerificationResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.VerificationResult{}, err
	}
	return l.Engine.Verify(ctx, req), nil
}

type LocalValuator struct{ Calculator valuation.Calculator }

func (l LocalValuator) Valuate(ctx context.Context, req domain.ValuationRequest) (domain.Valuation, error) {
	if err := ctx.Err(); err != nil {
		return domain.Valuation{}, err
	}
	return l.Calculator.Valuate(req), nil
}

type LocalPayer struct{ Executor *payment.Executor }

func (l LocalPayer) Pay(ctx context.Context, req domain.PaymentRequest) (domain.Payment, error) {
	return l.Executor.Pay(ctx, req)
}

type LocalAuditor struct{ Log *audit.Log }

func (l LocalAuditor) Record(ctx context.Context, eventType string, data map[string]any) error {
	_, err := l.Log.Append(ctx, eventType, data)
	return err
}

type LocalWatcher struct{ Registry watch.Registry }

func (l LocalWatcher) Watch(ctx context.Context, req domain.WatchRequest) error {
	_, err := l.Registry.Start(ctx, req)
	return err
}
