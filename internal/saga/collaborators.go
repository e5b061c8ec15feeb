package saga

import (
	"context"

	"claimsaga/internal/domain"
)

// Critical-path collaborators. Their errors stop the saga run.

type Verifier interface {
	Verify(ctx context.Context, req domain.VerifyRequest) (domain.VerificationResult, error)
}

type Valuator interface {
	Valuate(ctx context.Context, req domain.ValuationRequest) (domain.Valuation, error)
}

type Payer interface {
	Pay(ctx context.Context, req domain.PaymentRequest) (domain.Payment, error)
}

// Side-channel collaborators. They are only ever called through a
// SideChannel and their errors never reach the saga.

type Auditor interface {
	Record(ctx context.Context, eventType string, data map[string]any) error
}

type Watcher interface {
	Watch(ctx context.Context, req domain.WatchRequest) error
}
