// Package payment disburses claim payouts exactly once per claim id.
package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"claimsaga/internal/domain"
	"claimsaga/internal/store"
)

type Executor struct {
	Ledger store.Store[domain.Disbursement]
	Now    func() time.Time
	NewID  func() string

	// mu serializes the check-then-record on the ledger.
	mu sync.Mutex
}

func New(ledger store.Store[domain.Disbursement]) *Executor {
	return &Executor{
		Ledger: ledger,
		Now:    time.Now,
		NewID:  func() string { return uuid.NewString() },
	}
}

// Pay records a disbursement for the claim. A replay for an already paid
// claim reports success with a duplicate transaction id and records nothing.
func (e *Executor) Pay(ctx context.Context, req domain.PaymentRequest) (domain.Payment, error) {
	if req.ClaimID == "" {
		return domain.Payment{}, errors.New("claimId is required")
	}
	if req.Method == "" {
		req.Method = domain.PaymentMethodACH
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	_, err := e.Ledger.Get(ctx, req.ClaimID)
	switch {
	case err == nil:
		return domain.Payment{
			Status:        domain.PaymentSucceeded,
			TransactionID: duplicateTransactionID(req.ClaimID),
			Method:        req.Method,
			Amount:        req.Amount,
		}, nil
	case !errors.Is(err, store.ErrNotFound):
		return domain.Payment{}, fmt.Errorf("read ledger: %w", err)
	}
	d := domain.Disbursement{
		ClaimID:       req.ClaimID,
		TransactionID: e.NewID(),
		Amount:        req.Amount,
		Recipient:     req.Recipient,
		Method:        req.Method,
		PaidAt:        e.Now().UTC(),
	}
	if err := e.Ledger.Put(ctx, req.ClaimID, d); err != nil {
		return domain.Payment{}, fmt.Errorf("record disbursement: %w", err)
	}
	return domain.Payment{
		Status:        domain.PaymentSucceeded,
		TransactionID: d.TransactionID,
		Method:        d.Method,
		Amount:        d.Amount,
	}, nil
}

// Disbursements lists every real disbursement in payment order.
func (e *Executor) Disbursements(ctx context.Context) ([]domain.Disbursement, error) {
	return e.Ledger.List(ctx)
}

func duplicateTransactionID(claimID string) string {
	prefix := claimID
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	return "dup-" + prefix
}
