// Package watch keeps the set of VINs under ongoing monitoring.
package watch

import (
	"context"
	"errors"
	"time"

	"claimsaga/internal/domain"
	"claimsaga/internal/store"
)

type Registry struct {
	Watches store.Store[domain.Watch]
	Now     func() time.Time
}

func New(s store.Store[domain.Watch]) Registry {
	return Registry{Watches: s, Now: time.Now}
}

// Start registers the VIN. A later registration for the same VIN replaces
// the earlier reason and claim.
func (r Registry) Start(ctx context.Context, req domain.WatchRequest) (domain.Watch, error) {
	if req.VIN == "" {
		return domain.Watch{}, errors.New("vin is required")
	}
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	w := domain.Watch{VIN: req.VIN, Reason: req.Reason, ClaimID: req.ClaimID, StartedAt: now().UTC()}
	if err := r.Watches.Put(ctx, req.VIN, w); err != nil {
		return domain.Watch{}, err
	}
	return w, nil
}

func (r Registry) List(ctx context.Context) ([]domain.Watch, error) {
	return r.Watches.List(ctx)
}
