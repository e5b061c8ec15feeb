// Package history produces synthetic vehicle history reports keyed by VIN.
// It stands in for an external report provider: the output depends only on
// the last character of the VIN.
package history

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"claimsaga/internal/domain"
)

var ErrLookupFailed = errors.New("vin lookup failed")

// Lookuper returns the history for a VIN or an error wrapping ErrLookupFailed.
type Lookuper interface {
	Lookup(ctx context.Context, vin string) (domain.VehicleHistory, error)
}

// Simulator is the deterministic synthetic history source. Delay emulates
// the latency of a real report provider. Every string has a report; only a
// cancelled lookup fails.
type Simulator struct {
	Delay time.Duration
}

func (s Simulator) Lookup(ctx context.Context, vin string) (domain.VehicleHistory, error) {
	if s.Delay > 0 {
		timer := time.NewTimer(s.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return domain.VehicleHistory{}, fmt.Errorf("%w: %v", ErrLookupFailed, ctx.Err())
		case <-timer.C:
		}
	}
	return Generate(vin), nil
}

// Generate builds the synthetic report. Calling it twice with the same VIN
// yields identical values.
func Generate(vin string) domain.VehicleHistory {
	h := domain.VehicleHistory{
		VIN:               vin,
		TitleStatus:       "Clean",
		AccidentHistory:   []domain.Record{},
		RecallHistory:     []domain.Record{},
		ReportedIncidents: []domain.Record{},
		OwnershipHistory: []domain.Record{{
			"owner":     "Current Owner",
			"startDate": "2022-01-15",
			"state":     "TX",
		}},
	}
	switch {
	case strings.HasSuffix(vin, "0"):
		h.AccidentHistory = []domain.Record{{
			"date":     "2024-03-15",
			"type":     "Hail Damage",
			"severity": "Moderate",
			"location": "Dallas, TX",
			"repaired": true,
		}}
		h.ReportedIncidents = []domain.Record{{
			"date":         "2024-03-15",
			"type":         "Hail Damage",
			"claimNumber":  "INS-2024-0315-001",
			"status":       "Closed",
			"payoutAmount": 1596.50,
		}}
	case strings.HasSuffix(vin, "5"):
		h.AccidentHistory = []domain.Record{{
			"date":     "2023-08-20",
			"type":     "Flood Damage",
			"severity": "Major",
			"location": "Houston, TX",
			"repaired": true,
		}}
		h.ReportedIncidents = []domain.Record{{
			"date":         "2023-08-20",
			"type":         "Flood Damage",
			"claimNumber":  "INS-2023-0820-002",
			"status":       "Closed",
			"payoutAmount": 4250.00,
		}}
	}
	if len(h.AccidentHistory) > 0 {
		h.TitleStatus = "Rebuilt"
	}
	return h
}
