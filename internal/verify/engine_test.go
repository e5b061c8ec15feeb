package verify_test

import (
	"context"
	"fmt"
	"reflect"
	"testing"
	"time"

	"claimsaga/internal/domain"
	"claimsaga/internal/history"
	"claimsaga/internal/verify"
)

const (
	cleanVIN = "1HGCM82633A004352"
	hailVIN  = "1HGCM82633A004350"
	floodVIN = "1HGCM82633A004355"
)

func newEngine(h history.Lookuper) verify.Engine {
	e := verify.New(h)
	e.Now = func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }
	return e
}

type stubLookup struct {
	history domain.VehicleHistory
	err     error
}

func (s stubLookup) Lookup(context.Context, string) (domain.VehicleHistory, error) {
	return s.history, s.err
}

func TestVerifyScoring(t *testing.T) {
	cases := []struct {
		name     string
		lookup   history.Lookuper
		req      domain.VerifyRequest
		score    float64
		reasons  []domain.ReasonCode
		verified bool
		review   bool
		history  bool
	}{
		{
			name:     "clean history has no incidents",
			req:      domain.VerifyRequest{PolicyID: "POL-1", VIN: cleanVIN, LossType: "hail", LossDate: "2024-03-20"},
			score:    0.95,
			reasons:  []domain.ReasonCode{domain.ReasonNoReportedIncidents},
			verified: false,
			review:   true,
			history:  true,
		},
		{
			name:     "matching hail incident",
			req:      domain.VerifyRequest{PolicyID: "POL-1", VIN: hailVIN, LossType: "hail", LossDate: "2024-03-20"},
			score:    0.55,
			reasons:  []domain.ReasonCode{domain.ReasonDuplicateClaimSuspected},
			verified: true,
			review:   false,
			history:  true,
		},
		{
			name:     "short vin skips lookup and blocks verification",
			req:      domain.VerifyRequest{PolicyID: "123", VIN: "ABC123", LossType: "hail", LossDate: "2024-03-20"},
			score:    0.55,
			reasons:  []domain.ReasonCode{domain.ReasonInvalidPolicyFormat, domain.ReasonShortVIN},
			verified: false,
			review:   false,
		},
		{
			name:     "future loss date",
			req:      domain.VerifyRequest{PolicyID: "POL-1", VIN: floodVIN, LossType: "flood", LossDate: "2024-09-01T10:00:00Z"},
			score:    0.45,
			reasons:  []domain.ReasonCode{domain.ReasonFutureLossDate},
			verified: true,
			review:   false,
			history:  true,
		},
		{
			name:     "bad date keeps scoring",
			req:      domain.VerifyRequest{PolicyID: "POL-1", VIN: hailVIN, LossType: "hail", LossDate: "last tuesday"},
			score:    0.25,
			reasons:  []domain.ReasonCode{domain.ReasonBadDateFormat},
			verified: true,
			review:   false,
			history:  true,
		},
		{
			name:     "unknown loss type adds score only",
			req:      domain.VerifyRequest{PolicyID: "POL-1", VIN: hailVIN, LossType: "meteor", LossDate: "2024-03-20"},
			score:    0.15,
			reasons:  []domain.ReasonCode{},
			verified: true,
			review:   false,
			history:  true,
		},
		{
			name:     "lookup failure",
			lookup:   stubLookup{err: fmt.Errorf("%w: provider down", history.ErrLookupFailed)},
			req:      domain.VerifyRequest{PolicyID: "POL-1", VIN: cleanVIN, LossType: "collision", LossDate: "2024-03-20"},
			score:    0.15,
			reasons:  []domain.ReasonCode{domain.ReasonVINLookupFailed},
			verified: true,
			review:   false,
		},
		{
			name: "problematic title",
			lookup: stubLookup{history: domain.VehicleHistory{
				TitleStatus:       "SALVAGE",
				ReportedIncidents: []domain.Record{{"date": "2024-03-01", "type": "Theft"}},
			}},
			req:      domain.VerifyRequest{PolicyID: "POL-1", VIN: cleanVIN, LossType: "theft", LossDate: "2024-03-20"},
			score:    0.85,
			reasons:  []domain.ReasonCode{domain.ReasonDuplicateClaimSuspected, domain.ReasonProblematicTitleStatus},
			verified: false,
			review:   true,
			history:  true,
		},
		{
			name:     "score is clamped",
			req:      domain.VerifyRequest{PolicyID: "", VIN: cleanVIN, LossType: "hail", LossDate: "2025-01-01"},
			score:    1.0,
			reasons:  []domain.ReasonCode{domain.ReasonInvalidPolicyFormat, domain.ReasonFutureLossDate, domain.ReasonNoReportedIncidents},
			verified: false,
			review:   true,
			history:  true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			lookup := tc.lookup
			if lookup == nil {
				lookup = history.Simulator{}
			}
			res := newEngine(lookup).Verify(context.Background(), tc.req)
			if res.FraudScore != tc.score {
				t.Errorf("score: got %v want %v", res.FraudScore, tc.score)
			}
			if !reflect.DeepEqual(res.Reasons, tc.reasons) {
				t.Errorf("reasons: got %v want %v", res.Reasons, tc.reasons)
			}
			if res.Verified != tc.verified {
				t.Errorf("verified: got %v want %v", res.Verified, tc.verified)
			}
			if res.RequiredHumanReview != tc.review {
				t.Errorf("review: got %v want %v", res.RequiredHumanReview, tc.review)
			}
			if (res.VehicleHistory != nil) != tc.history {
				t.Errorf("vehicle history attached: got %v want %v", res.VehicleHistory != nil, tc.history)
			}
			if res.PolicyStatus != "ACTIVE" {
				t.Errorf("policy status: %s", res.PolicyStatus)
			}
		})
	}
}

func TestDuplicateWindowUsesWallClockDays(t *testing.T) {
	e := newEngine(history.Simulator{})
	cases := []struct {
		date string
		dup  bool
	}{
		{"2024-04-14T23:00:00-05:00", true},
		{"2024-04-14T00:00:00Z", true},
		{"2024-04-15T00:00:00Z", false},
		{"2024-02-14T12:00:00", true},
		{"2024-02-13T12:00:00", false},
	}
	for _, tc := range cases {
		res := e.Verify(context.Background(), domain.VerifyRequest{PolicyID: "P", VIN: hailVIN, LossType: "Hail", LossDate: tc.date})
		if got := res.HasReason(domain.ReasonDuplicateClaimSuspected); got != tc.dup {
			t.Errorf("%s: duplicate=%v want %v", tc.date, got, tc.dup)
		}
	}
}

func TestDuplicateTypeMatchesEitherDirection(t *testing.T) {
	e := newEngine(history.Simulator{})
	for _, lossType := range []string{"hail", "HAIL DAMAGE", "severe hail damage event"} {
		res := e.Verify(context.Background(), domain.VerifyRequest{PolicyID: "P", VIN: hailVIN, LossType: lossType, LossDate: "2024-03-16"})
		if !res.HasReason(domain.ReasonDuplicateClaimSuspected) {
			t.Errorf("%q should match the hail incident", lossType)
		}
	}
	res := e.Verify(context.Background(), domain.VerifyRequest{PolicyID: "P", VIN: hailVIN, LossType: "flood", LossDate: "2024-03-16"})
	if res.HasReason(domain.ReasonDuplicateClaimSuspected) {
		t.Errorf("flood should not match the hail incident")
	}
}

func TestVerifyInvariants(t *testing.T) {
	e := newEngine(history.Simulator{})
	policies := []string{"POL-1", "9-POL", ""}
	vins := []string{cleanVIN, hailVIN, floodVIN, "SHORT"}
	dates := []string{"2024-03-20", "2023-08-25", "2030-01-01", "garbage"}
	lossTypes := []string{"hail", "flood", "collision", "meteor"}
	for _, vin := range vins {
		for _, date := range dates {
			for _, lt := range lossTypes {
				valid := e.Verify(context.Background(), domain.VerifyRequest{PolicyID: policies[0], VIN: vin, LossType: lt, LossDate: date})
				for _, p := range policies {
					res := e.Verify(context.Background(), domain.VerifyRequest{PolicyID: p, VIN: vin, LossType: lt, LossDate: date})
					if res.FraudScore < 0 || res.FraudScore > 1 {
						t.Fatalf("score out of range: %v", res.FraudScore)
					}
					if res.FraudScore < valid.FraudScore {
						t.Fatalf("extra signal lowered score: %v < %v", res.FraudScore, valid.FraudScore)
					}
					if res.HasReason(domain.ReasonShortVIN) && res.Verified {
						t.Fatalf("short vin verified: %+v", res)
					}
					if res.RequiredHumanReview != (res.FraudScore >= 0.6) {
						t.Fatalf("review flag mismatch: %+v", res)
					}
					for _, r := range res.Reasons {
						if !r.Valid() {
							t.Fatalf("unknown reason %s", r)
						}
					}
				}
			}
		}
	}
}

func TestZeroEngineLooksUpHistory(t *testing.T) {
	var e verify.Engine
	res := e.Verify(context.Background(), domain.VerifyRequest{PolicyID: "POL-1", VIN: cleanVIN, LossType: "hail", LossDate: "2024-03-20"})
	if res.VehicleHistory == nil || !res.HasReason(domain.ReasonNoReportedIncidents) {
		t.Fatalf("expected simulator history, got %+v", res)
	}
	if res.Verified {
		t.Fatalf("clean history must not verify")
	}
}

func TestBlankVINGetsCleanHistory(t *testing.T) {
	e := newEngine(history.NewCached(history.Simulator{}, time.Minute, time.Minute))
	res := e.Verify(context.Background(), domain.VerifyRequest{PolicyID: "POL-1", VIN: "           ", LossType: "hail", LossDate: "2024-03-20"})
	if res.HasReason(domain.ReasonVINLookupFailed) {
		t.Fatalf("blank vin lookup should not fail: %v", res.Reasons)
	}
	if !res.HasReason(domain.ReasonNoReportedIncidents) || res.Verified {
		t.Fatalf("expected unverified clean history, got %+v", res)
	}
}
