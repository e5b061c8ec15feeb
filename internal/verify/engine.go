// Package verify scores claims for fraud from intake signals and the
// vehicle history report.
package verify

import (
	"context"
	"errors"
	"log"
	"math"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"claimsaga/internal/domain"
	"claimsaga/internal/history"
)

const (
	baseScore        = 0.05
	maxScore         = 1.0
	verifiedBelow    = 0.7
	humanReviewAt    = 0.6
	duplicateWindow  = 30
	minLookupVINSize = 11
	policyActive     = "ACTIVE"
)

// Score deltas per signal.
const (
	deltaInvalidPolicy   = 0.20
	deltaShortVIN        = 0.30
	deltaFutureLossDate  = 0.40
	deltaBadDateFormat   = 0.20
	deltaUnknownLossType = 0.10
	deltaLookupFailed    = 0.10
	deltaNoIncidents     = 0.90
	deltaDuplicateClaim  = 0.50
	deltaProblemTitle    = 0.30
)

var knownLossTypes = map[string]bool{
	"hail":      true,
	"flood":     true,
	"collision": true,
	"theft":     true,
	"vandalism": true,
}

var problematicTitles = map[string]bool{
	"salvage": true,
	"flood":   true,
	"lemon":   true,
}

type Engine struct {
	History history.Lookuper
	Now     func() time.Time
	Logger  *log.Logger
}

func New(h history.Lookuper) Engine {
	return Engine{History: h, Now: time.Now}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// lookuper falls back to the simulator so a zero Engine still sees history.
func (e Engine) lookuper() history.Lookuper {
	if e.History != nil {
		return e.History
	}
	return history.Simulator{}
}

func (e Engine) logger() *log.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return log.Default()
}

// scorecard accumulates signals; reasons are only ever appended.
type scorecard struct {
	score   float64
	reasons []domain.ReasonCode
}

func (s *scorecard) add(delta float64, reason domain.ReasonCode) {
	s.score += delta
	if reason != "" {
		s.reasons = append(s.reasons, reason)
	}
}

func (s *scorecard) final() float64 {
	return math.Round(math.Min(s.score, maxScore)*1000) / 1000
}

// Verify never fails: unparsable input and lookup failures become signals.
func (e Engine) Verify(ctx context.Context, req domain.VerifyRequest) domain.VerificationResult {
	card := &scorecard{score: baseScore, reasons: []domain.ReasonCode{}}

	if !validPolicyFormat(req.PolicyID) {
		card.add(deltaInvalidPolicy, domain.ReasonInvalidPolicyFormat)
	}
	vinLen := len([]rune(req.VIN))
	if vinLen < minLookupVINSize {
		card.add(deltaShortVIN, domain.ReasonShortVIN)
	}
	lossDate, dateErr := domain.ParseLossDate(req.LossDate)
	if dateErr != nil {
		card.add(deltaBadDateFormat, domain.ReasonBadDateFormat)
	} else if lossDate.After(e.now()) {
		card.add(deltaFutureLossDate, domain.ReasonFutureLossDate)
	}
	if !knownLossTypes[strings.ToLower(req.LossType)] {
		card.add(deltaUnknownLossType, "")
	}

	var vehicle *domain.VehicleHistory
	if vinLen >= minLookupVINSize {
		h, err := e.lookuper().Lookup(ctx, req.VIN)
		if err != nil {
			if !errors.Is(err, history.ErrLookupFailed) {
				e.logger().Printf("verify: claim %s: unexpected lookup error: %v", req.ClaimID, err)
			}
			card.add(deltaLookupFailed, domain.ReasonVINLookupFailed)
		} else {
			vehicle = &h
			e.scoreHistory(card, h, req.LossType, lossDate, dateErr == nil)
		}
	}

	score := card.final()
	res := domain.VerificationResult{
		ClaimID:             req.ClaimID,
		FraudScore:          score,
		Reasons:             card.reasons,
		RequiredHumanReview: score >= humanReviewAt,
		VehicleHistory:      vehicle,
		PolicyStatus:        policyActive,
	}
	res.Verified = score < verifiedBelow && !res.HasReason(domain.ReasonShortVIN)
	return res
}

func (e Engine) scoreHistory(card *scorecard, h domain.VehicleHistory, lossType string, lossDate time.Time, haveDate bool) {
	if len(h.ReportedIncidents) == 0 {
		card.add(deltaNoIncidents, domain.ReasonNoReportedIncidents)
	} else if haveDate && hasDuplicate(h.ReportedIncidents, lossType, lossDate) {
		card.add(deltaDuplicateClaim, domain.ReasonDuplicateClaimSuspected)
	}
	if problematicTitles[strings.ToLower(h.TitleStatus)] {
		card.add(deltaProblemTitle, domain.ReasonProblematicTitleStatus)
	}
}

func hasDuplicate(incidents []domain.Record, lossType string, lossDate time.Time) bool {
	claimType := strings.ToLower(lossType)
	claimDay := naive(lossDate)
	for _, inc := range incidents {
		incType, ok := inc["type"].(string)
		if !ok {
			continue
		}
		incType = strings.ToLower(incType)
		if !strings.Contains(incType, claimType) && !strings.Contains(claimType, incType) {
			continue
		}
		raw, ok := inc["date"].(string)
		if !ok {
			continue
		}
		incDate, err := domain.ParseLossDate(raw)
		if err != nil {
			continue
		}
		if abs(wholeDays(claimDay.Sub(naive(incDate)))) <= duplicateWindow {
			return true
		}
	}
	return false
}

// naive drops the zone and keeps the wall clock reading.
func naive(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// wholeDays floors d to whole days, so a negative partial day counts as -1.
func wholeDays(d time.Duration) int {
	return int(math.Floor(d.Hours() / 24))
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func validPolicyFormat(policyID string) bool {
	if policyID == "" {
		return false
	}
	r, _ := utf8.DecodeRuneInString(policyID)
	return unicode.IsLetter(r)
}
