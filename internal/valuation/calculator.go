// Package valuation computes diminished-value payouts. The pre-incident value
// is synthetic and derived from the VIN.
package valuation

import (
	"math"
	"strings"

	"claimsaga/internal/domain"
)

type Config struct {
	BaseCap        float64 `yaml:"base_cap" env:"VAL_BASE_CAP"`
	BuyupCap       float64 `yaml:"buyup_cap" env:"VAL_BUYUP_CAP"`
	PercentK       float64 `yaml:"percent_k" env:"VAL_PCT_K"`
	AutoApproveCap float64 `yaml:"auto_approve_cap" env:"AUTO_APPROVE_CAP"`
}

func DefaultConfig() Config {
	return Config{BaseCap: 5000, BuyupCap: 7500, PercentK: 0.10, AutoApproveCap: 7500}
}

// buyupSeverity is the factor from which the higher absolute cap applies.
const buyupSeverity = 0.2

var severity = map[string]float64{
	"hail":      0.12,
	"flood":     0.3,
	"collision": 0.22,
	"theft":     0.5,
	"vandalism": 0.08,
}

const defaultSeverity = 0.10

type Calculator struct {
	Config Config
}

func New(cfg Config) Calculator {
	return Calculator{Config: cfg}
}

func (c Calculator) Valuate(req domain.ValuationRequest) domain.Valuation {
	pre := preIncidentValue(req.VIN)
	factor, ok := severity[strings.ToLower(req.LossType)]
	if !ok {
		factor = defaultSeverity
	}
	post := pre * (1 - factor)
	raw := math.Max(0, pre-post)
	pctCap := pre * c.Config.PercentK
	absCap := c.Config.BaseCap
	if factor >= buyupSeverity {
		absCap = c.Config.BuyupCap
	}
	payout := math.Min(raw, math.Min(pctCap, absCap))
	autoCap := round(c.Config.AutoApproveCap)
	return domain.Valuation{
		ClaimID:            req.ClaimID,
		PreIncidentValue:   round(pre),
		PostIncidentValue:  round(post),
		RawDiminishedValue: round(raw),
		PercentCap:         round(pctCap),
		AbsoluteCap:        round(absCap),
		PayoutAmount:       round(payout),
		AutoApproveCap:     &autoCap,
	}
}

// preIncidentValue lands in [15000, 20000) and depends only on the VIN.
func preIncidentValue(vin string) float64 {
	sum := 0
	for _, r := range vin {
		sum += int(r)
	}
	h := sum % 10000
	return float64(15000 + h%5000)
}

func round(v float64) float64 {
	return math.RoundToEven(v)
}
