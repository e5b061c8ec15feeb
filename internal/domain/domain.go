package domain

import (
	"errors"
	"fmt"
	"time"
)

type Status string

const (
	StatusFiled     Status = "FILED"
	StatusVerified  Status = "VERIFIED"
	StatusValuated  Status = "VALUATED"
	StatusPaid      Status = "PAID"
	StatusApproved  Status = "APPROVED"
	StatusEscalated Status = "ESCALATED"
)

// Terminal reports whether no further saga step exists for the status.
func (s Status) Terminal() bool {
	switch s {
	case StatusPaid, StatusApproved, StatusEscalated:
		return true
	}
	return false
}

type ReasonCode string

const (
	ReasonInvalidPolicyFormat     ReasonCode = "INVALID_POLICY_FORMAT"
	ReasonShortVIN                ReasonCode = "SHORT_VIN"
	ReasonFutureLossDate          ReasonCode = "FUTURE_LOSS_DATE"
	ReasonBadDateFormat           ReasonCode = "BAD_DATE_FORMAT"
	ReasonVINLookupFailed         ReasonCode = "VIN_LOOKUP_FAILED"
	ReasonNoReportedIncidents     ReasonCode = "NO_REPORTED_INCIDENTS"
	ReasonDuplicateClaimSuspected ReasonCode = "DUPLICATE_CLAIM_SUSPECTED"
	ReasonProblematicTitleStatus  ReasonCode = "PROBLEMATIC_TITLE_STATUS"
)

// ReasonCodes lists every reason code in scoring-table order.
var ReasonCodes = []ReasonCode{
	ReasonInvalidPolicyFormat,
	ReasonShortVIN,
	ReasonFutureLossDate,
	ReasonBadDateFormat,
	ReasonVINLookupFailed,
	ReasonNoReportedIncidents,
	ReasonDuplicateClaimSuspected,
	ReasonProblematicTitleStatus,
}

func (r ReasonCode) Valid() bool {
	for _, c := range ReasonCodes {
		if c == r {
			return true
		}
	}
	return false
}

// Record is a loosely typed vehicle history event.
type Record = map[string]any

type VehicleHistory struct {
	VIN               string   `json:"vin"`
	TitleStatus       string   `json:"titleStatus"`
	AccidentHistory   []Record `json:"accidentHistory"`
	RecallHistory     []Record `json:"recallHistory"`
	OwnershipHistory  []Record `json:"ownershipHistory"`
	ReportedIncidents []Record `json:"reportedIncidents"`
}

type VerifyRequest struct {
	ClaimID  string `json:"claimId"`
	PolicyID string `json:"policyId"`
	VIN      string `json:"vin"`
	LossType string `json:"lossType"`
	LossDate string `json:"lossDate"`
}

type VerificationResult struct {
	ClaimID             string          `json:"claimId"`
	Verified            bool            `json:"verified"`
	FraudScore          float64         `json:"fraudScore"`
	Reasons             []ReasonCode    `json:"reasons"`
	RequiredHumanReview bool            `json:"requiredHumanReview"`
	VehicleHistory      *VehicleHistory `json:"vehicleHistory,omitempty"`
	PolicyStatus        string          `json:"policyStatus"`
}

// HasReason reports whether code was triggered during scoring.
func (v VerificationResult) HasReason(code ReasonCode) bool {
	for _, r := range v.Reasons {
		if r == code {
			return true
		}
	}
	return false
}

type ValuationRequest struct {
	ClaimID  string `json:"claimId"`
	VIN      string `json:"vin"`
	LossType string `json:"lossType"`
}

// DefaultAutoApproveCap applies when a valuation carries no cap of its own.
const DefaultAutoApproveCap = 7500.0

type Valuation struct {
	ClaimID            string   `json:"claimId"`
	PreIncidentValue   float64  `json:"preIncidentValue"`
	PostIncidentValue  float64  `json:"postIncidentValue"`
	RawDiminishedValue float64  `json:"rawDiminishedValue"`
	PercentCap         float64  `json:"percentCap"`
	AbsoluteCap        float64  `json:"absoluteCap"`
	PayoutAmount       float64  `json:"payoutAmount"`
	AutoApproveCap     *float64 `json:"autoApproveCap,omitempty"`
}

func (v Valuation) Cap() float64 {
	if v.AutoApproveCap == nil {
		return DefaultAutoApproveCap
	}
	return *v.AutoApproveCap
}

const (
	PaymentSucceeded = "success"
	PaymentMethodACH = "ach"
)

type PaymentRequest struct {
	ClaimID   string  `json:"claimId"`
	Amount    float64 `json:"amount"`
	Recipient string  `json:"recipient"`
	Method    string  `json:"method"`
}

type Payment struct {
	Status        string  `json:"status"`
	TransactionID string  `json:"transactionId"`
	Method        string  `json:"method"`
	Amount        float64 `json:"amount"`
}

type Disbursement struct {
	ClaimID       string    `json:"claimId"`
	TransactionID string    `json:"transactionId"`
	Amount        float64   `json:"amount"`
	Recipient     string    `json:"recipient"`
	Method        string    `json:"method"`
	PaidAt        time.Time `json:"paidAt"`
}

type WatchRequest struct {
	VIN     string `json:"vin"`
	Reason  string `json:"reason"`
	ClaimID string `json:"claimId"`
}

type Watch struct {
	VIN       string    `json:"vin"`
	Reason    string    `json:"reason"`
	ClaimID   string    `json:"claimId"`
	StartedAt time.Time `json:"startedAt"`
}

type AuditEntry struct {
	ID        int64          `json:"id"`
	TS        string         `json:"ts" format:"date-time"`
	EventType string         `json:"eventType"`
	Data      map[string]any `json:"data"`
}

// Audit event types emitted by the saga.
const (
	EventClaimFiled            = "ClaimFiled"
	EventVerificationCompleted = "VerificationCompleted"
	EventValuationCompleted    = "ValuationCompleted"
	EventPaymentCompleted      = "PaymentCompleted"
	EventClaimApproved         = "ClaimApproved"
)

type ClaimInput struct {
	PolicyID   string `json:"policyId"`
	HolderName string `json:"holderName"`
	VIN        string `json:"vin"`
	LossDate   string `json:"lossDate"`
	LossType   string `json:"lossType"`
	Details    string `json:"details,omitempty"`
}

type Claim struct {
	ClaimID      string              `json:"claimId"`
	Status       Status              `json:"status" enum:"FILED,VERIFIED,VALUATED,PAID,APPROVED,ESCALATED"`
	PolicyID     string              `json:"policyId"`
	HolderName   string              `json:"holderName"`
	VIN          string              `json:"vin"`
	LossDate     time.Time           `json:"lossDate"`
	LossType     string              `json:"lossType"`
	Details      string              `json:"details,omitempty"`
	Verification *VerificationResult `json:"verification,omitempty"`
	Valuation    *Valuation          `json:"valuation,omitempty"`
	Payment      *Payment            `json:"payment,omitempty"`
	CreatedAt    time.Time           `json:"createdAt"`
	UpdatedAt    time.Time           `json:"updatedAt"`
}

var ErrResultAlreadySet = errors.New("result already attached")

// AttachVerification sets the verification result once.
func (c *Claim) AttachVerification(v VerificationResult) error {
	if c.Verification != nil {
		return fmt.Errorf("claim %s verification: %w", c.ClaimID, ErrResultAlreadySet)
	}
	c.Verification = &v
	return nil
}

func (c *Claim) AttachValuation(v Valuation) error {
	if c.Valuation != nil {
		return fmt.Errorf("claim %s valuation: %w", c.ClaimID, ErrResultAlreadySet)
	}
	if c.Verification == nil || !c.Verification.Verified {
		return fmt.Errorf("claim %s valuation without successful verification", c.ClaimID)
	}
	c.Valuation = &v
	return nil
}

func (c *Claim) AttachPayment(p Payment) error {
	if c.Payment != nil {
		return fmt.Errorf("claim %s payment: %w", c.ClaimID, ErrResultAlreadySet)
	}
	if c.Valuation == nil {
		return fmt.Errorf("claim %s payment without valuation", c.ClaimID)
	}
	c.Payment = &p
	return nil
}
