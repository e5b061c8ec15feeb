package server

import (
	"claimsaga/internal/domain"
)

// Request payloads

type FileClaimRequest struct {
	PolicyID   string `json:"policyId" example:"POL-1001"`
	HolderName string `json:"holderName" example:"Dana Reyes"`
	VIN        string `json:"vin" example:"1HGCM82633A004350"`
	LossDate   string `json:"lossDate" example:"2024-03-20" doc:"ISO-8601 date or date-time"`
	LossType   string `json:"lossType" example:"hail"`
	Details    string `json:"details,omitempty"`
}

func (r FileClaimRequest) input() domain.ClaimInput {
	return domain.ClaimInput{
		PolicyID:   r.PolicyID,
		HolderName: r.HolderName,
		VIN:        r.VIN,
		LossDate:   r.LossDate,
		LossType:   r.LossType,
		Details:    r.Details,
	}
}

type VerifyRequest struct {
	ClaimID  string `json:"claimId"`
	PolicyID string `json:"policyId"`
	VIN      string `json:"vin"`
	LossType string `json:"lossType"`
	LossDate string `json:"lossDate"`
}

type ValuateRequest struct {
	ClaimID  string `json:"claimId"`
	VIN      string `json:"vin"`
	LossType string `json:"lossType"`
}

type PayRequest struct {
	ClaimID   string  `json:"claimId"`
	Amount    float64 `json:"amount"`
	Recipient string  `json:"recipient"`
	Method    string  `json:"method,omitempty" example:"ach"`
}

type AuditRequest struct {
	EventType string         `json:"eventType" example:"ClaimFiled"`
	Data      map[string]any `json:"data,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

type WatchRequest struct {
	VIN     string `json:"vin"`
	Reason  string `json:"reason,omitempty"`
	ClaimID string `json:"claimId,omitempty"`
}

// Response payloads

type StatusResponse struct {
	Status string `json:"status" example:"ok"`
}

type ServiceInfoResponse struct {
	Service string `json:"service"`
	Claims  int    `json:"claims"`
}

type ClaimListResponse struct {
	Items []domain.Claim `json:"items"`
}

type DisbursementListResponse struct {
	Items []domain.Disbursement `json:"items"`
}

type WatchStartedResponse struct {
	Status string `json:"status" example:"watching"`
	VIN    string `json:"vin"`
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
