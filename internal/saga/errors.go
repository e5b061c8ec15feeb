package saga

import "fmt"

type Step string

const (
	StepIntake  Step = "intake"
	StepVerify  Step = "verify"
	StepValuate Step = "valuate"
	StepSettle  Step = "settle"
)

// StepError is a critical-path failure. The claim keeps the last state it
// reached before the failing step.
type StepError struct {
	ClaimID string
	Step    Step
	Err     error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("claim %s: %s step failed: %v", e.ClaimID, e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }
