// Package saga drives a claim through verification, valuation and payment.
//
// The states and their allowed transitions are declared in a table; each
// non-terminal state owns exactly one step which calls a collaborator,
// attaches the typed result to the claim and names the next state. The run
// loop applies transitions until a terminal state is reached or a step fails.
package saga

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"claimsaga/internal/domain"
	"claimsaga/internal/store"
)

const tracerName = "claimsaga/internal/saga"

// transitions lists every allowed (from, to) pair.
var transitions = map[domain.Status][]domain.Status{
	domain.StatusFiled:    {domain.StatusVerified, domain.StatusEscalated},
	domain.StatusVerified: {domain.StatusValuated},
	domain.StatusValuated: {domain.StatusPaid, domain.StatusApproved},
}

// CanTransition reports whether the state machine allows from -> to.
func CanTransition(from, to domain.Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// outcome is what a step decided: the next state plus the audit event that
// records the transition.
type outcome struct {
	next  domain.Status
	event string
	data  map[string]any
}

type stepFunc func(ctx context.Context, c *domain.Claim) (outcome, error)

type Deps struct {
	Claims   store.Store[domain.Claim]
	Verifier Verifier
	Valuator Valuator
	Payer    Payer
	Auditor  Auditor
	Watcher  Watcher
	Side     *SideChannel
	Logger   *log.Logger
	// StepTimeout bounds each critical-path call; zero leaves it to the
	// collaborator client.
	StepTimeout time.Duration
}

type Orchestrator struct {
	Claims      store.Store[domain.Claim]
	Verifier    Verifier
	Valuator    Valuator
	Payer       Payer
	Auditor     Auditor
	Watcher     Watcher
	Side        *SideChannel
	Logger      *log.Logger
	StepTimeout time.Duration
	Now         func() time.Time
	NewID       func() string
	Tracer      trace.Tracer
}

func New(d Deps) *Orchestrator {
	if d.Claims == nil {
		d.Claims = store.NewMemory[domain.Claim]()
	}
	if d.Logger == nil {
		d.Logger = log.Default()
	}
	if d.Side == nil {
		d.Side = NewSideChannel(0, 0, d.Logger)
	}
	return &Orchestrator{
		Claims:      d.Claims,
		Verifier:    d.Verifier,
		Valuator:    d.Valuator,
		Payer:       d.Payer,
		Auditor:     d.Auditor,
		Watcher:     d.Watcher,
		Side:        d.Side,
		Logger:      d.Logger,
		StepTimeout: d.StepTimeout,
		Now:         time.Now,
		NewID:       uuid.NewString,
		Tracer:      otel.Tracer(tracerName),
	}
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

func (o *Orchestrator) tracer() trace.Tracer {
	if o.Tracer != nil {
		return o.Tracer
	}
	return otel.Tracer(tracerName)
}

func (o *Orchestrator) stepFor(s domain.Status) (Step, stepFunc, bool) {
	switch s {
	case domain.StatusFiled:
		return StepVerify, o.verify, true
	case domain.StatusVerified:
		return StepValuate, o.valuate, true
	case domain.StatusValuated:
		return StepSettle, o.settle, true
	}
	return "", nil, false
}

// FileClaim validates the input, records the claim as FILED and runs the saga
// to a terminal state. On a critical-path failure the returned claim is the
// last stored state and the error is a *StepError.
func (o *Orchestrator) FileClaim(ctx context.Context, in domain.ClaimInput) (domain.Claim, error) {
	lossDate, err := in.Validate()
	if err != nil {
		return domain.Claim{}, err
	}
	now := o.now().UTC()
	c := domain.Claim{
		ClaimID:    o.NewID(),
		Status:     domain.StatusFiled,
		PolicyID:   in.PolicyID,
		HolderName: in.HolderName,
		VIN:        in.VIN,
		LossDate:   lossDate,
		LossType:   in.LossType,
		Details:    in.Details,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	ctx, span := o.tracer().Start(ctx, "saga.FileClaim", trace.WithAttributes(attribute.String("claim.id", c.ClaimID)))
	defer span.End()

	if err := o.Claims.Put(ctx, c.ClaimID, c); err != nil {
		return domain.Claim{}, o.fail(span, &StepError{ClaimID: c.ClaimID, Step: StepIntake, Err: err})
	}
	o.audit(domain.EventClaimFiled, eventData(c.ClaimID, c))

	for !c.Status.Terminal() {
		step, fn, ok := o.stepFor(c.Status)
		if !ok {
			return c, o.fail(span, &StepError{ClaimID: c.ClaimID, Step: StepIntake, Err: fmt.Errorf("no step for status %s", c.Status)})
		}
		next := c
		out, err := o.runStep(ctx, &next, step, fn)
		if err != nil {
			return c, o.fail(span, &StepError{ClaimID: c.ClaimID, Step: step, Err: err})
		}
		if err := o.transition(ctx, &next, out); err != nil {
			return c, o.fail(span, &StepError{ClaimID: c.ClaimID, Step: step, Err: err})
		}
		c = next
	}
	span.SetAttributes(attribute.String("claim.status", string(c.Status)))

	if c.Status != domain.StatusEscalated {
		o.watch(c)
	}
	return c, nil
}

func (o *Orchestrator) runStep(ctx context.Context, c *domain.Claim, step Step, fn stepFunc) (outcome, error) {
	ctx, span := o.tracer().Start(ctx, "saga."+string(step), trace.WithAttributes(
		attribute.String("claim.id", c.ClaimID),
		attribute.String("claim.status", string(c.Status)),
	))
	defer span.End()
	if o.StepTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.StepTimeout)
		defer cancel()
	}
	out, err := fn(ctx, c)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return outcome{}, err
	}
	span.SetAttributes(attribute.String("claim.next_status", string(out.next)))
	return out, nil
}

func (o *Orchestrator) transition(ctx context.Context, c *domain.Claim, out outcome) error {
	if !CanTransition(c.Status, out.next) {
		return fmt.Errorf("transition %s -> %s not allowed", c.Status, out.next)
	}
	c.Status = out.next
	c.UpdatedAt = o.now().UTC()
	if err := o.Claims.Put(ctx, c.ClaimID, *c); err != nil {
		return fmt.Errorf("store claim: %w", err)
	}
	o.audit(out.event, out.data)
	return nil
}

func (o *Orchestrator) fail(span trace.Span, err *StepError) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	o.Logger.Printf("saga: %v", err)
	return err
}

func (o *Orchestrator) verify(ctx context.Context, c *domain.Claim) (outcome, error) {
	if o.Verifier == nil {
		return outcome{}, errors.New("no verifier configured")
	}
	res, err := o.Verifier.Verify(ctx, domain.VerifyRequest{
		ClaimID:  c.ClaimID,
		PolicyID: c.PolicyID,
		VIN:      c.VIN,
		LossType: c.LossType,
		LossDate: domain.FormatLossDate(c.LossDate),
	})
	if err != nil {
		return outcome{}, err
	}
	if err := c.AttachVerification(res); err != nil {
		return outcome{}, err
	}
	next := domain.StatusEscalated
	if res.Verified {
		next = domain.StatusVerified
	}
	return outcome{next: next, event: domain.EventVerificationCompleted, data: eventData(c.ClaimID, res)}, nil
}

func (o *Orchestrator) valuate(ctx context.Context, c *domain.Claim) (outcome, error) {
	if o.Valuator == nil {
		return outcome{}, errors.New("no valuator configured")
	}
	v, err := o.Valuator.Valuate(ctx, domain.ValuationRequest{ClaimID: c.ClaimID, VIN: c.VIN, LossType: c.LossType})
	if err != nil {
		return outcome{}, err
	}
	if err := c.AttachValuation(v); err != nil {
		return outcome{}, err
	}
	return outcome{next: domain.StatusValuated, event: domain.EventValuationCompleted, data: eventData(c.ClaimID, v)}, nil
}

// settle pays payouts within the auto-approval cap. Anything above the cap,
// or a payment that does not report success, is left APPROVED for manual
// release.
func (o *Orchestrator) settle(ctx context.Context, c *domain.Claim) (outcome, error) {
	payout := c.Valuation.PayoutAmount
	if payout > c.Valuation.Cap() {
		return outcome{
			next:  domain.StatusApproved,
			event: domain.EventClaimApproved,
			data:  map[string]any{"claimId": c.ClaimID, "amount": payout},
		}, nil
	}
	if o.Payer == nil {
		return outcome{}, errors.New("no payer configured")
	}
	p, err := o.Payer.Pay(ctx, domain.PaymentRequest{
		ClaimID:   c.ClaimID,
		Amount:    payout,
		Recipient: c.HolderName,
		Method:    domain.PaymentMethodACH,
	})
	if err != nil {
		return outcome{}, err
	}
	if err := c.AttachPayment(p); err != nil {
		return outcome{}, err
	}
	next := domain.StatusApproved
	if p.Status == domain.PaymentSucceeded {
		next = domain.StatusPaid
	}
	return outcome{next: next, event: domain.EventPaymentCompleted, data: eventData(c.ClaimID, p)}, nil
}

func (o *Orchestrator) audit(eventType string, data map[string]any) {
	if o.Auditor == nil {
		return
	}
	o.Side.Fire("audit "+eventType, func(ctx context.Context) error {
		return o.Auditor.Record(ctx, eventType, data)
	})
}

func (o *Orchestrator) watch(c domain.Claim) {
	if o.Watcher == nil {
		return
	}
	req := domain.WatchRequest{VIN: c.VIN, Reason: c.LossType, ClaimID: c.ClaimID}
	o.Side.Fire("watch "+c.VIN, func(ctx context.Context) error {
		return o.Watcher.Watch(ctx, req)
	})
}

// GetClaim returns the stored claim or an error wrapping store.ErrNotFound.
func (o *Orchestrator) GetClaim(ctx context.Context, claimID string) (domain.Claim, error) {
	c, err := o.Claims.Get(ctx, claimID)
	if err != nil {
		return domain.Claim{}, fmt.Errorf("claim %s: %w", claimID, err)
	}
	return c, nil
}

// ListClaims returns every claim, newest first.
func (o *Orchestrator) ListClaims(ctx context.Context) ([]domain.Claim, error) {
	items, err := o.Claims.List(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	return items, nil
}

// eventData flattens v into an audit payload and stamps the claim id.
func eventData(claimID string, v any) map[string]any {
	data := map[string]any{}
	if b, err := json.Marshal(v); err == nil {
		_ = json.Unmarshal(b, &data)
	}
	data["claimId"] = claimID
	return data
}
