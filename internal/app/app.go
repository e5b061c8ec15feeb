// Package app assembles the claimsaga services from configuration.
package app

import (
	"context"
	"fmt"
	"log"

	"claimsaga/internal/audit"
	"claimsaga/internal/collab"
	"claimsaga/internal/config"
	"claimsaga/internal/domain"
	"claimsaga/internal/history"
	"claimsaga/internal/payment"
	"claimsaga/internal/saga"
	"claimsaga/internal/store"
	"claimsaga/internal/valuation"
	"claimsaga/internal/verify"
	"claimsaga/internal/watch"
)

const historyCleanupFactor = 2

// Services is the assembled process. The collaborator services always exist
// in-process; the orchestrator reaches each one in-process or over HTTP
// depending on the configured URL.
type Services struct {
	Config       *config.Config
	Logger       *log.Logger
	History      *history.Cached
	Verifier     verify.Engine
	Valuation    valuation.Calculator
	Payments     *payment.Executor
	Audit        *audit.Log
	Watches      watch.Registry
	Side         *saga.SideChannel
	Orchestrator *saga.Orchestrator
}

// Build wires every service described by cfg.
func Build(ctx context.Context, cfg *config.Config, logger *log.Logger) (*Services, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = log.Default()
	}
	auditLog, err := audit.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}

	hist := history.NewCached(history.Simulator{Delay: cfg.History.Delay}, cfg.History.CacheTTL, historyCleanupFactor*cfg.History.CacheTTL)
	engine := verify.New(hist)
	engine.Logger = logger

	s := &Services{
		Config:    cfg,
		Logger:    logger,
		History:   hist,
		Verifier:  engine,
		Valuation: valuation.New(cfg.Valuation),
		Payments:  payment.New(store.NewMemory[domain.Disbursement]()),
		Audit:     auditLog,
		Watches:   watch.New(store.NewMemory[domain.Watch]()),
		Side:      saga.NewSideChannel(cfg.SideChannel.QueueSize, cfg.SideChannel.Timeout, logger),
	}
	s.Orchestrator = saga.New(s.deps())
	return s, nil
}

func (s *Services) deps() saga.Deps {
	c := s.Config.Collaborators
	d := saga.Deps{
		Claims:   store.NewMemory[domain.Claim](),
		Verifier: collab.LocalVerifier{Engine: s.Verifier},
		Valuator: collab.LocalValuator{Calculator: s.Valuation},
		Payer:    collab.LocalPayer{Executor: s.Payments},
		Auditor:  collab.LocalAuditor{Log: s.Audit},
		Watcher:  collab.LocalWatcher{Registry: s.Watches},
		Side:     s.Side,
		Logger:   s.Logger,

		StepTimeout: c.StepTimeout,
	}
	if c.VerificationURL != "" {
		d.Verifier = collab.VerificationClient{Client: collab.NewClient(c.VerificationURL, c.Timeout)}
	}
	if c.ValuationURL != "" {
		d.Valuator = collab.ValuationClient{Client: collab.NewClient(c.ValuationURL, c.Timeout)}
	}
	if c.PaymentURL != "" {
		d.Payer = collab.PaymentClient{Client: collab.NewClient(c.PaymentURL, c.Timeout)}
	}
	if c.AuditURL != "" {
		d.Auditor = collab.AuditClient{Client: collab.NewClient(c.AuditURL, c.AuditTimeout)}
	}
	if c.VINURL != "" {
		d.Watcher = collab.WatchClient{Client: collab.NewClient(c.VINURL, c.Timeout)}
	}
	return d
}

// Close drains pending side-channel calls and releases the audit database.
func (s *Services) Close(ctx context.Context) error {
	if err := s.Side.Flush(ctx); err != nil {
		s.Logger.Printf("app: flush side channel: %v", err)
	}
	s.Side.Close()
	return s.Audit.Close()
}
