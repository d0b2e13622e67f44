// Package app provides the application layer that orchestrates plan
// operations. It sits between the CLI and the core packages: it loads
// plans from a store, runs the pure validators and engines over them,
// consults transition policies and persists the result. The CLI is a thin
// adapter over PlanApp.
package app

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/josephgoksu/plantrack/internal/config"
	"github.com/josephgoksu/plantrack/internal/eligibility"
	"github.com/josephgoksu/plantrack/internal/layout"
	"github.com/josephgoksu/plantrack/internal/logger"
	"github.com/josephgoksu/plantrack/internal/policy"
	"github.com/josephgoksu/plantrack/internal/semantic"
	"github.com/josephgoksu/plantrack/internal/status"
	"github.com/josephgoksu/plantrack/store"
)

// Options holds the dependencies of a PlanApp. Only Store is required.
type Options struct {
	Store store.PlanStore

	// Config defaults to config.DefaultPlanConfig() when nil.
	Config *config.PlanConfig

	// Policies, when set, is consulted before every transition and reopen.
	Policies *policy.Engine

	// Audit, when set, records every policy decision.
	Audit *policy.AuditStore

	Logger *slog.Logger
	Clock  func() time.Time
}

// PlanApp provides plan lifecycle operations.
// This is THE implementation - the CLI only formats what it returns.
type PlanApp struct {
	store    store.PlanStore
	cfg      config.PlanConfig
	policies *policy.Engine
	audit    *policy.AuditStore
	log      *slog.Logger
	now      func() time.Time

	validator *semantic.Validator
	checker   *eligibility.Checker
	engine    *status.Engine
	deriver   *layout.Deriver

	locks planLocks
}

// New creates a PlanApp. The plan configuration is validated up front so
// a bad config file fails before any plan is touched.
func New(opts Options) (*PlanApp, error) {
	if opts.Store == nil {
		return nil, errors.New("app: a plan store is required")
	}
	cfg := config.DefaultPlanConfig()
	if opts.Config != nil {
		cfg = *opts.Config
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	return &PlanApp{
		store:     opts.Store,
		cfg:       cfg,
		policies:  opts.Policies,
		audit:     opts.Audit,
		log:       log,
		now:       clock,
		validator: semantic.New(cfg),
		checker:   eligibility.New(cfg),
		engine:    status.New(cfg, clock),
		deriver:   layout.New(cfg),
		locks:     planLocks{held: make(map[string]*sync.Mutex)},
	}, nil
}

// Config returns the plan configuration in effect.
func (a *PlanApp) Config() config.PlanConfig { return a.cfg }

// planLocks serializes read-modify-write cycles per plan ID. Mutexes are
// never released; the set is bounded by the number of plans touched.
type planLocks struct {
	mu   sync.Mutex
	held map[string]*sync.Mutex
}

func (l *planLocks) lock(id string) func() {
	l.mu.Lock()
	m, ok := l.held[id]
	if !ok {
		m = &sync.Mutex{}
		l.held[id] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
