// Package optimizer enumerates distinct, high-scoring meal plans from a
// candidate catalog under nutrient bounds.
//
// A run builds one integer program, then repeatedly re-weights its objective
// by item reuse, solves it, and cuts off the accepted plan's neighbourhood
// until K plans are found, the model becomes infeasible, or the time budget
// is spent.
package optimizer

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fuelstack/internal/menu"
	"fuelstack/internal/mip"
)

// DefaultPlanCount is the default number of plans a run looks for.
const DefaultPlanCount = 10

// Observer receives run telemetry. Implementations must be safe for
// concurrent use.
type Observer interface {
	ObserveSolve(status string, elapsed time.Duration)
	ObserveRun(stopReason string, plans int, elapsed time.Duration)
}

// Optimizer runs the enumeration loop against an Engine.
type Optimizer struct {
	engine    mip.Engine
	planCount int
	lambda    float64
	budget    time.Duration
	logger    *zap.Logger
	observer  Observer
	now       func() time.Time
}

// Option configures an Optimizer.
type Option func(*Optimizer)

// WithPlanCount sets K, the maximum number of plans per run.
func WithPlanCount(k int) Option { return func(o *Optimizer) { o.planCount = k } }

// WithReusePenalty sets the per-reuse objective penalty.
func WithReusePenalty(lambda float64) Option { return func(o *Optimizer) { o.lambda = lambda } }

// WithTimeBudget bounds a run's wall-clock time. It is only checked between
// an accepted plan and the next solve; zero disables it.
func WithTimeBudget(d time.Duration) Option { return func(o *Optimizer) { o.budget = d } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(o *Optimizer) { o.logger = l } }

// WithObserver sets a telemetry sink.
func WithObserver(obs Observer) Option { return func(o *Optimizer) { o.observer = obs } }

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option { return func(o *Optimizer) { o.now = now } }

// New returns an Optimizer using engine.
func New(engine mip.Engine, opts ...Option) *Optimizer {
	o := &Optimizer{
		engine:    engine,
		planCount: DefaultPlanCount,
		lambda:    DefaultReusePenalty,
		logger:    zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run enumerates up to K plans for items under bounds. Configuration
// problems are reported before any solve; engine failures abort the run
// and no partial result is returned.
func (o *Optimizer) Run(ctx context.Context, items []menu.CandidateItem, bounds menu.NutrientBounds) (PlanSet, error) {
	start := o.now()
	set := PlanSet{RunID: uuid.NewString()}
	log := o.logger.With(zap.String("run_id", set.RunID))

	if o.planCount < 1 {
		return PlanSet{}, configErr(nil, "plan count must be at least 1, got %d", o.planCount)
	}
	if o.lambda < 0 {
		return PlanSet{}, configErr(nil, "reuse penalty must not be negative, got %g", o.lambda)
	}

	f, err := Build(items, bounds)
	if err != nil {
		log.Warn("request rejected", zap.Error(err))
		return PlanSet{}, err
	}
	tracker := NewDiversityTracker(o.lambda)
	log.Debug("model built",
		zap.Int("candidates", len(items)),
		zap.Int("variables", f.Model.NumVars()),
		zap.Int("constraints", f.Model.NumConstraints()))

	for {
		if len(set.Plans) >= o.planCount {
			set.StopReason = StopCountReached
			break
		}
		if len(set.Plans) > 0 && o.budget > 0 && o.now().Sub(start) >= o.budget {
			set.StopReason = StopBudget
			break
		}

		iteration := len(set.Plans) + 1
		ApplyObjective(f, tracker.Counters(), o.lambda)

		solveStart := time.Now()
		sol, err := o.engine.Solve(ctx, f.Model)
		set.Solves++
		if err != nil {
			log.Error("engine failed", zap.Int("iteration", iteration), zap.Error(err))
			o.observeSolve("error", solveStart)
			return PlanSet{}, &EngineFailure{Iteration: iteration, Err: err}
		}
		o.observeSolve(sol.Status.String(), solveStart)

		if sol.Status != mip.StatusOptimal {
			set.StopReason = StopExhausted
			log.Debug("no further plan", zap.Int("iteration", iteration), zap.Stringer("status", sol.Status))
			break
		}

		plan := f.Plan(sol)
		set.Plans = append(set.Plans, plan)
		tracker.Record(plan)
		AddUniquenessCut(f, plan.Selection(), iteration)

		log.Debug("plan accepted",
			zap.Int("iteration", iteration),
			zap.Float64("objective", sol.Objective),
			zap.Float64("score", plan.Score),
			zap.Int("items", len(plan.Items)),
			zap.Int("nodes", sol.Nodes))
	}

	elapsed := o.now().Sub(start)
	if o.observer != nil {
		o.observer.ObserveRun(string(set.StopReason), len(set.Plans), elapsed)
	}
	log.Info("optimization finished",
		zap.Int("plans", len(set.Plans)),
		zap.String("stop_reason", string(set.StopReason)),
		zap.Int("solves", set.Solves),
		zap.Duration("elapsed", elapsed))
	return set, nil
}

func (o *Optimizer) observeSolve(status string, start time.Time) {
	if o.observer != nil {
		o.observer.ObserveSolve(status, time.Since(start))
	}
}
