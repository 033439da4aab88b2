package sim

import (
	"context"
	"time"
)

// DefaultFrameInterval is the wall-clock length of one simulation frame.
const DefaultFrameInterval = 30 * time.Millisecond

const (
	loopStepsMetricKey   = "sim_loop_steps_total"
	loopOverrunMetricKey = "sim_loop_overruns_total"
)

// Stepper is driven once per host tick. An error stops the loop.
type Stepper interface {
	Step(now time.Time) error
}

// StepperFunc adapts a function to Stepper.
type StepperFunc func(now time.Time) error

func (f StepperFunc) Step(now time.Time) error {
	return f(now)
}

// LoopConfig tunes the host tick.
type LoopConfig struct {
	FrameInterval time.Duration
}

// LoopStepResult describes one completed tick.
type LoopStepResult struct {
	Tick     uint64
	Now      time.Time
	Duration time.Duration
	Budget   time.Duration
	Overrun  bool
}

// LoopHooks observe the loop without being able to alter it.
type LoopHooks struct {
	AfterStep func(LoopStepResult)
}

// Loop calls a Stepper on a fixed timestep until its context ends or the
// stepper fails.
type Loop struct {
	stepper  Stepper
	config   LoopConfig
	hooks    LoopHooks
	deps     Deps
	tick     uint64
	overruns uint64
}

// NewLoop wraps stepper with a ticker.
func NewLoop(stepper Stepper, cfg LoopConfig, deps Deps, hooks LoopHooks) *Loop {
	if stepper == nil {
		return nil
	}
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = DefaultFrameInterval
	}
	return &Loop{
		stepper: stepper,
		config:  cfg,
		hooks:   hooks,
		deps:    deps.withDefaults(),
	}
}

// Ticks reports how many steps have run.
func (l *Loop) Ticks() uint64 {
	if l == nil {
		return 0
	}
	return l.tick
}

// Run blocks until ctx is done or the stepper returns an error. The context
// error is returned on cancellation.
func (l *Loop) Run(ctx context.Context) error {
	if l == nil {
		return nil
	}
	ticker := time.NewTicker(l.config.FrameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := l.step(); err != nil {
				return err
			}
		}
	}
}

func (l *Loop) step() error {
	clock := l.deps.Clock
	now := clock.Now()
	l.tick++
	err := l.stepper.Step(now)
	result := LoopStepResult{
		Tick:     l.tick,
		Now:      now,
		Duration: clock.Now().Sub(now),
		Budget:   l.config.FrameInterval,
	}
	result.Overrun = result.Duration > result.Budget
	l.deps.Metrics.Add(loopStepsMetricKey, 1)
	if result.Overrun {
		l.overruns++
		l.deps.Metrics.Add(loopOverrunMetricKey, 1)
		if l.overruns&(l.overruns-1) == 0 {
			l.deps.Logger.Printf(
				"[loop] step overran budget tick=%d duration=%s budget=%s count=%d",
				result.Tick,
				result.Duration,
				result.Budget,
				l.overruns,
			)
		}
	}
	if l.hooks.AfterStep != nil {
		l.hooks.AfterStep(result)
	}
	return err
}
