package startup

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
)

// Dependency is an external resource the service needs before it can take traffic.
type Dependency interface {
	GetName() string
	DependsOn() []string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type Status int

const (
	StatusPending Status = iota
	StatusStarted
	StatusStopped
	StatusFailed
)

// Runner starts dependencies in dependency order, retrying the whole set with a
// fibonacci backoff until maxAttempts is reached.
type Runner struct {
	order        []string
	dependencies map[string]Dependency
	statuses     map[string]Status
	logger       ectologger.Logger
	maxAttempts  int
	unit         time.Duration
}

func NewRunner(logger ectologger.Logger, maxAttempts int) *Runner {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Runner{
		dependencies: make(map[string]Dependency),
		statuses:     make(map[string]Status),
		logger:       logger,
		maxAttempts:  maxAttempts,
		unit:         time.Second,
	}
}

func (r *Runner) Add(dependency Dependency) {
	name := dependency.GetName()
	if _, ok := r.dependencies[name]; !ok {
		r.order = append(r.order, name)
	}
	r.dependencies[name] = dependency
}

func (r *Runner) Status(name string) Status {
	return r.statuses[name]
}

func (r *Runner) Start(ctx context.Context) error {
	var lastErr error

	a, b := 1, 1
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		r.logger.WithField("attempt", attempt).Infof("Beginning startup attempt %d", attempt)

		lastErr = nil
		for _, name := range r.order {
			if err := r.start(ctx, name, map[string]bool{}); err != nil {
				r.logger.WithError(err).Errorf("Startup dependency '%s' attempt %d failed", name, attempt)
				lastErr = err
				break
			}
		}

		if lastErr == nil {
			return nil
		}
		if attempt == r.maxAttempts {
			break
		}

		wait := time.Duration(a) * r.unit
		r.logger.Infof("Retrying in %s (attempt %d/%d)", wait, attempt, r.maxAttempts)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		a, b = b, a+b
	}

	return fmt.Errorf("startup failed after %d attempts: %w", r.maxAttempts, lastErr)
}

func (r *Runner) start(ctx context.Context, name string, visiting map[string]bool) error {
	if r.statuses[name] == StatusStarted {
		return nil
	}

	dependency, ok := r.dependencies[name]
	if !ok {
		return fmt.Errorf("unknown startup dependency '%s'", name)
	}
	if visiting[name] {
		return fmt.Errorf("startup dependency cycle at '%s'", name)
	}
	visiting[name] = true

	for _, parent := range dependency.DependsOn() {
		if err := r.start(ctx, parent, visiting); err != nil {
			return err
		}
	}

	r.logger.WithField("dependency", name).Infof("Starting dependency '%s'", name)
	r.statuses[name] = StatusPending
	if err := dependency.Start(ctx); err != nil {
		r.statuses[name] = StatusFailed
		return err
	}
	r.statuses[name] = StatusStarted
	return nil
}

// Stop stops started dependencies in reverse registration order.
func (r *Runner) Stop(ctx context.Context) error {
	var firstErr error
	for i := len(r.order) - 1; i >= 0; i-- {
		name := r.order[i]
		if r.statuses[name] != StatusStarted {
			continue
		}

		logger := r.logger.WithField("dependency", name)
		logger.Infof("Stopping dependency '%s'", name)
		if err := r.dependencies[name].Stop(ctx); err != nil {
			logger.WithError(err).Errorf("Failed to stop dependency '%s'", name)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		r.statuses[name] = StatusStopped
	}
	return firstErr
}

// Func adapts plain start/stop functions to Dependency.
type Func struct {
	Name     string
	Requires []string
	OnStart  func(ctx context.Context) error
	OnStop   func(ctx context.Context) error
}

func (f Func) GetName() string {
	return f.Name
}

func (f Func) DependsOn() []string {
	return f.Requires
}

func (f Func) Start(ctx context.Context) error {
	if f.OnStart == nil {
		return nil
	}
	return f.OnStart(ctx)
}

func (f Func) Stop(ctx context.Context) error {
	if f.OnStop == nil {
		return nil
	}
	return f.OnStop(ctx)
}
