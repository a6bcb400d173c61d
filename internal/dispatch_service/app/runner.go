package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Runner ties one selection to one dispatch and drives that pair from a
// cron schedule.
type Runner struct {
	selector   *Selector
	dispatcher *Dispatcher
	logger     *slog.Logger
	loc        *time.Location
	timeout    time.Duration
	now        func() time.Time
}

func NewRunner(selector *Selector, dispatcher *Dispatcher, loc *time.Location, timeout time.Duration, logger *slog.Logger) *Runner {
	if loc == nil {
		loc = time.Local
	}
	return &Runner{
		selector:   selector,
		dispatcher: dispatcher,
		logger:     logger.With("component", "dispatch_runner"),
		loc:        loc,
		timeout:    timeout,
		now:        time.Now,
	}
}

// RunOnce performs a single invocation: select, then dispatch. The current
// hour is taken in the runner's location.
func (r *Runner) RunOnce(ctx context.Context) Outcome {
	start := time.Now()
	now := r.now().In(r.loc)

	var out Outcome
	sel, err := r.selector.Select(ctx, now)
	if err != nil {
		out = Outcome{Kind: OutcomeFailed, Err: err}
	} else {
		out = r.dispatcher.Dispatch(ctx, sel, now)
	}

	dispatchInvocationsCounter.WithLabelValues(string(out.Kind), string(out.Collection)).Inc()
	dispatchDurationHist.WithLabelValues(string(out.Kind)).Observe(time.Since(start).Seconds())

	if out.Kind == OutcomeFailed {
		r.logger.ErrorContext(ctx, "Dispatch invocation failed", "outcome", out.String(), "error", out.Err)
	} else {
		r.logger.InfoContext(ctx, "Dispatch invocation finished", "outcome", out.String())
	}
	return out
}

// Run schedules RunOnce on spec and blocks until ctx is cancelled, then waits
// for an in-flight invocation to finish. A firing that arrives while the
// previous one is still running is skipped.
func (r *Runner) Run(ctx context.Context, spec string) error {
	cl := cronLogger{logger: r.logger}
	c := cron.New(
		cron.WithLocation(r.loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	_, err := c.AddFunc(spec, func() {
		runCtx := ctx
		if r.timeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(ctx, r.timeout)
			defer cancel()
		}
		r.RunOnce(runCtx)
	})
	if err != nil {
		return fmt.Errorf("invalid dispatch schedule %q: %w", spec, err)
	}

	c.Start()
	r.logger.InfoContext(ctx, "Dispatch schedule started", "schedule", spec, "tz", r.loc.String())

	<-ctx.Done()
	r.logger.Info("Stopping dispatch schedule")
	<-c.Stop().Done()
	r.logger.Info("Dispatch schedule stopped")
	return nil
}

// cronLogger routes cron's internal logging into slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
