// Package worker runs scheduled jobs with bounded retries, a dead-letter
// hook for exhausted jobs, and at-most-one-in-flight execution per job key.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/sellerrisk/pkg/risk"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Job is one unit of work.
type Job func(ctx context.Context) error

// DeadLetterFunc receives jobs that failed every attempt.
type DeadLetterFunc func(ctx context.Context, key string, err error)

// Runner executes jobs.
type Runner struct {
	maxAttempts int
	backoff     time.Duration
	deadLetter  DeadLetterFunc
	logger      *zap.Logger
	group       singleflight.Group
}

// NewRunner wires a runner. backoff is the base delay; attempt N waits
// N times the base.
func NewRunner(maxAttempts int, backoff time.Duration, deadLetter DeadLetterFunc, logger *zap.Logger) (*Runner, error) {
	if maxAttempts < 1 {
		return nil, fmt.Errorf("%w: maxAttempts must be at least 1", risk.ErrInvalidServiceConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		maxAttempts: maxAttempts,
		backoff:     backoff,
		deadLetter:  deadLetter,
		logger:      logger,
	}, nil
}

// Run executes the job under its key. Concurrent calls with the same key
// share one execution and its result. After the last failed attempt the job
// is handed to the dead-letter hook and the error returned.
func (runner *Runner) Run(ctx context.Context, key string, job Job) error {
	_, err, _ := runner.group.Do(key, func() (interface{}, error) {
		return nil, runner.runWithRetries(ctx, key, job)
	})
	return err
}

func (runner *Runner) runWithRetries(ctx context.Context, key string, job Job) error {
	var lastError error
	for attempt := 1; attempt <= runner.maxAttempts; attempt++ {
		lastError = job(ctx)
		if lastError == nil {
			return nil
		}
		runner.logger.Warn("job attempt failed",
			zap.String("key", key),
			zap.Int("attempt", attempt),
			zap.Error(lastError))
		if attempt == runner.maxAttempts {
			break
		}
		if err := sleepContext(ctx, time.Duration(attempt)*runner.backoff); err != nil {
			lastError = err
			break
		}
	}
	if runner.deadLetter != nil {
		runner.deadLetter(ctx, key, lastError)
	}
	return lastError
}

// Every runs the job under its key immediately and then on every interval
// tick until the context is cancelled.
func (runner *Runner) Every(ctx context.Context, key string, interval time.Duration, job Job) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	_ = runner.Run(ctx, key, job)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = runner.Run(ctx, key, job)
		}
	}
}

func sleepContext(ctx context.Context, duration time.Duration) error {
	if duration <= 0 {
		return nil
	}
	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
