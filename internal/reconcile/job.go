// Package reconcile hosts the balance reconciliation job: it repairs the
// refund gate when a seller's unpaid balance and the gate disagree, and
// re-runs the probation removal check for probated sellers.
package reconcile

import (
	"context"
	"fmt"

	"github.com/MarkoPoloResearchLab/sellerrisk/pkg/risk"
	"go.uber.org/zap"
)

const (
	// enableThresholdCents is the lowest balance at which refunds come back.
	enableThresholdCents = 1
	// disableThresholdCents is the highest balance at which refunds shut off.
	// The gap between the two thresholds keeps sellers hovering near the low
	// boundary from flapping.
	disableThresholdCents = -100_01
)

// Engine is the slice of the risk service the job drives.
type Engine interface {
	Profile(ctx context.Context, userID risk.UserID) (risk.ProfileView, error)
	EnableRefunds(ctx context.Context, userID risk.UserID) error
	DisableRefunds(ctx context.Context, userID risk.UserID) error
	CheckForHighBalanceAndRemoveLowBalanceProbation(ctx context.Context, userID risk.UserID) error
}

// Job reconciles one seller's refund gate against the unpaid balance.
type Job struct {
	engine Engine
	logger *zap.Logger
}

// NewJob wires a reconciliation job.
func NewJob(engine Engine, logger *zap.Logger) (*Job, error) {
	if engine == nil {
		return nil, fmt.Errorf("%w: engine dependency is nil", risk.ErrInvalidServiceConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Job{engine: engine, logger: logger}, nil
}

// Perform reconciles the seller. A missing profile surfaces as
// risk.ErrProfileNotFound so the runner can retry and dead-letter.
func (job *Job) Perform(ctx context.Context, userID risk.UserID) error {
	view, err := job.engine.Profile(ctx, userID)
	if err != nil {
		return err
	}
	switch {
	case view.UnpaidBalanceCents >= enableThresholdCents && view.RefundsDisabled:
		if err := job.engine.EnableRefunds(ctx, userID); err != nil {
			return err
		}
		job.logger.Info("refunds re-enabled",
			zap.String("user_id", userID.String()),
			zap.Int64("balance_cents", view.UnpaidBalanceCents))
	case view.UnpaidBalanceCents <= disableThresholdCents && !view.RefundsDisabled:
		if err := job.engine.DisableRefunds(ctx, userID); err != nil {
			return err
		}
		job.logger.Info("refunds disabled",
			zap.String("user_id", userID.String()),
			zap.Int64("balance_cents", view.UnpaidBalanceCents))
	}
	if view.State == risk.RiskStateOnProbation {
		if err := job.engine.CheckForHighBalanceAndRemoveLowBalanceProbation(ctx, userID); err != nil {
			return err
		}
	}
	return nil
}
