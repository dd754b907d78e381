// Package topup decides whether the platform's PayPal settlement float
// covers the upcoming payout run, and notifies operators of the position.
package topup

import (
	"context"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/sellerrisk/internal/paypal"
	"github.com/MarkoPoloResearchLab/sellerrisk/pkg/payouts"
	"github.com/shopspring/decimal"
)

// LedgerQuerier is the slice of the store the checker reads.
type LedgerQuerier interface {
	PayoutAmountCents(ctx context.Context, payoutDateCutoff time.Time, paymentsSince time.Time) (int64, error)
}

// Checker holds one funding-position snapshot. All inputs are fetched at
// construction; the accessors never refetch.
type Checker struct {
	payoutAmountCents   int64
	currentBalanceCents int64
	topupInTransitCents int64
	topupAmountCents    int64
}

// NewChecker snapshots the funding position as of the reference time.
func NewChecker(ctx context.Context, ledger LedgerQuerier, processor paypal.Processor, reference time.Time) (*Checker, error) {
	payoutCutoff := payouts.NextScheduledPayoutDate(reference)
	paymentsSince := payouts.PaymentLookbackWindow(reference)
	payoutAmountCents, err := ledger.PayoutAmountCents(ctx, payoutCutoff, paymentsSince)
	if err != nil {
		return nil, fmt.Errorf("payout amount: %w", err)
	}
	currentBalanceCents, err := processor.CurrentBalanceCents(ctx)
	if err != nil {
		return nil, fmt.Errorf("current balance: %w", err)
	}
	inTransit, err := processor.TopupAmountInTransit(ctx)
	if err != nil {
		return nil, fmt.Errorf("in-transit amount: %w", err)
	}
	topupInTransitCents := inTransit.Mul(decimal.NewFromInt(100)).IntPart()
	return &Checker{
		payoutAmountCents:   payoutAmountCents,
		currentBalanceCents: currentBalanceCents,
		topupInTransitCents: topupInTransitCents,
		topupAmountCents:    payoutAmountCents - currentBalanceCents - topupInTransitCents,
	}, nil
}

// PayoutAmountCents is the unpaid ledger total due by the payout cutoff for
// recently active PayPal payees.
func (checker *Checker) PayoutAmountCents() int64 { return checker.payoutAmountCents }

// CurrentBalanceCents is the live settlement-account balance.
func (checker *Checker) CurrentBalanceCents() int64 { return checker.currentBalanceCents }

// TopupInTransitCents is the initiated-but-unsettled top-up, in cents.
func (checker *Checker) TopupInTransitCents() int64 { return checker.topupInTransitCents }

// TopupAmountCents is the shortfall after counting the current balance and
// any top-up in transit. Negative means surplus.
func (checker *Checker) TopupAmountCents() int64 { return checker.topupAmountCents }

// TopupNeeded reports whether a top-up must be initiated.
func (checker *Checker) TopupNeeded() bool { return checker.topupAmountCents > 0 }
