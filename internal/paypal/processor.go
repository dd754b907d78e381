// Package paypal integrates with the payment processor that settles PayPal
// payouts. The platform keeps a float in the settlement account; this
// package reports the live balance and any replenishment still in transit.
package paypal

import (
	"context"

	"github.com/shopspring/decimal"
)

// Processor reports the settlement-account funding position.
type Processor interface {
	// CurrentBalanceCents is the live settlement-account balance.
	CurrentBalanceCents(ctx context.Context) (int64, error)
	// TopupAmountInTransit is an initiated-but-unsettled top-up in whole
	// currency units. Zero when nothing is in transit.
	TopupAmountInTransit(ctx context.Context) (decimal.Decimal, error)
}
