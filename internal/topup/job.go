package topup

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/sellerrisk/internal/flagcache"
	"github.com/MarkoPoloResearchLab/sellerrisk/internal/notify"
	"github.com/MarkoPoloResearchLab/sellerrisk/internal/paypal"
	"github.com/MarkoPoloResearchLab/sellerrisk/pkg/risk"
	"go.uber.org/zap"
)

const chatChannelPayments = "payments"

// NotificationJob snapshots the funding position, publishes the top-up flag,
// and posts the position to chat-ops.
type NotificationJob struct {
	ledger    LedgerQuerier
	processor paypal.Processor
	cache     flagcache.FlagCache
	poster    notify.ChatPoster
	nowFn     func() time.Time
	logger    *zap.Logger
}

// NewNotificationJob wires the job.
func NewNotificationJob(ledger LedgerQuerier, processor paypal.Processor, cache flagcache.FlagCache, poster notify.ChatPoster, now func() time.Time, logger *zap.Logger) (*NotificationJob, error) {
	if ledger == nil || processor == nil || cache == nil || poster == nil {
		return nil, fmt.Errorf("%w: notification job dependency is nil", risk.ErrInvalidServiceConfig)
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationJob{
		ledger:    ledger,
		processor: processor,
		cache:     cache,
		poster:    poster,
		nowFn:     now,
		logger:    logger,
	}, nil
}

// Perform runs one check. The flag is always published; the chat post is
// suppressed when notifyOnlyIfNeeded is set and no top-up is needed. A
// failed chat post is logged and dropped.
func (job *NotificationJob) Perform(ctx context.Context, notifyOnlyIfNeeded bool) error {
	checker, err := NewChecker(ctx, job.ledger, job.processor, job.nowFn().UTC())
	if err != nil {
		return err
	}
	if err := job.cache.SetFlag(ctx, flagcache.KeyPaypalTopupNeeded, checker.TopupNeeded()); err != nil {
		return err
	}
	if notifyOnlyIfNeeded && !checker.TopupNeeded() {
		return nil
	}

	severity := notify.SeverityGreen
	if checker.TopupNeeded() {
		severity = notify.SeverityRed
	}
	message := notify.ChatMessage{
		Channel:  chatChannelPayments,
		Title:    "PayPal Top-up",
		Body:     buildNotificationBody(checker),
		Severity: severity,
	}
	if err := job.poster.PostMessage(ctx, message); err != nil {
		job.logger.Warn("top-up notification dropped", zap.Error(err))
	}
	return nil
}

func buildNotificationBody(checker *Checker) string {
	var body strings.Builder
	fmt.Fprintf(&body, "PayPal balance needs to be %s by Friday to payout all creators.\n",
		notify.FormatDollarAmount(checker.PayoutAmountCents()))
	fmt.Fprintf(&body, "Current PayPal balance is %s.\n",
		notify.FormatDollarAmount(checker.CurrentBalanceCents()))
	if checker.TopupInTransitCents() > 0 {
		fmt.Fprintf(&body, "Top-up amount in transit is %s.\n",
			notify.FormatDollarAmount(checker.TopupInTransitCents()))
	}
	if checker.TopupNeeded() {
		fmt.Fprintf(&body, "A top-up of %s is needed.",
			notify.FormatDollarAmount(checker.TopupAmountCents()))
	} else {
		body.WriteString("No more top-up required.")
	}
	return body.String()
}
