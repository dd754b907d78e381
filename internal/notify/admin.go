package notify

import (
	"context"

	"github.com/MarkoPoloResearchLab/sellerrisk/pkg/risk"
	"go.uber.org/zap"
)

const lowBalanceChannel = "risk"

// AdminNotifier delivers the low-balance operator notice over chat-ops.
// Delivery failures are logged and dropped; the probation decision has
// already been committed by the time this runs.
type AdminNotifier struct {
	poster ChatPoster
	logger *zap.Logger
}

var _ risk.AdminNotifier = (*AdminNotifier)(nil)

// NewAdminNotifier wires the notifier.
func NewAdminNotifier(poster ChatPoster, logger *zap.Logger) *AdminNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminNotifier{poster: poster, logger: logger}
}

// NotifyLowBalance posts the low-balance notice.
func (notifier *AdminNotifier) NotifyLowBalance(ctx context.Context, notice risk.LowBalanceNotice) {
	body := "Unpaid balance for " + notice.UserID.String() + " is " + FormatDollarAmount(notice.BalanceCents) + "."
	if notice.TriggeringEventID != "" {
		body += " Triggered by " + notice.TriggeringEventID + "."
	}
	message := ChatMessage{
		Channel:  lowBalanceChannel,
		Title:    "Low balance",
		Body:     body,
		Severity: SeverityRed,
	}
	if err := notifier.poster.PostMessage(ctx, message); err != nil {
		notifier.logger.Warn("low-balance notice dropped",
			zap.String("user_id", notice.UserID.String()),
			zap.Error(err))
	}
}

// ZapAnomalyReporter reports data inconsistencies through the process log.
type ZapAnomalyReporter struct {
	logger *zap.Logger
}

var _ risk.AnomalyReporter = (*ZapAnomalyReporter)(nil)

// NewZapAnomalyReporter wires the reporter.
func NewZapAnomalyReporter(logger *zap.Logger) *ZapAnomalyReporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapAnomalyReporter{logger: logger}
}

// ReportAnomaly logs the anomaly at error level.
func (reporter *ZapAnomalyReporter) ReportAnomaly(ctx context.Context, message string) {
	reporter.logger.Error("risk anomaly", zap.String("detail", message))
}
