package risk

import "context"

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// OperationLogger records domain-level events emitted by Service operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes a state-affecting risk operation.
type OperationLog struct {
	Operation         string
	UserID            UserID
	State             RiskState
	RefundsDisabled   bool
	BalanceCents      int64
	TriggeringEventID string
	Status            string
	Error             error
}

// AdminNotifier delivers the low-balance operator notice. Implementations
// are fire-and-forget; delivery failures must not surface to the caller.
type AdminNotifier interface {
	NotifyLowBalance(ctx context.Context, notice LowBalanceNotice)
}

// AnomalyReporter receives data-inconsistency reports that warrant operator
// investigation but must not fail the operation.
type AnomalyReporter interface {
	ReportAnomaly(ctx context.Context, message string)
}

// WithOperationLogger wires a logger that receives callbacks for every operation.
func WithOperationLogger(logger OperationLogger) ServiceOption {
	return func(service *Service) {
		service.logger = logger
	}
}

// WithAdminNotifier wires the low-balance operator notifier.
func WithAdminNotifier(notifier AdminNotifier) ServiceOption {
	return func(service *Service) {
		service.notifier = notifier
	}
}

// WithAnomalyReporter wires the diagnostic reporter.
func WithAnomalyReporter(reporter AnomalyReporter) ServiceOption {
	return func(service *Service) {
		service.reporter = reporter
	}
}
