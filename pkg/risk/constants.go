package risk

const (
	// LowBalanceThresholdCents is the unpaid balance at or below which a
	// refund or dispute triggers the probation check (USD -100).
	LowBalanceThresholdCents int64 = -100_00

	// HighBalanceThresholdCents is the unpaid balance at or above which an
	// automated probation is lifted (USD 100).
	HighBalanceThresholdCents int64 = 100_00

	// probationCooldownMonths is how long a seller stays exempt from a
	// repeat automated probation after the last one.
	probationCooldownMonths = 2

	// lowBalanceCheckAuthorName attributes automated state changes in the
	// audit trail.
	lowBalanceCheckAuthorName = "LowBalanceFraudCheck"

	operationLowBalanceCheck  = "low_balance_check"
	operationHighBalanceCheck = "high_balance_check"
	operationEnableRefunds    = "enable_refunds"
	operationDisableRefunds   = "disable_refunds"
	operationMarkState        = "mark_state"
	operationProfile          = "profile"

	operationStatusOK      = "ok"
	operationStatusError   = "error"
	operationStatusSkipped = "skipped"

	fullMonthDateLayout = "January 2, 2006"

	probationAppliedContentFormat = "Probated (payouts suspended) automatically on %s because of suspicious refund activity"
	probationRemovedContentFormat = "Probation removed automatically on %s as balance has recovered to $100"
)
