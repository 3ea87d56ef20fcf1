package audithook

// Action constants for audit events.
const (
	// Lifecycle actions
	ActionCustodyStarted = "custody.started"
	ActionCustodyStopped = "custody.stopped"

	// Funding actions
	ActionFundAccepted = "fund.accepted"
	ActionFundRejected = "fund.rejected"

	// Withdrawal actions
	ActionWithdrawCompleted = "withdraw.completed"
	ActionWithdrawDenied    = "withdraw.denied"
	ActionWithdrawFailed    = "withdraw.failed"
)

// Resource constants for audit events.
const (
	ResourceCustody      = "custody"
	ResourceContribution = "contribution"
	ResourceWithdrawal   = "withdrawal"
)

// Category constants for audit events.
const (
	CategoryLifecycle = "lifecycle"
	CategoryFunding   = "funding"
	CategoryPayout    = "payout"
	CategoryAccess    = "access"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
