package audithook

// Action constants for audit events.
const (
	// Credit actions
	ActionCreditGranted   = "credit.granted"
	ActionCreditsUsed     = "credit.used"
	ActionRefundApplied   = "credit.refunded"
	ActionCreditsExpired  = "credit.expired"
	ActionSweepCompleted  = "sweep.completed"
	ActionBalanceRead     = "balance.read"
	ActionReportGenerated = "report.generated"
)

// Resource constants for audit events.
const (
	ResourceCredit  = "credit"
	ResourceAccount = "account"
	ResourceOrder   = "order"
	ResourceLedger  = "ledger"
)

// Category constants for audit events.
const (
	CategoryCredit    = "credit"
	CategoryAccess    = "access"
	CategoryReporting = "reporting"
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
	OutcomePartial = "partial"
)
