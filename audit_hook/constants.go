package audithook

// Action constants for audit events.
const (
	// Posting actions
	ActionPostingCommitted = "posting.committed"
	ActionPostingReplayed  = "posting.replayed"
	ActionPostingRejected  = "posting.rejected"
	ActionPostingVoided    = "posting.voided"

	// Billing actions
	ActionBillingRunCompleted = "billing.run_completed"

	// Integrity actions
	ActionIntegrityChecked = "integrity.checked"

	// Chart of accounts actions
	ActionAccountCreated = "account.created"
	ActionAccountUpdated = "account.updated"
)

// Resource constants for audit events.
const (
	ResourcePostingGroup = "posting_group"
	ResourceBillingRun   = "billing_run"
	ResourceJournal      = "journal"
	ResourceAccount      = "account"
)

// Category constants for audit events.
const (
	CategoryJournal   = "journal"
	CategoryBilling   = "billing"
	CategoryIntegrity = "integrity"
	CategoryChart     = "chart_of_accounts"
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
