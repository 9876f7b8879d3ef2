package audithook

// Action constants for audit events.
const (
	// Invoice actions
	ActionInvoiceCreated  = "invoice.created"
	ActionTemplateCreated = "template.created"
	ActionInvoiceUpdated  = "invoice.updated"
	ActionInvoiceSent     = "invoice.sent"
	ActionInvoiceResent   = "invoice.resent"
	ActionInvoiceDeleted  = "invoice.deleted"
	ActionInvoicePaid     = "invoice.paid"

	// Payment actions
	ActionPaymentRecorded = "payment.recorded"
	ActionPaymentOverage  = "payment.overage"

	// Usage actions
	ActionQuotaExceeded = "quota.exceeded"

	// Recurring actions
	ActionRecurringGenerated = "recurring.generated"
	ActionRecurringFailed    = "recurring.failed"

	// Notification actions
	ActionNotificationFailed = "notification.failed"
)

// Resource constants for audit events.
const (
	ResourceInvoice      = "invoice"
	ResourceTemplate     = "template"
	ResourcePayment      = "payment"
	ResourceUsage        = "usage"
	ResourceNotification = "notification"
)

// Category constants for audit events.
const (
	CategoryBilling     = "billing"
	CategoryPayment     = "payment"
	CategoryAccess      = "access"
	CategoryRecurring   = "recurring"
	CategoryIntegration = "integration"
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
