package models

// Collection record lifecycle. Transitions only move forward along
// scheduled -> pending -> late -> paid; waived is terminal and reachable from
// any non-paid state (set outside the automation engine).
const (
	CollectionStatusScheduled = "scheduled"
	CollectionStatusPending   = "pending"
	CollectionStatusLate      = "late"
	CollectionStatusPaid      = "paid"
	CollectionStatusWaived    = "waived"
)

const (
	LeaseStatusDraft      = "draft"
	LeaseStatusActive     = "active"
	LeaseStatusDelinquent = "delinquent"
	LeaseStatusEnded      = "ended"
)

// Renewal status; the empty string means no renewal cycle has started.
const (
	RenewalStatusNone    = ""
	RenewalStatusPending = "pending"
	RenewalStatusOffered = "offered"
	RenewalStatusExpired = "expired"
)

const (
	TaskStatusTodo       = "todo"
	TaskStatusInProgress = "in_progress"
	TaskStatusDone       = "done"
	TaskStatusCancelled  = "cancelled"
)

// Message delivery status. This engine only ever writes queued; the outbound
// transport worker owns the rest of the transitions.
const (
	MessageStatusQueued    = "queued"
	MessageStatusSent      = "sent"
	MessageStatusDelivered = "delivered"
	MessageStatusFailed    = "failed"
)

const (
	ChannelWhatsApp = "whatsapp"
	ChannelEmail    = "email"
	ChannelPush     = "push"
	ChannelInApp    = "in_app"
)

const (
	PaymentInstructionStatusActive  = "active"
	PaymentInstructionStatusPaid    = "paid"
	PaymentInstructionStatusExpired = "expired"
)

const (
	RoleOwnerAdmin = "owner_admin"
	RoleOperator   = "operator"
	RoleViewer     = "viewer"
)

// Reminder kinds tagged into MessageLog payloads; the dunning cycle's
// already-sent-today lookback keys on these.
const (
	ReminderDMinus3          = "d_minus_3"
	ReminderDMinus1          = "d_minus_1"
	ReminderDDay             = "d_day"
	ReminderDPlus3Late       = "d_plus_3_late"
	ReminderDPlus7Escalation = "d_plus_7_escalation"
	ReminderOwnerEscalation  = "owner_escalation_alert"
	ReminderRenewal60d       = "renewal_60d"
	ReminderRenewalOwner60d  = "renewal_owner_60d"
	ReminderRenewal30d       = "renewal_30d"
	ReminderRenewalOffer     = "renewal_offer"
)

const (
	AlertTypeRevenueDrop     = "revenue_drop"
	AlertTypeExpenseSpike    = "expense_spike"
	AlertTypeOverdueTasks    = "overdue_tasks"
	AlertTypeDepositHeldLong = "deposit_held_long"
)

const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)
