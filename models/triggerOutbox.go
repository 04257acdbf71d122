package models

import (
	"encoding/json"
	"time"

	"github.com/casaora/automation_backend/config"
)

// Outbox publish lifecycle.
const (
	OutboxPublishStatusPending    = "PENDING"
	OutboxPublishStatusProcessing = "PROCESSING"
	OutboxPublishStatusSent       = "SENT"
	OutboxPublishStatusFailed     = "FAILED"
	OutboxPublishStatusDead       = "DEAD"
)

// TriggerOutboxRecord stages a workflow trigger for publication. Rows are
// written in the same transaction scope as the state change that produced
// them; the dispatcher publishes after the fact with retries, so a Pub/Sub
// outage never loses a trigger.
type TriggerOutboxRecord struct {
	ID             int       `gorm:"primary_key;index:idx_trigger_outbox_dispatch,priority:3" json:"id"`
	OrganizationId string    `gorm:"type:char(36);not null;index" json:"organization_id"`
	TriggerEvent   string    `gorm:"size:64;not null;index" json:"trigger_event"`
	Context        []byte    `gorm:"type:blob" json:"context"`
	OccurredAt     time.Time `gorm:"index;not null" json:"occurred_at"`
	CorrelationId  string    `gorm:"size:64;index" json:"correlation_id"`

	PublishStatus    string     `gorm:"size:20;index;not null;default:'PENDING';index:idx_trigger_outbox_dispatch,priority:1" json:"publish_status"`
	PublishedAt      *time.Time `gorm:"index" json:"published_at"`
	PubSubMessageId  *string    `gorm:"size:255" json:"pubsub_message_id"`
	PublishAttempts  int        `gorm:"not null;default:0" json:"publish_attempts"`
	NextAttemptAt    *time.Time `gorm:"index;index:idx_trigger_outbox_dispatch,priority:2" json:"next_attempt_at"`
	LockedAt         *time.Time `gorm:"index" json:"locked_at"`
	LockedBy         *string    `gorm:"size:100" json:"locked_by"`
	LastPublishError *string    `gorm:"type:text" json:"last_publish_error"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func ConvertToWorkflowTriggerMessage(record TriggerOutboxRecord) config.WorkflowTriggerMessage {
	var triggerContext map[string]any
	if len(record.Context) > 0 {
		_ = json.Unmarshal(record.Context, &triggerContext)
	}
	return config.WorkflowTriggerMessage{
		OrganizationId: record.OrganizationId,
		TriggerEvent:   record.TriggerEvent,
		Context:        triggerContext,
		OccurredAt:     record.OccurredAt.UTC(),
		CorrelationId:  record.CorrelationId,
	}
}
