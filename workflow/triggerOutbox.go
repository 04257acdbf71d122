package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/casaora/automation_backend/appctx"
	"github.com/casaora/automation_backend/config"
	"github.com/casaora/automation_backend/models"
)

// OutboxTriggerDispatcher stages triggers in the trigger_outbox_records table
// instead of publishing inline. Pair it with a running TriggerOutboxWorker.
type OutboxTriggerDispatcher struct {
	DB     *gorm.DB
	Logger *logrus.Logger
}

func (d *OutboxTriggerDispatcher) FireTrigger(ctx context.Context, organizationId, triggerEvent string, triggerContext map[string]any) {
	raw, err := json.Marshal(triggerContext)
	if err != nil {
		config.LogError(d.Logger, "workflow", "FireTrigger", "marshal trigger context", map[string]interface{}{
			"trigger_event": triggerEvent,
		}, err)
		return
	}
	correlationId, _ := appctx.GetString(ctx, appctx.ContextKeyCorrelationId)
	record := models.TriggerOutboxRecord{
		OrganizationId: organizationId,
		TriggerEvent:   triggerEvent,
		Context:        raw,
		OccurredAt:     time.Now().UTC(),
		CorrelationId:  correlationId,
		PublishStatus:  models.OutboxPublishStatusPending,
	}
	if err := d.DB.WithContext(ctx).Create(&record).Error; err != nil {
		config.LogError(d.Logger, "workflow", "FireTrigger", "stage trigger outbox row", map[string]interface{}{
			"organization_id": organizationId,
			"trigger_event":   triggerEvent,
		}, err)
	}
}

// TriggerOutboxWorker drains staged triggers to Pub/Sub. Claims a batch under
// row locks, publishes outside the transaction, and retries failures with
// exponential backoff until MaxAttempts moves the row to DEAD.
type TriggerOutboxWorker struct {
	DB       *gorm.DB
	Logger   *logrus.Logger
	WorkerID string

	BatchSize      int
	PollInterval   time.Duration
	LockTimeout    time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
}

func NewTriggerOutboxWorker(db *gorm.DB, logger *logrus.Logger) *TriggerOutboxWorker {
	return &TriggerOutboxWorker{
		DB:             db,
		Logger:         logger,
		WorkerID:       uuid.NewString(),
		BatchSize:      50,
		PollInterval:   2 * time.Second,
		LockTimeout:    30 * time.Second,
		MaxAttempts:    20,
		InitialBackoff: 5 * time.Second,
	}
}

func (w *TriggerOutboxWorker) Run(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		w.dispatchOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(w.PollInterval):
		}
	}
}

func (w *TriggerOutboxWorker) dispatchOnce(ctx context.Context) {
	if w.DB == nil {
		return
	}
	now := time.Now().UTC()
	staleBefore := now.Add(-w.LockTimeout)

	var claimed []models.TriggerOutboxRecord
	err := w.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Eligible: PENDING / FAILED and ready to retry, or PROCESSING with a
		// stale lock (worker crashed mid-batch).
		q := tx.
			Where(`
				(
					publish_status IN ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
				)
				OR
				(
					publish_status = ? AND locked_at IS NOT NULL AND locked_at <= ?
				)
			`, []string{models.OutboxPublishStatusPending, models.OutboxPublishStatusFailed}, now, models.OutboxPublishStatusProcessing, staleBefore).
			Order("id ASC").
			Limit(w.BatchSize).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		if err := q.Find(&claimed).Error; err != nil {
			return err
		}
		if len(claimed) == 0 {
			return nil
		}
		for i := range claimed {
			// Poison rows go terminal rather than cycling forever.
			if w.MaxAttempts > 0 && claimed[i].PublishAttempts >= w.MaxAttempts {
				msg := fmt.Sprintf("max publish attempts exceeded (%d)", w.MaxAttempts)
				claimed[i].PublishStatus = models.OutboxPublishStatusDead
				if err := tx.Model(&models.TriggerOutboxRecord{}).Where("id = ?", claimed[i].ID).Updates(map[string]interface{}{
					"publish_status":     models.OutboxPublishStatusDead,
					"last_publish_error": &msg,
					"next_attempt_at":    nil,
					"locked_at":          nil,
					"locked_by":          nil,
				}).Error; err != nil {
					return err
				}
				continue
			}

			claimed[i].PublishStatus = models.OutboxPublishStatusProcessing
			claimed[i].LockedAt = &now
			claimed[i].LockedBy = &w.WorkerID
			claimed[i].PublishAttempts = claimed[i].PublishAttempts + 1
			if err := tx.Model(&models.TriggerOutboxRecord{}).Where("id = ?", claimed[i].ID).Updates(map[string]interface{}{
				"publish_status":     claimed[i].PublishStatus,
				"locked_at":          claimed[i].LockedAt,
				"locked_by":          claimed[i].LockedBy,
				"publish_attempts":   gorm.Expr("publish_attempts + 1"),
				"last_publish_error": nil,
				"next_attempt_at":    nil,
			}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil || len(claimed) == 0 {
		return
	}

	for _, record := range claimed {
		if record.PublishStatus == models.OutboxPublishStatusDead {
			continue
		}
		msg := models.ConvertToWorkflowTriggerMessage(record)
		pubId, pubErr := config.PublishWorkflowTriggerWithResult(ctx, msg)
		if pubErr != nil {
			w.markPublishFailed(ctx, record.ID, record.OrganizationId, pubErr, record.PublishAttempts)
			continue
		}
		w.markPublishSent(ctx, record.ID, pubId, now)
	}
}

func (w *TriggerOutboxWorker) markPublishSent(ctx context.Context, recordId int, pubsubMsgId string, now time.Time) {
	id := pubsubMsgId
	_ = w.DB.WithContext(ctx).Model(&models.TriggerOutboxRecord{}).
		Where("id = ?", recordId).
		Updates(map[string]interface{}{
			"publish_status":     models.OutboxPublishStatusSent,
			"published_at":       &now,
			"pub_sub_message_id": &id,
			"locked_at":          nil,
			"locked_by":          nil,
			"next_attempt_at":    nil,
		}).Error
}

func (w *TriggerOutboxWorker) markPublishFailed(ctx context.Context, recordId int, organizationId string, err error, attempt int) {
	db := w.DB.WithContext(ctx)
	now := time.Now().UTC()
	msg := err.Error()

	if w.MaxAttempts > 0 && attempt >= w.MaxAttempts {
		_ = db.Model(&models.TriggerOutboxRecord{}).
			Where("id = ?", recordId).
			Updates(map[string]interface{}{
				"publish_status":     models.OutboxPublishStatusDead,
				"last_publish_error": &msg,
				"next_attempt_at":    nil,
				"locked_at":          nil,
				"locked_by":          nil,
			}).Error
		if w.Logger != nil {
			w.Logger.WithFields(logrus.Fields{
				"field":           "TriggerOutboxWorker",
				"organization_id": organizationId,
				"record_id":       recordId,
				"attempt":         attempt,
			}).Error("trigger publish moved to DEAD after max attempts: " + fmt.Sprintf("%v", err))
		}
		return
	}

	backoff := w.InitialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if backoff > time.Minute*10 {
			backoff = time.Minute * 10
			break
		}
	}
	next := now.Add(backoff)
	_ = db.Model(&models.TriggerOutboxRecord{}).
		Where("id = ?", recordId).
		Updates(map[string]interface{}{
			"publish_status":     models.OutboxPublishStatusFailed,
			"last_publish_error": &msg,
			"next_attempt_at":    &next,
			"locked_at":          nil,
			"locked_by":          nil,
		}).Error
	if w.Logger != nil {
		w.Logger.WithFields(logrus.Fields{
			"field":           "TriggerOutboxWorker",
			"organization_id": organizationId,
			"record_id":       recordId,
			"attempt":         attempt,
			"next_attempt_at": next.Format(time.RFC3339Nano),
		}).Error("trigger publish failed: " + fmt.Sprintf("%v", err))
	}
}
