package workflow

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/casaora/automation_backend/appctx"
	"github.com/casaora/automation_backend/config"
)

// TriggerDispatcher hands lifecycle trigger events to the automation rule
// engine. Dispatch is fire-and-forget from the caller's point of view;
// implementations log failures instead of propagating them.
type TriggerDispatcher interface {
	FireTrigger(ctx context.Context, organizationId, triggerEvent string, triggerContext map[string]any)
}

// PubSubTriggerDispatcher publishes triggers to the workflow topic so rule
// evaluation runs out of process.
type PubSubTriggerDispatcher struct {
	Logger *logrus.Logger
}

func (d *PubSubTriggerDispatcher) FireTrigger(ctx context.Context, organizationId, triggerEvent string, triggerContext map[string]any) {
	correlationId, _ := appctx.GetString(ctx, appctx.ContextKeyCorrelationId)
	msg := config.WorkflowTriggerMessage{
		OrganizationId: organizationId,
		TriggerEvent:   triggerEvent,
		Context:        triggerContext,
		OccurredAt:     time.Now().UTC(),
		CorrelationId:  correlationId,
	}
	if _, err := config.PublishWorkflowTriggerWithResult(ctx, msg); err != nil {
		config.LogError(d.Logger, "workflow", "FireTrigger", "publish trigger", map[string]interface{}{
			"organization_id": organizationId,
			"trigger_event":   triggerEvent,
		}, err)
	}
}

// LogTriggerDispatcher records triggers without publishing. Used when the
// rule engine is disabled or when no Pub/Sub project is configured.
type LogTriggerDispatcher struct {
	Logger *logrus.Logger
}

func (d *LogTriggerDispatcher) FireTrigger(ctx context.Context, organizationId, triggerEvent string, triggerContext map[string]any) {
	d.Logger.WithFields(logrus.Fields{
		"organization_id": organizationId,
		"trigger_event":   triggerEvent,
		"context":         triggerContext,
	}).Info("workflow trigger (log mode)")
}
