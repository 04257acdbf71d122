package workflow

import (
	"context"
	"time"

	"github.com/casaora/automation_backend/config"
	"github.com/casaora/automation_backend/models"
	"github.com/casaora/automation_backend/store"
	"github.com/casaora/automation_backend/utils"
)

// RunSlaBreachScan stamps sla_breached_at on open tasks whose SLA deadline
// has passed and fires a trigger for each. The stamp is set once; already
// flagged tasks are skipped so the trigger fires at most once per task.
func (e *Engine) RunSlaBreachScan(ctx context.Context) int {
	now := e.now()
	tasks, err := e.Store.List(ctx, "tasks", store.Filters{
		"status":                   []string{models.TaskStatusTodo, models.TaskStatusInProgress},
		"sla_due_at__is_null":      false,
		"sla_breached_at__is_null": true,
		"sla_due_at__lte":          now,
	}, store.ListOptions{Limit: 500, OrderBy: "sla_due_at", Ascending: true})
	if err != nil {
		config.LogError(e.Logger, "workflow", "RunSlaBreachScan", "list breached tasks", nil, err)
		return 0
	}

	count := 0
	for _, task := range tasks {
		taskId := utils.RowString(task, "id")
		orgId := utils.RowString(task, "organization_id")
		if taskId == "" {
			continue
		}

		updated, err := e.Store.Update(ctx, "tasks", taskId, store.Row{
			"sla_breached_at": now.Format(time.RFC3339),
		}, "id")
		if err != nil {
			config.LogError(e.Logger, "workflow", "RunSlaBreachScan", "stamp sla breach", map[string]interface{}{
				"task_id": taskId,
			}, err)
			continue
		}

		triggerContext := map[string]any{"task_id": taskId}
		for _, key := range []string{"property_id", "unit_id", "assigned_user_id", "priority", "title"} {
			if v := utils.RowString(updated, key); v != "" {
				triggerContext[key] = v
			}
		}
		e.Triggers.FireTrigger(ctx, orgId, "task_overdue_24h", triggerContext)
		count++
	}

	if count > 0 {
		e.Logger.WithField("count", count).Info("sla breach scan completed")
	}
	return count
}
