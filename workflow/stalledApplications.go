package workflow

import (
	"context"
	"time"

	"github.com/casaora/automation_backend/config"
	"github.com/casaora/automation_backend/store"
	"github.com/casaora/automation_backend/utils"
)

// RunStalledApplicationScan fires a trigger for every application that has
// sat in new/submitted for over 48 hours with no first response.
func (e *Engine) RunStalledApplicationScan(ctx context.Context) int {
	cutoff := e.now().Add(-48 * time.Hour)
	applications, err := e.Store.List(ctx, "application_submissions", store.Filters{
		"status":                     []string{"new", "submitted"},
		"created_at__lt":             cutoff,
		"first_response_at__is_null": true,
	}, store.ListOptions{Limit: 500, OrderBy: "created_at", Ascending: true})
	if err != nil {
		config.LogError(e.Logger, "workflow", "RunStalledApplicationScan", "list stalled applications", nil, err)
		return 0
	}

	for _, application := range applications {
		applicationId := utils.RowString(application, "id")
		orgId := utils.RowString(application, "organization_id")
		if applicationId == "" || orgId == "" {
			continue
		}
		e.Triggers.FireTrigger(ctx, orgId, "application_stalled_48h", map[string]any{
			"application_id": applicationId,
		})
	}

	if len(applications) > 0 {
		e.Logger.WithField("count", len(applications)).Info("stalled application scan completed")
	}
	return len(applications)
}
