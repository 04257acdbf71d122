package workflow

import (
	"context"

	"github.com/casaora/automation_backend/config"
	"github.com/casaora/automation_backend/models"
	"github.com/casaora/automation_backend/store"
	"github.com/casaora/automation_backend/utils"
)

// ExpireStaleInstructions sweeps active payment instructions past their
// expiry to expired. Payment links are also expired lazily on access; the
// sweep keeps dashboards and reconciliation from seeing dead links as open.
func (e *Engine) ExpireStaleInstructions(ctx context.Context) int {
	instructions, err := e.Store.List(ctx, "payment_instructions", store.Filters{
		"status":              models.PaymentInstructionStatusActive,
		"expires_at__is_null": false,
		"expires_at__lt":      e.now(),
	}, store.ListOptions{Limit: 500, OrderBy: "expires_at", Ascending: true})
	if err != nil {
		config.LogError(e.Logger, "workflow", "ExpireStaleInstructions", "list stale instructions", nil, err)
		return 0
	}

	expired := 0
	for _, instruction := range instructions {
		instructionId := utils.RowString(instruction, "id")
		if instructionId == "" {
			continue
		}
		_, err := e.Store.Update(ctx, "payment_instructions", instructionId, store.Row{
			"status": models.PaymentInstructionStatusExpired,
		}, "id")
		if err != nil {
			config.LogError(e.Logger, "workflow", "ExpireStaleInstructions", "expire instruction", map[string]interface{}{
				"instruction_id": instructionId,
			}, err)
			continue
		}
		expired++
	}
	if expired > 0 {
		e.Logger.WithField("expired", expired).Info("stale payment instructions expired")
	}
	return expired
}
