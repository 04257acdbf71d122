package workflow

import (
	"context"
	"time"

	"github.com/casaora/automation_backend/config"
	"github.com/casaora/automation_backend/models"
	"github.com/casaora/automation_backend/store"
	"github.com/casaora/automation_backend/utils"
)

// GenerateMonthlyStatements creates one owner statement per active owned
// property for the previous calendar month. A property that already has a
// statement for the period is skipped, so re-runs are safe.
func (e *Engine) GenerateMonthlyStatements(ctx context.Context, organizationId string) uint32 {
	today := e.today()
	firstOfThisMonth := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
	periodEnd := firstOfThisMonth.AddDate(0, 0, -1)
	periodStart := time.Date(periodEnd.Year(), periodEnd.Month(), 1, 0, 0, 0, 0, time.UTC)
	periodStartStr := periodStart.Format("2006-01-02")
	periodEndStr := periodEnd.Format("2006-01-02")

	properties, err := e.Store.List(ctx, "properties", store.Filters{
		"organization_id":         organizationId,
		"asset_owner_id__is_null": false,
		"is_active":               true,
	}, store.ListOptions{Limit: 500, OrderBy: "created_at", Ascending: true})
	if err != nil {
		config.LogError(e.Logger, "workflow", "GenerateMonthlyStatements", "list owned properties", nil, err)
		return 0
	}

	var created uint32
	for _, property := range properties {
		propertyId := utils.RowString(property, "id")
		if propertyId == "" {
			continue
		}

		existing, err := e.Store.Count(ctx, "owner_statements", store.Filters{
			"organization_id": organizationId,
			"property_id":     propertyId,
			"period_start":    periodStartStr,
			"period_end":      periodEndStr,
		})
		if err != nil || existing > 0 {
			continue
		}

		income, expenses := e.statementTotals(ctx, organizationId, propertyId, periodStartStr, periodEndStr)

		statement, err := e.Store.Create(ctx, "owner_statements", store.Row{
			"organization_id": organizationId,
			"property_id":     propertyId,
			"period_start":    periodStartStr,
			"period_end":      periodEndStr,
			"total_income":    income,
			"total_expenses":  expenses,
			"net_amount":      income - expenses,
		})
		if err != nil {
			config.LogError(e.Logger, "workflow", "GenerateMonthlyStatements", "create statement", map[string]interface{}{
				"property_id": propertyId,
			}, err)
			continue
		}
		e.Triggers.FireTrigger(ctx, organizationId, "owner_statement_generated", map[string]any{
			"statement_id": utils.RowString(statement, "id"),
			"property_id":  propertyId,
			"period_start": periodStartStr,
			"period_end":   periodEndStr,
			"net_amount":   income - expenses,
		})
		created++
	}

	if created > 0 {
		e.Logger.WithFields(map[string]interface{}{
			"organization_id": organizationId,
			"created":         created,
			"period_start":    periodStartStr,
		}).Info("owner statements generated")
	}
	return created
}

// statementTotals sums paid rent collections on the property's leases and
// recorded expenses for the period.
func (e *Engine) statementTotals(ctx context.Context, organizationId, propertyId, periodStart, periodEnd string) (float64, float64) {
	var income float64
	leases, err := e.Store.List(ctx, "leases", store.Filters{
		"organization_id": organizationId,
		"property_id":     propertyId,
	}, store.ListOptions{Limit: 200, OrderBy: "created_at"})
	if err == nil {
		for _, lease := range leases {
			collections, err := e.Store.List(ctx, "collection_records", store.Filters{
				"lease_id":      utils.RowString(lease, "id"),
				"status":        models.CollectionStatusPaid,
				"due_date__gte": periodStart,
				"due_date__lte": periodEnd,
			}, store.ListOptions{Limit: 100, OrderBy: "due_date", Ascending: true})
			if err != nil {
				continue
			}
			for _, collection := range collections {
				income += utils.RowFloat(collection, "amount_paid")
			}
		}
	}

	var totalExpenses float64
	expenses, err := e.Store.List(ctx, "expenses", store.Filters{
		"organization_id": organizationId,
		"property_id":     propertyId,
	}, store.ListOptions{Limit: 1000, OrderBy: "created_at"})
	if err == nil {
		for _, expense := range expenses {
			occurredOn, ok := utils.RowDate(expense, "occurred_on")
			if !ok {
				continue
			}
			dateStr := occurredOn.Format("2006-01-02")
			if dateStr >= periodStart && dateStr <= periodEnd {
				totalExpenses += utils.RowFloat(expense, "amount")
			}
		}
	}
	return income, totalExpenses
}
