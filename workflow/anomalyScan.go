package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/casaora/automation_backend/config"
	"github.com/casaora/automation_backend/models"
	"github.com/casaora/automation_backend/store"
	"github.com/casaora/automation_backend/utils"
)

type alertDraft struct {
	alertType    string
	severity     string
	title        string
	description  string
	relatedTable string
	relatedId    string
}

// RunAnomalyScan runs the detection heuristics for one organization and
// inserts fresh alerts. An alert type with a live (non-dismissed) alert from
// the last 7 days is not re-raised.
func (e *Engine) RunAnomalyScan(ctx context.Context, organizationId string) ([]store.Row, error) {
	var newAlerts []store.Row
	orgFilter := store.Filters{"organization_id": organizationId}
	today := e.today()

	// Revenue drop: current month below 70% of the 3-month average.
	if reservations, err := e.Store.List(ctx, "reservations", orgFilter, store.ListOptions{Limit: 6000, OrderBy: "created_at", Ascending: true}); err == nil {
		monthlyRevenue := map[string]float64{}
		for _, reservation := range reservations {
			status := utils.RowString(reservation, "status")
			if status != "confirmed" && status != "checked_in" && status != "checked_out" {
				continue
			}
			checkIn, ok := utils.RowDate(reservation, "check_in_date")
			if !ok {
				continue
			}
			monthlyRevenue[checkIn.Format("2006-01")] += utils.RowFloat(reservation, "total_amount")
		}

		currentRevenue := monthlyRevenue[today.Format("2006-01")]
		var pastMonths []float64
		for i := 1; i <= 3; i++ {
			key := today.AddDate(0, 0, -i*30).Format("2006-01")
			if rev, ok := monthlyRevenue[key]; ok {
				pastMonths = append(pastMonths, rev)
			}
		}
		if len(pastMonths) >= 2 {
			var sum float64
			for _, rev := range pastMonths {
				sum += rev
			}
			avg := sum / float64(len(pastMonths))
			if avg > 0 && currentRevenue < avg*0.7 {
				if alert := e.insertAlertIfNew(ctx, organizationId, alertDraft{
					alertType: models.AlertTypeRevenueDrop,
					severity:  models.SeverityWarning,
					title:     "Revenue drop detected",
					description: fmt.Sprintf(
						"Current month revenue (%.0f) is below 70%% of the 3-month average (%.0f).",
						currentRevenue, avg),
				}); alert != nil {
					newAlerts = append(newAlerts, alert)
				}
			}
		}
	}

	// Expense spike: latest expense in a category over 2x the category average.
	if expenses, err := e.Store.List(ctx, "expenses", orgFilter, store.ListOptions{Limit: 6000, OrderBy: "created_at", Ascending: true}); err == nil {
		categoryAmounts := map[string][]float64{}
		for _, expense := range expenses {
			category := utils.RowString(expense, "category")
			if category == "" {
				category = "other"
			}
			categoryAmounts[category] = append(categoryAmounts[category], utils.RowFloat(expense, "amount"))
		}
		for category, amounts := range categoryAmounts {
			if len(amounts) < 3 {
				continue
			}
			var sum float64
			for _, amount := range amounts {
				sum += amount
			}
			avg := sum / float64(len(amounts))
			latest := amounts[len(amounts)-1]
			if avg > 0 && latest > avg*2 {
				if alert := e.insertAlertIfNew(ctx, organizationId, alertDraft{
					alertType: models.AlertTypeExpenseSpike,
					severity:  models.SeverityWarning,
					title:     fmt.Sprintf("Expense spike in '%s'", category),
					description: fmt.Sprintf(
						"A recent expense (%.0f) is more than 2x the average (%.0f) for category '%s'.",
						latest, avg, category),
					relatedTable: "expenses",
				}); alert != nil {
					newAlerts = append(newAlerts, alert)
				}
			}
		}
	}

	// Overdue tasks: more than 5 open tasks overdue by over a week.
	if tasks, err := e.Store.List(ctx, "tasks", orgFilter, store.ListOptions{Limit: 10000, OrderBy: "created_at", Ascending: true}); err == nil {
		overdueCount := 0
		for _, task := range tasks {
			status := utils.RowString(task, "status")
			if status != models.TaskStatusTodo && status != models.TaskStatusInProgress {
				continue
			}
			dueAt, ok := utils.RowTime(task, "due_at")
			if !ok {
				continue
			}
			if today.Sub(dueAt).Hours() > 7*24 {
				overdueCount++
			}
		}
		if overdueCount > 5 {
			if alert := e.insertAlertIfNew(ctx, organizationId, alertDraft{
				alertType:    models.AlertTypeOverdueTasks,
				severity:     models.SeverityWarning,
				title:        "Many overdue tasks",
				description:  fmt.Sprintf("%d tasks are overdue by more than 7 days.", overdueCount),
				relatedTable: "tasks",
			}); alert != nil {
				newAlerts = append(newAlerts, alert)
			}
		}
	}

	// Deposits held too long: escrow rows in held status over 45 days.
	if deposits, err := e.Store.List(ctx, "escrow_events", orgFilter, store.ListOptions{Limit: 3000, OrderBy: "created_at", Ascending: true}); err == nil {
		heldTooLong := 0
		for _, deposit := range deposits {
			if utils.RowString(deposit, "status") != "held" {
				continue
			}
			createdAt, ok := utils.RowTime(deposit, "created_at")
			if !ok {
				continue
			}
			if today.Sub(createdAt).Hours() > 45*24 {
				heldTooLong++
			}
		}
		if heldTooLong > 0 {
			if alert := e.insertAlertIfNew(ctx, organizationId, alertDraft{
				alertType:    models.AlertTypeDepositHeldLong,
				severity:     models.SeverityWarning,
				title:        "Deposits held too long",
				description:  fmt.Sprintf("%d deposits have been in 'held' status for more than 45 days.", heldTooLong),
				relatedTable: "escrow_events",
			}); alert != nil {
				newAlerts = append(newAlerts, alert)
			}
		}
	}

	return newAlerts, nil
}

// insertAlertIfNew creates an alert unless a non-dismissed one of the same
// type exists from the last 7 days.
func (e *Engine) insertAlertIfNew(ctx context.Context, organizationId string, draft alertDraft) store.Row {
	existing, err := e.Store.Count(ctx, "anomaly_alerts", store.Filters{
		"organization_id": organizationId,
		"alert_type":      draft.alertType,
		"detected_at__gt": e.now().AddDate(0, 0, -7),
		"is_dismissed":    false,
	})
	if err != nil || existing > 0 {
		return nil
	}

	record := store.Row{
		"organization_id": organizationId,
		"alert_type":      draft.alertType,
		"severity":        draft.severity,
		"title":           draft.title,
		"description":     draft.description,
		"detected_at":     e.now().Format(time.RFC3339),
		"is_dismissed":    false,
	}
	if draft.relatedTable != "" {
		record["related_table"] = draft.relatedTable
	}
	if draft.relatedId != "" {
		record["related_id"] = draft.relatedId
	}
	created, err := e.Store.Create(ctx, "anomaly_alerts", record)
	if err != nil {
		config.LogError(e.Logger, "workflow", "insertAlertIfNew", "create anomaly alert", map[string]interface{}{
			"organization_id": organizationId,
			"alert_type":      draft.alertType,
		}, err)
		return nil
	}
	return created
}
