package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/casaora/automation_backend/config"
	"github.com/casaora/automation_backend/models"
	"github.com/casaora/automation_backend/store"
	"github.com/casaora/automation_backend/utils"
)

// CollectionCycleResult summarizes one dunning pass.
type CollectionCycleResult struct {
	Activated       uint32 `json:"activated"`
	RemindersQueued uint32 `json:"reminders_queued"`
	MarkedLate      uint32 `json:"marked_late"`
	Escalated       uint32 `json:"escalated"`
	Errors          uint32 `json:"errors"`
}

// RunDailyCollectionCycle drives the dunning ladder for rent collections.
// Phases, relative to due date D:
//
//	D-3  scheduled -> pending, first reminder
//	D-1  second reminder
//	D    final reminder
//	D+3  pending -> late, late notice, lease flagged delinquent
//	D+7  urgent notice to tenant plus alert to owner admins
//
// organizationId narrows the run to one org; empty means all orgs.
func (e *Engine) RunDailyCollectionCycle(ctx context.Context, organizationId string) CollectionCycleResult {
	today := e.today()
	var result CollectionCycleResult

	e.activateUpcomingCollections(ctx, organizationId, today.AddDate(0, 0, 3), &result)
	e.sendDueReminders(ctx, organizationId, today, &result)
	e.markLateCollections(ctx, organizationId, today.AddDate(0, 0, -3), &result)
	e.escalateLateCollections(ctx, organizationId, today.AddDate(0, 0, -7), &result)

	e.Logger.WithFields(logrus.Fields{
		"activated": result.Activated,
		"reminders": result.RemindersQueued,
		"late":      result.MarkedLate,
		"escalated": result.Escalated,
		"errors":    result.Errors,
	}).Info("collection cycle completed")
	return result
}

func (e *Engine) collectionFilters(organizationId, status string) store.Filters {
	filters := store.Filters{"status": status}
	if organizationId != "" {
		filters["organization_id"] = organizationId
	}
	return filters
}

// activateUpcomingCollections flips scheduled collections due within the
// cutoff to pending.
func (e *Engine) activateUpcomingCollections(ctx context.Context, organizationId string, cutoff time.Time, result *CollectionCycleResult) {
	collections, err := e.Store.List(ctx, "collection_records",
		e.collectionFilters(organizationId, models.CollectionStatusScheduled),
		store.ListOptions{Limit: 500, OrderBy: "due_date", Ascending: true})
	if err != nil {
		config.LogError(e.Logger, "workflow", "activateUpcomingCollections", "list scheduled collections", nil, err)
		result.Errors++
		return
	}

	for _, collection := range collections {
		dueDate, ok := utils.RowDate(collection, "due_date")
		if !ok || dueDate.After(cutoff) {
			continue
		}
		collectionId := utils.RowString(collection, "id")
		if collectionId == "" {
			continue
		}
		_, err := e.Store.Update(ctx, "collection_records", collectionId, store.Row{
			"status": models.CollectionStatusPending,
		}, "id")
		if err != nil {
			config.LogError(e.Logger, "workflow", "activateUpcomingCollections", "activate collection", map[string]interface{}{
				"collection_id": collectionId,
			}, err)
			result.Errors++
			continue
		}
		result.Activated++
	}
}

// sendDueReminders queues the D-3, D-1 and D-day reminders for pending
// collections, at most once per milestone per day.
func (e *Engine) sendDueReminders(ctx context.Context, organizationId string, today time.Time, result *CollectionCycleResult) {
	collections, err := e.Store.List(ctx, "collection_records",
		e.collectionFilters(organizationId, models.CollectionStatusPending),
		store.ListOptions{Limit: 500, OrderBy: "due_date", Ascending: true})
	if err != nil {
		config.LogError(e.Logger, "workflow", "sendDueReminders", "list pending collections", nil, err)
		result.Errors++
		return
	}

	for _, collection := range collections {
		dueDate, ok := utils.RowDate(collection, "due_date")
		if !ok {
			continue
		}
		daysUntilDue := int(dueDate.Sub(today).Hours() / 24)

		var reminderType string
		switch daysUntilDue {
		case 3:
			reminderType = models.ReminderDMinus3
		case 1:
			reminderType = models.ReminderDMinus1
		case 0:
			reminderType = models.ReminderDDay
		default:
			continue
		}

		collectionId := utils.RowString(collection, "id")
		leaseId := utils.RowString(collection, "lease_id")
		if collectionId == "" || leaseId == "" {
			continue
		}
		if e.alreadySentToday(ctx, collectionId, reminderType, today) {
			continue
		}

		lease, err := e.Store.Get(ctx, "leases", leaseId, "id")
		if err != nil {
			continue
		}
		tenantPhone := utils.RowString(lease, "tenant_phone_e164")
		if tenantPhone == "" {
			continue
		}
		tenantName := utils.RowString(lease, "tenant_full_name")
		amountDisplay := formatAmount(decimal.NewFromFloat(utils.RowFloat(collection, "amount")), utils.RowString(collection, "currency"))
		dueDateStr := dueDate.Format("2006-01-02")

		var body string
		switch reminderType {
		case models.ReminderDMinus3:
			body = fmt.Sprintf(
				"Hola %s 👋\n\nTe recordamos que tu pago de alquiler de %s vence el %s.\n\nPuedes ver los detalles y realizar tu pago en:\n%s/tenant/payments\n\nGracias por tu puntualidad.\n— Casaora",
				tenantName, amountDisplay, dueDateStr, e.AppPublicURL)
		case models.ReminderDMinus1:
			body = fmt.Sprintf(
				"Hola %s,\n\nTu pago de %s vence mañana (%s).\n\nSi ya realizaste el pago, por favor envía tu comprobante.\n%s/tenant/payments\n\n— Casaora",
				tenantName, amountDisplay, dueDateStr, e.AppPublicURL)
		case models.ReminderDDay:
			body = fmt.Sprintf(
				"⚠️ %s, hoy vence tu pago de alquiler de %s.\n\nPor favor realiza tu pago hoy para evitar recargos.\n%s/tenant/payments\n\n— Casaora",
				tenantName, amountDisplay, e.AppPublicURL)
		}

		err = e.queueCollectionMessage(ctx, utils.RowString(collection, "organization_id"), tenantPhone, body, collectionId, reminderType)
		if err != nil {
			config.LogError(e.Logger, "workflow", "sendDueReminders", "queue reminder", map[string]interface{}{
				"collection_id": collectionId,
				"reminder_type": reminderType,
			}, err)
			result.Errors++
			continue
		}
		result.RemindersQueued++
	}
}

// markLateCollections moves pending collections past the cutoff to late,
// flags their leases delinquent and queues a late notice.
func (e *Engine) markLateCollections(ctx context.Context, organizationId string, cutoff time.Time, result *CollectionCycleResult) {
	collections, err := e.Store.List(ctx, "collection_records",
		e.collectionFilters(organizationId, models.CollectionStatusPending),
		store.ListOptions{Limit: 500, OrderBy: "due_date", Ascending: true})
	if err != nil {
		config.LogError(e.Logger, "workflow", "markLateCollections", "list overdue collections", nil, err)
		result.Errors++
		return
	}

	for _, collection := range collections {
		dueDate, ok := utils.RowDate(collection, "due_date")
		if !ok || dueDate.After(cutoff) {
			continue
		}
		collectionId := utils.RowString(collection, "id")
		if collectionId == "" {
			continue
		}
		leaseId := utils.RowString(collection, "lease_id")
		orgId := utils.RowString(collection, "organization_id")

		_, err := e.Store.Update(ctx, "collection_records", collectionId, store.Row{
			"status": models.CollectionStatusLate,
		}, "id")
		if err != nil {
			config.LogError(e.Logger, "workflow", "markLateCollections", "mark collection late", map[string]interface{}{
				"collection_id": collectionId,
			}, err)
			result.Errors++
			continue
		}

		if leaseId != "" {
			e.refreshLeaseDelinquent(ctx, leaseId)
		}

		lease, err := e.Store.Get(ctx, "leases", leaseId, "id")
		if err != nil {
			result.MarkedLate++
			continue
		}
		tenantPhone := utils.RowString(lease, "tenant_phone_e164")
		if tenantPhone != "" {
			tenantName := utils.RowString(lease, "tenant_full_name")
			amountDisplay := formatAmount(decimal.NewFromFloat(utils.RowFloat(collection, "amount")), utils.RowString(collection, "currency"))
			body := fmt.Sprintf(
				"🔴 %s, tu pago de %s (vencimiento: %s) está atrasado.\n\nPor favor regulariza tu situación lo antes posible.\n%s/tenant/payments\n\nSi ya realizaste el pago, envía tu comprobante.\n— Casaora",
				tenantName, amountDisplay, dueDate.Format("2006-01-02"), e.AppPublicURL)
			_ = e.queueCollectionMessage(ctx, orgId, tenantPhone, body, collectionId, models.ReminderDPlus3Late)
		}
		result.MarkedLate++
	}
}

// escalateLateCollections sends the urgent D+7 notice to the tenant and an
// alert to each owner admin, at most once per day per collection.
func (e *Engine) escalateLateCollections(ctx context.Context, organizationId string, cutoff time.Time, result *CollectionCycleResult) {
	collections, err := e.Store.List(ctx, "collection_records",
		e.collectionFilters(organizationId, models.CollectionStatusLate),
		store.ListOptions{Limit: 500, OrderBy: "due_date", Ascending: true})
	if err != nil {
		config.LogError(e.Logger, "workflow", "escalateLateCollections", "list late collections", nil, err)
		result.Errors++
		return
	}
	today := e.today()

	for _, collection := range collections {
		dueDate, ok := utils.RowDate(collection, "due_date")
		if !ok || dueDate.After(cutoff) {
			continue
		}
		collectionId := utils.RowString(collection, "id")
		if collectionId == "" {
			continue
		}
		if e.alreadySentToday(ctx, collectionId, models.ReminderDPlus7Escalation, today) {
			continue
		}

		leaseId := utils.RowString(collection, "lease_id")
		orgId := utils.RowString(collection, "organization_id")
		lease, err := e.Store.Get(ctx, "leases", leaseId, "id")
		if err != nil {
			continue
		}
		tenantName := utils.RowString(lease, "tenant_full_name")
		amountDisplay := formatAmount(decimal.NewFromFloat(utils.RowFloat(collection, "amount")), utils.RowString(collection, "currency"))
		dueDateStr := dueDate.Format("2006-01-02")

		if tenantPhone := utils.RowString(lease, "tenant_phone_e164"); tenantPhone != "" {
			body := fmt.Sprintf(
				"🚨 URGENTE — %s\n\nTu pago de %s (vencimiento: %s) lleva más de 7 días de atraso.\n\nDebes regularizar tu situación de forma inmediata para evitar acciones adicionales.\n%s/tenant/payments\n\nContacta a tu administrador si necesitas coordinar un plan de pago.\n— Casaora",
				tenantName, amountDisplay, dueDateStr, e.AppPublicURL)
			_ = e.queueCollectionMessage(ctx, orgId, tenantPhone, body, collectionId, models.ReminderDPlus7Escalation)
		}

		owners, err := e.Store.List(ctx, "organization_members", store.Filters{
			"organization_id": orgId,
			"role":            models.RoleOwnerAdmin,
		}, store.ListOptions{Limit: 5, OrderBy: "created_at", Ascending: true})
		if err != nil {
			owners = nil
		}
		for _, member := range owners {
			userId := utils.RowString(member, "user_id")
			if userId == "" {
				continue
			}
			user, err := e.Store.Get(ctx, "app_users", userId, "id")
			if err != nil {
				continue
			}
			ownerPhone := utils.RowString(user, "phone_e164")
			if ownerPhone == "" {
				continue
			}
			body := fmt.Sprintf(
				"⚠️ Alerta de cobro — El inquilino %s tiene un pago de %s con más de 7 días de atraso (vencimiento: %s).\n\nRevisa el estado en tu panel de administración.\n— Casaora",
				tenantName, amountDisplay, dueDateStr)
			_ = e.queueCollectionMessage(ctx, orgId, ownerPhone, body, collectionId, models.ReminderOwnerEscalation)
		}

		result.Escalated++
	}
}

// alreadySentToday reports whether a reminder of this type already went out
// for the collection today. Looks at recent outbound WhatsApp traffic only.
func (e *Engine) alreadySentToday(ctx context.Context, collectionId, reminderType string, today time.Time) bool {
	messages, err := e.Store.List(ctx, "message_logs", store.Filters{
		"channel": models.ChannelWhatsApp,
	}, store.ListOptions{Limit: 200, OrderBy: "created_at"})
	if err != nil {
		return false
	}
	todayPrefix := today.Format("2006-01-02")
	for _, msg := range messages {
		payload := utils.RowMap(msg, "payload")
		if payload == nil {
			continue
		}
		if utils.RowString(payload, "collection_id") != collectionId {
			continue
		}
		if utils.RowString(payload, "reminder_type") != reminderType {
			continue
		}
		createdAt, ok := utils.RowTime(msg, "created_at")
		if ok && createdAt.Format("2006-01-02") == todayPrefix {
			return true
		}
	}
	return false
}

func (e *Engine) queueCollectionMessage(ctx context.Context, organizationId, phone, body, collectionId, reminderType string) error {
	phone = utils.NormalizePhoneE164(phone)
	if phone == "" {
		return nil
	}
	_, err := e.Store.Create(ctx, "message_logs", store.Row{
		"organization_id": organizationId,
		"channel":         models.ChannelWhatsApp,
		"recipient":       phone,
		"status":          models.MessageStatusQueued,
		"direction":       "outbound",
		"scheduled_at":    e.now().Format(time.RFC3339),
		"payload": map[string]any{
			"body":          body,
			"reminder_type": reminderType,
			"collection_id": collectionId,
		},
	})
	return err
}

// refreshLeaseDelinquent recomputes lease_status from the lease's open
// collections: delinquent while any unpaid collection is past due, active
// once none are. Statuses outside active/delinquent are left alone, and the
// row is only written when the computed status differs.
func (e *Engine) refreshLeaseDelinquent(ctx context.Context, leaseId string) {
	lease, err := e.Store.Get(ctx, "leases", leaseId, "id")
	if err != nil {
		return
	}
	status := utils.RowString(lease, "lease_status")
	if status != models.LeaseStatusActive && status != models.LeaseStatusDelinquent {
		return
	}

	open, err := e.Store.List(ctx, "collection_records", store.Filters{
		"lease_id": leaseId,
		"status": []string{
			models.CollectionStatusScheduled,
			models.CollectionStatusPending,
			models.CollectionStatusLate,
		},
	}, store.ListOptions{Limit: 500, OrderBy: "due_date", Ascending: true})
	if err != nil {
		config.LogError(e.Logger, "workflow", "refreshLeaseDelinquent", "list open collections", map[string]interface{}{
			"lease_id": leaseId,
		}, err)
		return
	}

	today := e.today()
	computed := models.LeaseStatusActive
	for _, collection := range open {
		dueDate, ok := utils.RowDate(collection, "due_date")
		if ok && dueDate.Before(today) {
			computed = models.LeaseStatusDelinquent
			break
		}
	}
	if computed == status {
		return
	}
	_, err = e.Store.Update(ctx, "leases", leaseId, store.Row{
		"lease_status": computed,
	}, "id")
	if err != nil {
		config.LogError(e.Logger, "workflow", "refreshLeaseDelinquent", "update lease status", map[string]interface{}{
			"lease_id": leaseId,
		}, err)
	}
}
