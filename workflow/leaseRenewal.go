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

// LeaseRenewalResult summarizes one renewal scan.
type LeaseRenewalResult struct {
	OffersSent60d    uint32 `json:"offers_sent_60d"`
	RemindersSent30d uint32 `json:"reminders_sent_30d"`
	Expired          uint32 `json:"expired"`
}

// RunLeaseRenewalScan walks active leases by end date and drives the renewal
// ladder: a 60-day heads-up to tenant and owners, a 30-day reminder while the
// decision is still open, and expiry of offers on leases already past their
// end date.
func (e *Engine) RunLeaseRenewalScan(ctx context.Context, organizationId string) LeaseRenewalResult {
	var result LeaseRenewalResult
	today := e.today()
	target60d := today.AddDate(0, 0, 60)
	target30d := today.AddDate(0, 0, 30)

	filters := store.Filters{"lease_status": models.LeaseStatusActive}
	if organizationId != "" {
		filters["organization_id"] = organizationId
	}
	leases, err := e.Store.List(ctx, "leases", filters, store.ListOptions{
		Limit: 2000, OrderBy: "ends_on", Ascending: true,
	})
	if err != nil {
		config.LogError(e.Logger, "workflow", "RunLeaseRenewalScan", "list active leases", nil, err)
		return result
	}

	for _, lease := range leases {
		leaseId := utils.RowString(lease, "id")
		endsOn, ok := utils.RowDate(lease, "ends_on")
		if leaseId == "" || !ok {
			continue
		}
		orgId := utils.RowString(lease, "organization_id")
		renewalStatus := utils.RowString(lease, "renewal_status")
		tenantName := utils.RowString(lease, "tenant_full_name")
		tenantPhone := utils.RowString(lease, "tenant_phone_e164")
		monthlyRent := decimal.NewFromFloat(utils.RowFloat(lease, "monthly_rent"))
		currency := utils.RowString(lease, "currency")
		endsOnStr := endsOn.Format("2006-01-02")

		if endsOn.Equal(target60d) && renewalStatus == models.RenewalStatusNone {
			amountDisplay := formatAmount(monthlyRent, currency)

			_, err := e.Store.Update(ctx, "leases", leaseId, store.Row{
				"renewal_status": models.RenewalStatusPending,
			}, "id")
			if err != nil {
				config.LogError(e.Logger, "workflow", "RunLeaseRenewalScan", "mark lease pending renewal", map[string]interface{}{
					"lease_id": leaseId,
				}, err)
			}

			if tenantPhone != "" && orgId != "" {
				body := fmt.Sprintf(
					"📋 Renovación de contrato\n\nHola %s, tu contrato de alquiler vence el %s.\n\nRenta actual: %s/mes\n\nTu administrador te enviará una oferta de renovación pronto.\n— Casaora",
					tenantName, endsOnStr, amountDisplay)
				e.queueLeaseMessage(ctx, orgId, tenantPhone, body, leaseId, models.ReminderRenewal60d)
			}

			ownerBody := fmt.Sprintf(
				"📋 Contrato por vencer\n\nEl contrato de %s vence el %s.\nRenta actual: %s/mes\n\nEnvía una oferta de renovación desde tu panel.\n%s/module/leases",
				tenantName, endsOnStr, amountDisplay, e.AppPublicURL)
			e.notifyOwnerAdmins(ctx, orgId, ownerBody, leaseId, models.ReminderRenewalOwner60d)

			if orgId != "" {
				rent, _ := monthlyRent.Float64()
				e.Triggers.FireTrigger(ctx, orgId, "lease_expiring", map[string]any{
					"lease_id":          leaseId,
					"tenant_full_name":  tenantName,
					"tenant_phone_e164": tenantPhone,
					"ends_on":           endsOnStr,
					"monthly_rent":      rent,
					"currency":          currency,
				})
			}
			result.OffersSent60d++
		}

		if endsOn.Equal(target30d) && (renewalStatus == models.RenewalStatusPending || renewalStatus == models.RenewalStatusOffered) {
			if tenantPhone != "" && orgId != "" {
				body := fmt.Sprintf(
					"⏰ Recordatorio de renovación\n\nHola %s, tu contrato vence en 30 días (%s).\n\nPor favor contacta a tu administrador sobre la renovación.\n— Casaora",
					tenantName, endsOnStr)
				e.queueLeaseMessage(ctx, orgId, tenantPhone, body, leaseId, models.ReminderRenewal30d)
			}
			result.RemindersSent30d++
		}

		if endsOn.Before(today) && (renewalStatus == models.RenewalStatusPending || renewalStatus == models.RenewalStatusOffered) {
			_, err := e.Store.Update(ctx, "leases", leaseId, store.Row{
				"renewal_status": models.RenewalStatusExpired,
			}, "id")
			if err != nil {
				config.LogError(e.Logger, "workflow", "RunLeaseRenewalScan", "expire renewal offer", map[string]interface{}{
					"lease_id": leaseId,
				}, err)
				continue
			}
			result.Expired++
		}
	}

	e.Logger.WithFields(logrus.Fields{
		"offers_60d":    result.OffersSent60d,
		"reminders_30d": result.RemindersSent30d,
		"expired":       result.Expired,
	}).Info("lease renewal scan completed")
	return result
}

// SendRenewalOffer records an explicit renewal offer on an active lease and
// notifies the tenant. offeredRent nil keeps the current rent.
func (e *Engine) SendRenewalOffer(ctx context.Context, leaseId string, offeredRent *decimal.Decimal, notes string) (store.Row, error) {
	lease, err := e.Store.Get(ctx, "leases", leaseId, "id")
	if err != nil {
		return nil, fmt.Errorf("lease not found: %w", err)
	}
	if utils.RowString(lease, "lease_status") != models.LeaseStatusActive {
		return nil, fmt.Errorf("lease must be active to send a renewal offer")
	}

	currentRent := decimal.NewFromFloat(utils.RowFloat(lease, "monthly_rent"))
	newRent := currentRent
	if offeredRent != nil {
		newRent = *offeredRent
	}
	currency := utils.RowString(lease, "currency")
	tenantName := utils.RowString(lease, "tenant_full_name")
	tenantPhone := utils.RowString(lease, "tenant_phone_e164")
	orgId := utils.RowString(lease, "organization_id")
	endsOn := utils.RowString(lease, "ends_on")

	patch := store.Row{
		"renewal_status":       models.RenewalStatusOffered,
		"renewal_offered_at":   e.now().Format(time.RFC3339),
		"renewal_offered_rent": newRent.String(),
	}
	if notes != "" {
		patch["renewal_notes"] = notes
	}
	updated, err := e.Store.Update(ctx, "leases", leaseId, patch, "id")
	if err != nil {
		return nil, fmt.Errorf("failed to update lease: %w", err)
	}

	if tenantPhone != "" && orgId != "" {
		currentDisplay := formatAmount(currentRent, currency)
		newDisplay := formatAmount(newRent, currency)
		rentChange := "Misma renta"
		if !newRent.Sub(currentRent).Abs().LessThan(decimal.NewFromFloat(0.01)) {
			rentChange = fmt.Sprintf("Nueva renta: %s (antes: %s)", newDisplay, currentDisplay)
		}
		body := fmt.Sprintf(
			"📝 Oferta de renovación\n\nHola %s,\n\nTu administrador te ofrece renovar tu contrato (vence: %s).\n%s\n\nAcepta o responde a este mensaje para más información.\n— Casaora",
			tenantName, endsOn, rentChange)
		e.queueLeaseMessage(ctx, orgId, tenantPhone, body, leaseId, models.ReminderRenewalOffer)
	}
	return updated, nil
}

func (e *Engine) queueLeaseMessage(ctx context.Context, organizationId, phone, body, leaseId, reminderType string) {
	phone = utils.NormalizePhoneE164(phone)
	if phone == "" {
		return
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
			"lease_id":      leaseId,
			"reminder_type": reminderType,
		},
	})
	if err != nil {
		config.LogError(e.Logger, "workflow", "queueLeaseMessage", "queue message", map[string]interface{}{
			"lease_id":      leaseId,
			"reminder_type": reminderType,
		}, err)
	}
}

func (e *Engine) notifyOwnerAdmins(ctx context.Context, organizationId, body, leaseId, reminderType string) {
	members, err := e.Store.List(ctx, "organization_members", store.Filters{
		"organization_id": organizationId,
		"role":            models.RoleOwnerAdmin,
	}, store.ListOptions{Limit: 5, OrderBy: "created_at", Ascending: true})
	if err != nil {
		return
	}
	for _, member := range members {
		userId := utils.RowString(member, "user_id")
		if userId == "" {
			continue
		}
		user, err := e.Store.Get(ctx, "app_users", userId, "id")
		if err != nil {
			continue
		}
		if phone := utils.RowString(user, "phone_e164"); phone != "" {
			e.queueLeaseMessage(ctx, organizationId, phone, body, leaseId, reminderType)
		}
	}
}
