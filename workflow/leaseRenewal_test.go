package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/casaora/automation_backend/models"
	"github.com/casaora/automation_backend/store"
	"github.com/casaora/automation_backend/utils"
)

func leaseMessages(t *testing.T, mem *store.MemoryStore, leaseId, reminderType string) []store.Row {
	t.Helper()
	messages, err := mem.List(context.Background(), "message_logs", store.Filters{
		"channel": models.ChannelWhatsApp,
	}, store.ListOptions{Limit: 200})
	if err != nil {
		t.Fatalf("list message_logs: %v", err)
	}
	var out []store.Row
	for _, msg := range messages {
		payload := utils.RowMap(msg, "payload")
		if payload == nil {
			continue
		}
		if utils.RowString(payload, "lease_id") == leaseId &&
			utils.RowString(payload, "reminder_type") == reminderType {
			out = append(out, msg)
		}
	}
	return out
}

func TestRenewalScan60DayNotice(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	engine, mem, triggers := newTestEngine(now)

	mem.Seed("leases", store.Row{
		"id": "lease-1", "organization_id": "org-1",
		"lease_status": models.LeaseStatusActive, "renewal_status": "",
		"tenant_full_name": "Ana López", "tenant_phone_e164": "+595981234567",
		"monthly_rent": 2500000.0, "currency": "PYG",
		"ends_on": now.AddDate(0, 0, 60).Format("2006-01-02"),
	})
	mem.Seed("organization_members", store.Row{
		"organization_id": "org-1", "user_id": "user-owner", "role": models.RoleOwnerAdmin,
	})
	mem.Seed("app_users", store.Row{
		"id": "user-owner", "phone_e164": "+595987654321",
	})

	result := engine.RunLeaseRenewalScan(context.Background(), "org-1")
	if result.OffersSent60d != 1 {
		t.Fatalf("offers 60d = %d, want 1", result.OffersSent60d)
	}
	if got := utils.RowString(mustGet(t, mem, "leases", "lease-1"), "renewal_status"); got != models.RenewalStatusPending {
		t.Errorf("renewal_status = %q, want pending", got)
	}
	if msgs := leaseMessages(t, mem, "lease-1", models.ReminderRenewal60d); len(msgs) != 1 {
		t.Errorf("tenant 60d notices = %d, want 1", len(msgs))
	}
	if msgs := leaseMessages(t, mem, "lease-1", models.ReminderRenewalOwner60d); len(msgs) != 1 {
		t.Errorf("owner 60d notices = %d, want 1", len(msgs))
	}
	fired := triggers.byEvent("lease_expiring")
	if len(fired) != 1 {
		t.Fatalf("lease_expiring triggers = %d, want 1", len(fired))
	}
	if got := fired[0].Context["lease_id"]; got != "lease-1" {
		t.Errorf("trigger lease_id = %v, want lease-1", got)
	}

	// The scan is idempotent once renewal_status left its zero value.
	again := engine.RunLeaseRenewalScan(context.Background(), "org-1")
	if again.OffersSent60d != 0 {
		t.Errorf("second scan offers 60d = %d, want 0", again.OffersSent60d)
	}
}

func TestRenewalScan30DayReminder(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	engine, mem, _ := newTestEngine(now)

	mem.Seed("leases", store.Row{
		"id": "lease-1", "organization_id": "org-1",
		"lease_status": models.LeaseStatusActive, "renewal_status": models.RenewalStatusOffered,
		"tenant_full_name": "Ana López", "tenant_phone_e164": "+595981234567",
		"monthly_rent": 2500000.0, "currency": "PYG",
		"ends_on": now.AddDate(0, 0, 30).Format("2006-01-02"),
	})

	result := engine.RunLeaseRenewalScan(context.Background(), "org-1")
	if result.RemindersSent30d != 1 {
		t.Fatalf("reminders 30d = %d, want 1", result.RemindersSent30d)
	}
	if msgs := leaseMessages(t, mem, "lease-1", models.ReminderRenewal30d); len(msgs) != 1 {
		t.Errorf("30d reminders = %d, want 1", len(msgs))
	}
}

func TestRenewalScanExpiresPastOffers(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	engine, mem, _ := newTestEngine(now)

	mem.Seed("leases", store.Row{
		"id": "lease-1", "organization_id": "org-1",
		"lease_status": models.LeaseStatusActive, "renewal_status": models.RenewalStatusPending,
		"tenant_full_name": "Ana López", "tenant_phone_e164": "+595981234567",
		"monthly_rent": 2500000.0, "currency": "PYG",
		"ends_on": "2026-03-01",
	})

	result := engine.RunLeaseRenewalScan(context.Background(), "org-1")
	if result.Expired != 1 {
		t.Fatalf("expired = %d, want 1", result.Expired)
	}
	if got := utils.RowString(mustGet(t, mem, "leases", "lease-1"), "renewal_status"); got != models.RenewalStatusExpired {
		t.Errorf("renewal_status = %q, want expired", got)
	}
}

func TestSendRenewalOfferRequiresActiveLease(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	engine, mem, _ := newTestEngine(now)

	mem.Seed("leases", store.Row{
		"id": "lease-ended", "organization_id": "org-1",
		"lease_status": models.LeaseStatusEnded,
		"monthly_rent": 2500000.0, "currency": "PYG",
	})

	if _, err := engine.SendRenewalOffer(context.Background(), "lease-ended", nil, ""); err == nil {
		t.Fatal("expected error for non-active lease")
	}
}

func TestSendRenewalOfferWithNewRent(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	engine, mem, _ := newTestEngine(now)

	mem.Seed("leases", store.Row{
		"id": "lease-1", "organization_id": "org-1",
		"lease_status":     models.LeaseStatusActive,
		"tenant_full_name": "Ana López", "tenant_phone_e164": "+595981234567",
		"monthly_rent": 2500000.0, "currency": "PYG",
		"ends_on": "2026-05-09",
	})

	newRent := decimal.NewFromInt(2700000)
	updated, err := engine.SendRenewalOffer(context.Background(), "lease-1", &newRent, "ajuste anual")
	if err != nil {
		t.Fatalf("SendRenewalOffer: %v", err)
	}
	if got := utils.RowString(updated, "renewal_status"); got != models.RenewalStatusOffered {
		t.Errorf("renewal_status = %q, want offered", got)
	}
	if got := utils.RowString(updated, "renewal_offered_rent"); got != "2700000" {
		t.Errorf("renewal_offered_rent = %q, want 2700000", got)
	}
	if got := utils.RowString(updated, "renewal_notes"); got != "ajuste anual" {
		t.Errorf("renewal_notes = %q", got)
	}
	if msgs := leaseMessages(t, mem, "lease-1", models.ReminderRenewalOffer); len(msgs) != 1 {
		t.Errorf("offer messages = %d, want 1", len(msgs))
	}
}
