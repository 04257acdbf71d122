package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/casaora/automation_backend/models"
	"github.com/casaora/automation_backend/store"
	"github.com/casaora/automation_backend/utils"
)

func seedLease(mem *store.MemoryStore, id, orgId, status string) {
	mem.Seed("leases", store.Row{
		"id":                id,
		"organization_id":   orgId,
		"lease_status":      status,
		"tenant_full_name":  "Ana López",
		"tenant_phone_e164": "+595981234567",
		"monthly_rent":      2500000.0,
		"currency":          "PYG",
	})
}

func reminderMessages(t *testing.T, mem *store.MemoryStore, collectionId, reminderType string) []store.Row {
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
		if utils.RowString(payload, "collection_id") == collectionId &&
			utils.RowString(payload, "reminder_type") == reminderType {
			out = append(out, msg)
		}
	}
	return out
}

func TestCollectionCycleActivatesUpcoming(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	engine, mem, _ := newTestEngine(now)

	seedLease(mem, "lease-1", "org-1", models.LeaseStatusActive)
	mem.Seed("collection_records",
		store.Row{"id": "col-soon", "organization_id": "org-1", "lease_id": "lease-1",
			"status": models.CollectionStatusScheduled, "due_date": "2026-03-12",
			"amount": 2500000.0, "currency": "PYG"},
		store.Row{"id": "col-later", "organization_id": "org-1", "lease_id": "lease-1",
			"status": models.CollectionStatusScheduled, "due_date": "2026-03-20",
			"amount": 2500000.0, "currency": "PYG"},
	)

	result := engine.RunDailyCollectionCycle(context.Background(), "org-1")
	if result.Activated != 1 {
		t.Fatalf("activated = %d, want 1", result.Activated)
	}
	if got := utils.RowString(mustGet(t, mem, "collection_records", "col-soon"), "status"); got != models.CollectionStatusPending {
		t.Errorf("col-soon status = %q, want pending", got)
	}
	if got := utils.RowString(mustGet(t, mem, "collection_records", "col-later"), "status"); got != models.CollectionStatusScheduled {
		t.Errorf("col-later status = %q, want scheduled", got)
	}
}

func TestCollectionCycleReminderOncePerDay(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	engine, mem, _ := newTestEngine(now)

	seedLease(mem, "lease-1", "org-1", models.LeaseStatusActive)
	mem.Seed("collection_records", store.Row{
		"id": "col-1", "organization_id": "org-1", "lease_id": "lease-1",
		"status": models.CollectionStatusPending, "due_date": "2026-03-13",
		"amount": 2500000.0, "currency": "PYG",
	})

	first := engine.RunDailyCollectionCycle(context.Background(), "org-1")
	if first.RemindersQueued != 1 {
		t.Fatalf("first run reminders = %d, want 1", first.RemindersQueued)
	}
	second := engine.RunDailyCollectionCycle(context.Background(), "org-1")
	if second.RemindersQueued != 0 {
		t.Fatalf("second run reminders = %d, want 0", second.RemindersQueued)
	}
	if msgs := reminderMessages(t, mem, "col-1", models.ReminderDMinus3); len(msgs) != 1 {
		t.Fatalf("d_minus_3 messages = %d, want 1", len(msgs))
	}
}

func TestCollectionCycleMarksLateAndFlagsLease(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	engine, mem, _ := newTestEngine(now)

	seedLease(mem, "lease-1", "org-1", models.LeaseStatusActive)
	mem.Seed("collection_records", store.Row{
		"id": "col-1", "organization_id": "org-1", "lease_id": "lease-1",
		"status": models.CollectionStatusPending, "due_date": "2026-03-06",
		"amount": 2500000.0, "currency": "PYG",
	})

	result := engine.RunDailyCollectionCycle(context.Background(), "org-1")
	if result.MarkedLate != 1 {
		t.Fatalf("marked late = %d, want 1", result.MarkedLate)
	}
	if got := utils.RowString(mustGet(t, mem, "collection_records", "col-1"), "status"); got != models.CollectionStatusLate {
		t.Errorf("collection status = %q, want late", got)
	}
	if got := utils.RowString(mustGet(t, mem, "leases", "lease-1"), "lease_status"); got != models.LeaseStatusDelinquent {
		t.Errorf("lease status = %q, want delinquent", got)
	}
	if msgs := reminderMessages(t, mem, "col-1", models.ReminderDPlus3Late); len(msgs) != 1 {
		t.Errorf("late notices = %d, want 1", len(msgs))
	}
}

func TestCollectionCycleEscalationOncePerDay(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	engine, mem, _ := newTestEngine(now)

	seedLease(mem, "lease-1", "org-1", models.LeaseStatusDelinquent)
	mem.Seed("collection_records", store.Row{
		"id": "col-1", "organization_id": "org-1", "lease_id": "lease-1",
		"status": models.CollectionStatusLate, "due_date": "2026-03-01",
		"amount": 2500000.0, "currency": "PYG",
	})
	mem.Seed("organization_members", store.Row{
		"organization_id": "org-1", "user_id": "user-owner", "role": models.RoleOwnerAdmin,
	})
	mem.Seed("app_users", store.Row{
		"id": "user-owner", "full_name": "Dueño Demo", "phone_e164": "+595987654321",
	})

	first := engine.RunDailyCollectionCycle(context.Background(), "org-1")
	if first.Escalated != 1 {
		t.Fatalf("first run escalated = %d, want 1", first.Escalated)
	}
	if msgs := reminderMessages(t, mem, "col-1", models.ReminderDPlus7Escalation); len(msgs) != 1 {
		t.Fatalf("tenant escalations = %d, want 1", len(msgs))
	}
	if msgs := reminderMessages(t, mem, "col-1", models.ReminderOwnerEscalation); len(msgs) != 1 {
		t.Fatalf("owner alerts = %d, want 1", len(msgs))
	}

	second := engine.RunDailyCollectionCycle(context.Background(), "org-1")
	if second.Escalated != 0 {
		t.Fatalf("second run escalated = %d, want 0", second.Escalated)
	}
}

func TestRefreshLeaseDelinquentRecovers(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	engine, mem, _ := newTestEngine(now)

	seedLease(mem, "lease-1", "org-1", models.LeaseStatusDelinquent)
	mem.Seed("collection_records", store.Row{
		"id": "col-future", "organization_id": "org-1", "lease_id": "lease-1",
		"status": models.CollectionStatusPending, "due_date": "2026-04-05",
		"amount": 2500000.0, "currency": "PYG",
	})

	engine.refreshLeaseDelinquent(context.Background(), "lease-1")
	if got := utils.RowString(mustGet(t, mem, "leases", "lease-1"), "lease_status"); got != models.LeaseStatusActive {
		t.Errorf("lease status = %q, want active", got)
	}
}
