package notifications

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/casaora/automation_backend/models"
	"github.com/casaora/automation_backend/store"
	"github.com/casaora/automation_backend/utils"
)

type recordedPush struct {
	UserIds []string
	Title   string
}

type fakePush struct {
	sent []recordedPush
}

func (f *fakePush) SendPush(ctx context.Context, userIds []string, title, body string, data map[string]any) int {
	f.sent = append(f.sent, recordedPush{UserIds: userIds, Title: title})
	return len(userIds)
}

func newTestCenter(now time.Time) (*Center, *store.MemoryStore, *fakePush) {
	mem := store.NewMemoryStore()
	mem.Clock = func() time.Time { return now }
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	push := &fakePush{}
	center := NewCenter(mem, logger, push)
	center.Clock = func() time.Time { return now }
	return center, mem, push
}

func seedOrgMembers(mem *store.MemoryStore) {
	mem.Seed("organization_members",
		store.Row{"organization_id": "org-1", "user_id": "user-admin", "role": models.RoleOwnerAdmin},
		store.Row{"organization_id": "org-1", "user_id": "user-op", "role": models.RoleOperator},
		store.Row{"organization_id": "org-1", "user_id": "user-viewer", "role": models.RoleViewer},
	)
}

func TestEmitEventFansOutToFallbackRoles(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	center, mem, push := newTestCenter(now)
	seedOrgMembers(mem)

	event, err := center.EmitEvent(context.Background(), EmitEventInput{
		OrganizationId: "org-1",
		EventType:      "task_sla_breached",
		Category:       "tasks",
		Severity:       models.SeverityWarning,
		Title:          "SLA breached",
		Body:           "Task overdue",
	})
	if err != nil {
		t.Fatalf("EmitEvent: %v", err)
	}
	if event == nil {
		t.Fatal("expected event row")
	}

	deliveries, err := mem.List(context.Background(), "user_notifications", store.Filters{
		"event_id": utils.RowString(event, "id"),
	}, store.ListOptions{Limit: 10})
	if err != nil {
		t.Fatalf("list deliveries: %v", err)
	}
	if len(deliveries) != 2 {
		t.Fatalf("deliveries = %d, want 2 (viewer excluded)", len(deliveries))
	}
	if len(push.sent) != 1 || len(push.sent[0].UserIds) != 2 {
		t.Fatalf("push fan-out = %+v, want one send to 2 users", push.sent)
	}
}

func TestEmitEventPrefersPayloadRecipients(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	center, mem, _ := newTestCenter(now)
	seedOrgMembers(mem)

	event, err := center.EmitEvent(context.Background(), EmitEventInput{
		OrganizationId: "org-1",
		EventType:      "task_assigned",
		Category:       "tasks",
		Severity:       models.SeverityInfo,
		Payload:        map[string]any{"assigned_user_id": "user-assignee"},
	})
	if err != nil {
		t.Fatalf("EmitEvent: %v", err)
	}
	deliveries, err := mem.List(context.Background(), "user_notifications", store.Filters{
		"event_id": utils.RowString(event, "id"),
	}, store.ListOptions{Limit: 10})
	if err != nil {
		t.Fatalf("list deliveries: %v", err)
	}
	if len(deliveries) != 1 {
		t.Fatalf("deliveries = %d, want 1", len(deliveries))
	}
	if got := utils.RowString(deliveries[0], "recipient_user_id"); got != "user-assignee" {
		t.Errorf("recipient = %q, want user-assignee", got)
	}
}

func TestEmitEventDedupeKeyIsIdempotent(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	center, mem, _ := newTestCenter(now)
	seedOrgMembers(mem)

	input := EmitEventInput{
		OrganizationId: "org-1",
		EventType:      "payment_overpayment",
		Category:       "payments",
		Severity:       models.SeverityWarning,
		DedupeKey:      "overpayment:col-1:CASA-1234",
	}
	first, err := center.EmitEvent(context.Background(), input)
	if err != nil {
		t.Fatalf("first EmitEvent: %v", err)
	}
	second, err := center.EmitEvent(context.Background(), input)
	if err != nil {
		t.Fatalf("second EmitEvent: %v", err)
	}
	if utils.RowString(first, "id") != utils.RowString(second, "id") {
		t.Error("second emit did not reuse the stored event")
	}

	events := mustCount(t, mem, "notification_events", store.Filters{"dedupe_key": "overpayment:col-1:CASA-1234"})
	if events != 1 {
		t.Errorf("events = %d, want 1", events)
	}
	deliveries := mustCount(t, mem, "user_notifications", store.Filters{"event_id": utils.RowString(first, "id")})
	if deliveries != 2 {
		t.Errorf("deliveries = %d, want 2", deliveries)
	}
}

func TestEmitEventBlankRequiredFieldIsNoOp(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	center, mem, _ := newTestCenter(now)

	event, err := center.EmitEvent(context.Background(), EmitEventInput{
		OrganizationId: "org-1",
		EventType:      "something",
		Category:       "",
		Severity:       models.SeverityInfo,
	})
	if err != nil {
		t.Fatalf("EmitEvent: %v", err)
	}
	if event != nil {
		t.Error("expected nil event for blank category")
	}
	if n := mustCount(t, mem, "notification_events", store.Filters{}); n != 0 {
		t.Errorf("events = %d, want 0", n)
	}
}

func mustCount(t *testing.T, mem *store.MemoryStore, table string, filters store.Filters) int64 {
	t.Helper()
	n, err := mem.Count(context.Background(), table, filters)
	if err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}
