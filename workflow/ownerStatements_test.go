package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/casaora/automation_backend/models"
	"github.com/casaora/automation_backend/store"
	"github.com/casaora/automation_backend/utils"
)

func TestGenerateMonthlyStatements(t *testing.T) {
	now := time.Date(2026, 4, 1, 6, 0, 0, 0, time.UTC)
	engine, mem, triggers := newTestEngine(now)

	mem.Seed("properties",
		store.Row{"id": "prop-owned", "organization_id": "org-1",
			"asset_owner_id": "owner-1", "is_active": true},
		store.Row{"id": "prop-unowned", "organization_id": "org-1",
			"is_active": true},
	)
	mem.Seed("leases", store.Row{
		"id": "lease-1", "organization_id": "org-1", "property_id": "prop-owned",
		"lease_status": models.LeaseStatusActive,
	})
	mem.Seed("collection_records",
		store.Row{"id": "col-paid", "organization_id": "org-1", "lease_id": "lease-1",
			"status": models.CollectionStatusPaid, "due_date": "2026-03-05",
			"amount": 2500000.0, "amount_paid": 2500000.0, "currency": "PYG"},
		store.Row{"id": "col-outside", "organization_id": "org-1", "lease_id": "lease-1",
			"status": models.CollectionStatusPaid, "due_date": "2026-02-05",
			"amount": 2500000.0, "amount_paid": 2500000.0, "currency": "PYG"},
	)
	mem.Seed("expenses",
		store.Row{"organization_id": "org-1", "property_id": "prop-owned",
			"category": "repairs", "amount": 400000.0, "occurred_on": "2026-03-12"},
		store.Row{"organization_id": "org-1", "property_id": "prop-owned",
			"category": "repairs", "amount": 900000.0, "occurred_on": "2026-02-12"},
	)

	if created := engine.GenerateMonthlyStatements(context.Background(), "org-1"); created != 1 {
		t.Fatalf("created = %d, want 1", created)
	}
	statements, err := mem.List(context.Background(), "owner_statements", store.Filters{
		"organization_id": "org-1",
	}, store.ListOptions{Limit: 10})
	if err != nil {
		t.Fatalf("list owner_statements: %v", err)
	}
	if len(statements) != 1 {
		t.Fatalf("statements = %d, want 1", len(statements))
	}
	statement := statements[0]
	if got := utils.RowString(statement, "period_start"); got != "2026-03-01" {
		t.Errorf("period_start = %q, want 2026-03-01", got)
	}
	if got := utils.RowString(statement, "period_end"); got != "2026-03-31" {
		t.Errorf("period_end = %q, want 2026-03-31", got)
	}
	if got := utils.RowFloat(statement, "total_income"); got != 2500000 {
		t.Errorf("total_income = %v, want 2500000", got)
	}
	if got := utils.RowFloat(statement, "total_expenses"); got != 400000 {
		t.Errorf("total_expenses = %v, want 400000", got)
	}
	if got := utils.RowFloat(statement, "net_amount"); got != 2100000 {
		t.Errorf("net_amount = %v, want 2100000", got)
	}
	if fired := triggers.byEvent("owner_statement_generated"); len(fired) != 1 {
		t.Fatalf("owner_statement_generated triggers = %d, want 1", len(fired))
	}

	// Re-running the same period creates nothing new.
	if created := engine.GenerateMonthlyStatements(context.Background(), "org-1"); created != 0 {
		t.Fatalf("re-run created = %d, want 0", created)
	}
}

func TestExpireStaleInstructions(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	engine, mem, _ := newTestEngine(now)

	mem.Seed("payment_instructions",
		store.Row{"id": "pi-stale", "organization_id": "org-1",
			"status": models.PaymentInstructionStatusActive, "expires_at": now.Add(-time.Hour)},
		store.Row{"id": "pi-live", "organization_id": "org-1",
			"status": models.PaymentInstructionStatusActive, "expires_at": now.Add(time.Hour)},
		store.Row{"id": "pi-open-ended", "organization_id": "org-1",
			"status": models.PaymentInstructionStatusActive},
	)

	if got := engine.ExpireStaleInstructions(context.Background()); got != 1 {
		t.Fatalf("expired = %d, want 1", got)
	}
	if got := utils.RowString(mustGet(t, mem, "payment_instructions", "pi-stale"), "status"); got != models.PaymentInstructionStatusExpired {
		t.Errorf("pi-stale status = %q, want expired", got)
	}
	if got := utils.RowString(mustGet(t, mem, "payment_instructions", "pi-live"), "status"); got != models.PaymentInstructionStatusActive {
		t.Errorf("pi-live status = %q, want active", got)
	}
}
