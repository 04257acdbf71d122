package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestValidateTableRejectsUnknownAndMalformed(t *testing.T) {
	if _, err := ValidateTable("leases"); err != nil {
		t.Fatalf("leases rejected: %v", err)
	}
	if _, err := ValidateTable("sqlite_master"); !errors.Is(err, ErrTableNotAllowed) {
		t.Errorf("unknown table error = %v, want ErrTableNotAllowed", err)
	}
	for _, bad := range []string{"leases; drop table leases", "Leases", "lea-ses", "", "1leases"} {
		if _, err := ValidateTable(bad); err == nil {
			t.Errorf("ValidateTable(%q) accepted", bad)
		}
	}
}

func TestListFilterOperators(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	mem := NewMemoryStore()
	mem.Clock = fixedClock(now)
	mem.Seed("tasks",
		Row{"id": "t1", "status": "todo", "priority": "high", "due_at": now.Add(-time.Hour), "title": "Fix boiler"},
		Row{"id": "t2", "status": "done", "priority": "low", "due_at": now.Add(time.Hour), "title": "Fix window"},
		Row{"id": "t3", "status": "todo", "priority": "low", "title": "Paint door"},
	)
	ctx := context.Background()

	rows, err := mem.List(ctx, "tasks", Filters{"status": "todo"}, ListOptions{Limit: 10})
	if err != nil || len(rows) != 2 {
		t.Fatalf("eq filter: rows=%d err=%v, want 2", len(rows), err)
	}

	rows, err = mem.List(ctx, "tasks", Filters{"status": []string{"todo", "done"}}, ListOptions{Limit: 10})
	if err != nil || len(rows) != 3 {
		t.Fatalf("in filter: rows=%d err=%v, want 3", len(rows), err)
	}

	rows, err = mem.List(ctx, "tasks", Filters{"due_at__lt": now}, ListOptions{Limit: 10})
	if err != nil || len(rows) != 1 || rows[0]["id"] != "t1" {
		t.Fatalf("lt filter: rows=%v err=%v, want t1 only", rows, err)
	}

	rows, err = mem.List(ctx, "tasks", Filters{"due_at__is_null": true}, ListOptions{Limit: 10})
	if err != nil || len(rows) != 1 || rows[0]["id"] != "t3" {
		t.Fatalf("is_null filter: rows=%v err=%v, want t3 only", rows, err)
	}

	rows, err = mem.List(ctx, "tasks", Filters{"title__like": "Fix%"}, ListOptions{Limit: 10})
	if err != nil || len(rows) != 2 {
		t.Fatalf("like filter: rows=%d err=%v, want 2", len(rows), err)
	}

	if _, err := mem.List(ctx, "tasks", Filters{"status__gt": []string{"a"}}, ListOptions{Limit: 10}); err == nil {
		t.Error("array value on range operator accepted")
	}
}

func TestListOrderingAndPaging(t *testing.T) {
	mem := NewMemoryStore()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		mem.Seed("tasks", Row{"id": id, "status": "todo", "created_at": base.AddDate(0, 0, i)})
	}
	ctx := context.Background()

	rows, err := mem.List(ctx, "tasks", nil, ListOptions{Limit: 10})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if rows[0]["id"] != "c" {
		t.Errorf("default order first = %v, want c (newest first)", rows[0]["id"])
	}

	rows, err = mem.List(ctx, "tasks", nil, ListOptions{Limit: 10, Ascending: true})
	if err != nil {
		t.Fatalf("List asc: %v", err)
	}
	if rows[0]["id"] != "a" {
		t.Errorf("ascending first = %v, want a", rows[0]["id"])
	}

	rows, err = mem.List(ctx, "tasks", nil, ListOptions{Limit: 1, Offset: 1, Ascending: true})
	if err != nil || len(rows) != 1 || rows[0]["id"] != "b" {
		t.Fatalf("paged row = %v err=%v, want b", rows, err)
	}
}

func TestCreateAssignsIdAndTimestamps(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	mem := NewMemoryStore()
	mem.Clock = fixedClock(now)

	created, err := mem.Create(context.Background(), "tasks", Row{"status": "todo"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created["id"] == nil || created["id"] == "" {
		t.Error("id not assigned")
	}
	if created["created_at"] != now || created["updated_at"] != now {
		t.Error("timestamps not stamped from clock")
	}
}

func TestUniqueIndexConflicts(t *testing.T) {
	mem := NewMemoryStore()
	ctx := context.Background()

	_, err := mem.Create(ctx, "notification_events", Row{
		"organization_id": "org-1", "event_type": "a", "category": "c",
		"severity": "info", "dedupe_key": "k-1",
	})
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err = mem.Create(ctx, "notification_events", Row{
		"organization_id": "org-1", "event_type": "a", "category": "c",
		"severity": "info", "dedupe_key": "k-1",
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate dedupe_key error = %v, want ErrConflict", err)
	}

	// Blank keys are not subject to the unique index.
	for i := 0; i < 2; i++ {
		if _, err := mem.Create(ctx, "notification_events", Row{
			"organization_id": "org-1", "event_type": "a", "category": "c", "severity": "info",
		}); err != nil {
			t.Fatalf("keyless create %d: %v", i, err)
		}
	}
}

func TestUpdateAndDelete(t *testing.T) {
	mem := NewMemoryStore()
	ctx := context.Background()
	mem.Seed("tasks", Row{"id": "t1", "status": "todo"})

	updated, err := mem.Update(ctx, "tasks", "t1", Row{"status": "done"}, "id")
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated["status"] != "done" {
		t.Errorf("status = %v, want done", updated["status"])
	}

	if _, err := mem.Update(ctx, "tasks", "missing", Row{"status": "done"}, "id"); !errors.Is(err, ErrNotFound) {
		t.Errorf("update missing error = %v, want ErrNotFound", err)
	}

	deleted, err := mem.Delete(ctx, "tasks", "t1", "id")
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if deleted["id"] != "t1" {
		t.Errorf("deleted row = %v", deleted)
	}
	if _, err := mem.Get(ctx, "tasks", "t1", "id"); !errors.Is(err, ErrNotFound) {
		t.Errorf("get after delete error = %v, want ErrNotFound", err)
	}
}

func TestFilterKeyParsing(t *testing.T) {
	cases := map[string]filterOp{
		"due_at":           opEq,
		"due_at__gt":       opGt,
		"due_at__gte":      opGte,
		"due_at__lt":       opLt,
		"due_at__lte":      opLte,
		"title__like":      opLike,
		"read_at__is_null": opIsNull,
		"status__in":       opEq,
	}
	for key, want := range cases {
		_, op, err := parseFilterKey(key)
		if err != nil {
			t.Errorf("parseFilterKey(%q): %v", key, err)
			continue
		}
		if op != want {
			t.Errorf("parseFilterKey(%q) op = %v, want %v", key, op, want)
		}
	}

	// An unknown suffix is part of the column name itself.
	column, op, err := parseFilterKey("payload__body")
	if err != nil || column != "payload__body" || op != opEq {
		t.Errorf("unknown suffix: column=%q op=%v err=%v", column, op, err)
	}
}

func TestClampLimit(t *testing.T) {
	if got := clampLimit(0); got != 1 {
		t.Errorf("clampLimit(0) = %d, want 1", got)
	}
	if got := clampLimit(5000); got != 1000 {
		t.Errorf("clampLimit(5000) = %d, want 1000", got)
	}
	if got := clampLimit(50); got != 50 {
		t.Errorf("clampLimit(50) = %d, want 50", got)
	}
}
