package workflow

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/casaora/automation_backend/notifications"
	"github.com/casaora/automation_backend/store"
)

type firedTrigger struct {
	OrganizationId string
	Event          string
	Context        map[string]any
}

type fakeTriggers struct {
	mu    sync.Mutex
	fired []firedTrigger
}

func (f *fakeTriggers) FireTrigger(ctx context.Context, organizationId, triggerEvent string, triggerContext map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fired = append(f.fired, firedTrigger{organizationId, triggerEvent, triggerContext})
}

func (f *fakeTriggers) byEvent(event string) []firedTrigger {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []firedTrigger
	for _, t := range f.fired {
		if t.Event == event {
			out = append(out, t)
		}
	}
	return out
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestEngine(now time.Time) (*Engine, *store.MemoryStore, *fakeTriggers) {
	mem := store.NewMemoryStore()
	mem.Clock = func() time.Time { return now }
	logger := quietLogger()
	notifier := notifications.NewCenter(mem, logger, nil)
	notifier.Clock = func() time.Time { return now }
	triggers := &fakeTriggers{}
	engine := NewEngine(mem, logger, notifier, triggers, "https://app.example.com")
	engine.Clock = func() time.Time { return now }
	return engine, mem, triggers
}

func countRows(t *testing.T, mem *store.MemoryStore, table string, filters store.Filters) int64 {
	t.Helper()
	n, err := mem.Count(context.Background(), table, filters)
	if err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func mustGet(t *testing.T, mem *store.MemoryStore, table, id string) store.Row {
	t.Helper()
	row, err := mem.Get(context.Background(), table, id, "id")
	if err != nil {
		t.Fatalf("get %s/%s: %v", table, id, err)
	}
	return row
}
