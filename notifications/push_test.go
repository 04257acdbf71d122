package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/casaora/automation_backend/store"
)

func TestExpoPushBatchesByHundred(t *testing.T) {
	mem := store.NewMemoryStore()
	for i := 0; i < 130; i++ {
		mem.Seed("push_tokens", store.Row{
			"organization_id": "org-1",
			"user_id":         "user-1",
			"token":           fmt.Sprintf("ExponentPushToken[%03d]", i),
			"is_active":       true,
		})
	}
	mem.Seed("push_tokens", store.Row{
		"organization_id": "org-1", "user_id": "user-1",
		"token": "ExponentPushToken[dead]", "is_active": false,
	})

	var batchSizes []int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var batch []expoPushMessage
		if err := json.Unmarshal(raw, &batch); err != nil {
			t.Errorf("bad batch payload: %v", err)
		}
		batchSizes = append(batchSizes, len(batch))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	sender := NewExpoPushSender(mem, logger)
	sender.URL = server.URL
	sender.HTTPClient = &http.Client{Timeout: 2 * time.Second}

	sent := sender.SendPush(context.Background(), []string{"user-1"}, "Hola", "cuerpo", nil)
	if sent != 130 {
		t.Fatalf("sent = %d, want 130", sent)
	}
	if len(batchSizes) != 2 || batchSizes[0] != 100 || batchSizes[1] != 30 {
		t.Fatalf("batch sizes = %v, want [100 30]", batchSizes)
	}
}

func TestExpoPushSkipsWithoutTokens(t *testing.T) {
	mem := store.NewMemoryStore()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	sender := NewExpoPushSender(mem, logger)
	sender.URL = "http://127.0.0.1:1" // would fail if contacted

	if sent := sender.SendPush(context.Background(), []string{"user-none"}, "Hola", "cuerpo", nil); sent != 0 {
		t.Fatalf("sent = %d, want 0", sent)
	}
	if sent := sender.SendPush(context.Background(), nil, "Hola", "cuerpo", nil); sent != 0 {
		t.Fatalf("sent without recipients = %d, want 0", sent)
	}
}
