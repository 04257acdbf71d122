package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/casaora/automation_backend/config"
	"github.com/casaora/automation_backend/store"
	"github.com/casaora/automation_backend/utils"
)

const (
	expoPushURL   = "https://exp.host/--/api/v2/push/send"
	expoBatchSize = 100
)

// PushSender delivers a push notification to the given users. Returns the
// number of device tokens a message was accepted for.
type PushSender interface {
	SendPush(ctx context.Context, userIds []string, title, body string, data map[string]any) int
}

// ExpoPushSender sends through the Expo push gateway. Failures are logged,
// never propagated; push is a best-effort channel.
type ExpoPushSender struct {
	Store      store.TableAPI
	Logger     *logrus.Logger
	HTTPClient *http.Client
	URL        string
}

func NewExpoPushSender(s store.TableAPI, logger *logrus.Logger) *ExpoPushSender {
	return &ExpoPushSender{
		Store:      s,
		Logger:     logger,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
		URL:        expoPushURL,
	}
}

type expoPushMessage struct {
	To    string         `json:"to"`
	Title string         `json:"title"`
	Body  string         `json:"body"`
	Sound string         `json:"sound"`
	Data  map[string]any `json:"data,omitempty"`
}

func (p *ExpoPushSender) SendPush(ctx context.Context, userIds []string, title, body string, data map[string]any) int {
	if len(userIds) == 0 || title == "" {
		return 0
	}

	tokenRows, err := p.Store.List(ctx, "push_tokens", store.Filters{
		"user_id":   userIds,
		"is_active": true,
	}, store.ListOptions{Limit: 1000})
	if err != nil {
		config.LogError(p.Logger, "notifications", "SendPush", "list push tokens", map[string]interface{}{
			"user_count": len(userIds),
		}, err)
		return 0
	}

	messages := make([]expoPushMessage, 0, len(tokenRows))
	for _, row := range tokenRows {
		token := utils.RowString(row, "token")
		if token == "" {
			continue
		}
		messages = append(messages, expoPushMessage{
			To:    token,
			Title: title,
			Body:  body,
			Sound: "default",
			Data:  data,
		})
	}
	if len(messages) == 0 {
		return 0
	}

	sent := 0
	for start := 0; start < len(messages); start += expoBatchSize {
		end := start + expoBatchSize
		if end > len(messages) {
			end = len(messages)
		}
		if p.postBatch(ctx, messages[start:end]) {
			sent += end - start
		}
	}
	return sent
}

func (p *ExpoPushSender) postBatch(ctx context.Context, batch []expoPushMessage) bool {
	payload, err := json.Marshal(batch)
	if err != nil {
		config.LogError(p.Logger, "notifications", "postBatch", "marshal expo batch", nil, err)
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.URL, bytes.NewReader(payload))
	if err != nil {
		config.LogError(p.Logger, "notifications", "postBatch", "build expo request", nil, err)
		return false
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		config.LogError(p.Logger, "notifications", "postBatch", "send expo batch", map[string]interface{}{
			"batch_size": len(batch),
		}, err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		p.Logger.WithFields(logrus.Fields{
			"status":     resp.StatusCode,
			"batch_size": len(batch),
		}).Warn("expo push API returned non-success status")
		return false
	}
	return true
}
