package notifications

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/casaora/automation_backend/store"
	"github.com/casaora/automation_backend/utils"
)

// InboxItem is one delivered notification joined with its event.
type InboxItem struct {
	Id             string         `json:"id"`
	EventId        string         `json:"event_id"`
	EventType      string         `json:"event_type"`
	Category       string         `json:"category"`
	Severity       string         `json:"severity"`
	Title          string         `json:"title"`
	Body           string         `json:"body"`
	LinkPath       string         `json:"link_path,omitempty"`
	SourceTable    string         `json:"source_table,omitempty"`
	SourceId       string         `json:"source_id,omitempty"`
	Payload        map[string]any `json:"payload"`
	ReadAt         string         `json:"read_at,omitempty"`
	CreatedAt      string         `json:"created_at,omitempty"`
	OccurredAt     string         `json:"occurred_at,omitempty"`
	EventCreatedAt string         `json:"event_created_at,omitempty"`
}

// InboxPage carries one page of inbox items; NextCursor is the created_at of
// the last item, fed back in to fetch the next page.
type InboxPage struct {
	Data       []InboxItem `json:"data"`
	NextCursor string      `json:"next_cursor,omitempty"`
}

// ListForUser pages a user's inbox newest-first. Status narrows to
// read/unread; "all" and unknown values mean no filter.
func (c *Center) ListForUser(ctx context.Context, organizationId, userId, status, category, cursor string, limit int) (InboxPage, error) {
	filters := store.Filters{
		"organization_id":   organizationId,
		"recipient_user_id": userId,
	}
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "read":
		filters["read_at__is_null"] = false
	case "unread":
		filters["read_at__is_null"] = true
	}
	if cursorTime, err := time.Parse(time.RFC3339, strings.TrimSpace(cursor)); err == nil {
		filters["created_at__lt"] = cursorTime.UTC()
	}

	if limit < 1 {
		limit = 1
	}
	if limit > 100 {
		limit = 100
	}
	deliveries, err := c.Store.List(ctx, "user_notifications", filters, store.ListOptions{
		Limit:   limit,
		OrderBy: "created_at",
	})
	if err != nil {
		return InboxPage{}, err
	}

	categoryFilter := strings.TrimSpace(category)
	page := InboxPage{Data: []InboxItem{}}
	for _, delivery := range deliveries {
		event, err := c.Store.Get(ctx, "notification_events", utils.RowString(delivery, "event_id"), "id")
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return InboxPage{}, err
		}
		if categoryFilter != "" && utils.RowString(event, "category") != categoryFilter {
			continue
		}

		severity := utils.RowString(event, "severity")
		if severity == "" {
			severity = "info"
		}
		page.Data = append(page.Data, InboxItem{
			Id:             utils.RowString(delivery, "id"),
			EventId:        utils.RowString(event, "id"),
			EventType:      utils.RowString(event, "event_type"),
			Category:       utils.RowString(event, "category"),
			Severity:       severity,
			Title:          utils.RowString(event, "title"),
			Body:           utils.RowString(event, "body"),
			LinkPath:       utils.RowString(event, "link_path"),
			SourceTable:    utils.RowString(event, "source_table"),
			SourceId:       utils.RowString(event, "source_id"),
			Payload:        utils.RowMap(event, "payload"),
			ReadAt:         timeString(delivery, "read_at"),
			CreatedAt:      timeString(delivery, "created_at"),
			OccurredAt:     timeString(event, "occurred_at"),
			EventCreatedAt: timeString(event, "created_at"),
		})
	}

	if len(deliveries) > 0 {
		page.NextCursor = timeString(deliveries[len(deliveries)-1], "created_at")
	}
	return page, nil
}

// UnreadCount counts undelivered-to-eyes notifications for badge display.
func (c *Center) UnreadCount(ctx context.Context, organizationId, userId string) (int64, error) {
	return c.Store.Count(ctx, "user_notifications", store.Filters{
		"organization_id":   organizationId,
		"recipient_user_id": userId,
		"read_at__is_null":  true,
	})
}

// MarkRead stamps read_at once; an already-read notification keeps its
// original timestamp.
func (c *Center) MarkRead(ctx context.Context, organizationId, userId, notificationId string) (store.Row, error) {
	delivery, err := c.Store.Get(ctx, "user_notifications", notificationId, "id")
	if err != nil {
		return nil, err
	}
	if utils.RowString(delivery, "organization_id") != organizationId ||
		utils.RowString(delivery, "recipient_user_id") != userId {
		return nil, fmt.Errorf("user_notifications: %w", store.ErrNotFound)
	}
	if timeString(delivery, "read_at") != "" {
		return delivery, nil
	}
	return c.Store.Update(ctx, "user_notifications", notificationId, store.Row{
		"read_at": c.Clock(),
	}, "id")
}

// MarkAllRead stamps every unread notification for the user and reports how
// many it touched.
func (c *Center) MarkAllRead(ctx context.Context, organizationId, userId string) (int64, error) {
	var total int64
	now := c.Clock()
	for {
		unread, err := c.Store.List(ctx, "user_notifications", store.Filters{
			"organization_id":   organizationId,
			"recipient_user_id": userId,
			"read_at__is_null":  true,
		}, store.ListOptions{Limit: 500})
		if err != nil {
			return total, err
		}
		if len(unread) == 0 {
			return total, nil
		}
		for _, delivery := range unread {
			_, err := c.Store.Update(ctx, "user_notifications", utils.RowString(delivery, "id"), store.Row{
				"read_at": now,
			}, "id")
			if err != nil {
				return total, err
			}
			total++
		}
	}
}

// UpsertPushToken registers or refreshes a device token; re-registering a
// deactivated token reactivates it.
func (c *Center) UpsertPushToken(ctx context.Context, organizationId, userId, token, platform, deviceId string) (store.Row, error) {
	existing, err := c.Store.List(ctx, "push_tokens", store.Filters{
		"user_id": userId,
		"token":   token,
	}, store.ListOptions{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return c.Store.Update(ctx, "push_tokens", utils.RowString(existing[0], "id"), store.Row{
			"is_active": true,
			"platform":  platform,
			"device_id": deviceId,
		}, "id")
	}

	created, err := c.Store.Create(ctx, "push_tokens", store.Row{
		"organization_id": organizationId,
		"user_id":         userId,
		"token":           token,
		"platform":        platform,
		"device_id":       deviceId,
		"is_active":       true,
	})
	if errors.Is(err, store.ErrConflict) {
		// Lost a race with another registration of the same device.
		rows, lookupErr := c.Store.List(ctx, "push_tokens", store.Filters{
			"user_id": userId,
			"token":   token,
		}, store.ListOptions{Limit: 1})
		if lookupErr != nil {
			return nil, lookupErr
		}
		if len(rows) > 0 {
			return c.Store.Update(ctx, "push_tokens", utils.RowString(rows[0], "id"), store.Row{
				"is_active": true,
				"platform":  platform,
				"device_id": deviceId,
			}, "id")
		}
	}
	return created, err
}

// DeactivatePushToken stops delivery to a device, typically on logout.
func (c *Center) DeactivatePushToken(ctx context.Context, userId, token string) error {
	rows, err := c.Store.List(ctx, "push_tokens", store.Filters{
		"user_id": userId,
		"token":   token,
	}, store.ListOptions{Limit: 1})
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	_, err = c.Store.Update(ctx, "push_tokens", utils.RowString(rows[0], "id"), store.Row{
		"is_active": false,
	}, "id")
	return err
}

func timeString(row store.Row, key string) string {
	if t, ok := utils.RowTime(row, key); ok {
		return t.Format(time.RFC3339)
	}
	return ""
}
