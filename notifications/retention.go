package notifications

import (
	"context"

	"github.com/casaora/automation_backend/store"
	"github.com/casaora/automation_backend/utils"
)

// RetentionResult reports what a purge pass removed.
type RetentionResult struct {
	UserNotificationsDeleted  int64
	NotificationEventsDeleted int64
}

// PurgeExpired deletes delivery rows older than the retention window, then
// events older than the window that no longer have any delivery pointing at
// them. Events still referenced by a younger delivery survive.
func (c *Center) PurgeExpired(ctx context.Context, retentionDays int) (RetentionResult, error) {
	if retentionDays < 1 {
		retentionDays = 1
	}
	if retentionDays > 3650 {
		retentionDays = 3650
	}
	cutoff := c.Clock().AddDate(0, 0, -retentionDays)

	var result RetentionResult
	for {
		expired, err := c.Store.List(ctx, "user_notifications", store.Filters{
			"created_at__lt": cutoff,
		}, store.ListOptions{Limit: 500})
		if err != nil {
			return result, err
		}
		if len(expired) == 0 {
			break
		}
		for _, delivery := range expired {
			if _, err := c.Store.Delete(ctx, "user_notifications", utils.RowString(delivery, "id"), "id"); err != nil {
				return result, err
			}
			result.UserNotificationsDeleted++
		}
	}

	offset := 0
	for {
		events, err := c.Store.List(ctx, "notification_events", store.Filters{
			"created_at__lt": cutoff,
		}, store.ListOptions{Limit: 500, Offset: offset})
		if err != nil {
			return result, err
		}
		if len(events) == 0 {
			break
		}
		for _, event := range events {
			eventId := utils.RowString(event, "id")
			remaining, err := c.Store.Count(ctx, "user_notifications", store.Filters{"event_id": eventId})
			if err != nil {
				return result, err
			}
			if remaining > 0 {
				// Keep the event; a recent delivery still references it.
				offset++
				continue
			}
			if _, err := c.Store.Delete(ctx, "notification_events", eventId, "id"); err != nil {
				return result, err
			}
			result.NotificationEventsDeleted++
		}
	}
	return result, nil
}
