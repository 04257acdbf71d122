package notifications

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/casaora/automation_backend/config"
	"github.com/casaora/automation_backend/models"
	"github.com/casaora/automation_backend/store"
	"github.com/casaora/automation_backend/utils"
)

// DefaultRecipientRoles receive org-wide notifications when the event payload
// does not name explicit recipients.
var DefaultRecipientRoles = []string{models.RoleOwnerAdmin, models.RoleOperator}

// EmitEventInput describes one notification event. OrganizationId, EventType,
// Category and Severity are required; a blank one makes EmitEvent a no-op.
type EmitEventInput struct {
	OrganizationId string
	EventType      string
	Category       string
	Severity       string
	Title          string
	Body           string
	LinkPath       string
	SourceTable    string
	SourceId       string
	ActorUserId    string
	Payload        map[string]any
	DedupeKey      string
	OccurredAt     string
	FallbackRoles  []string
}

// Center creates notification events and fans them out to per-user inbox
// rows. Push delivery is optional and best effort.
type Center struct {
	Store  store.TableAPI
	Logger *logrus.Logger
	Push   PushSender
	Clock  func() time.Time
}

func NewCenter(s store.TableAPI, logger *logrus.Logger, push PushSender) *Center {
	return &Center{
		Store:  s,
		Logger: logger,
		Push:   push,
		Clock:  func() time.Time { return time.Now().UTC() },
	}
}

// EmitEvent records an event and one delivery row per resolved recipient.
// A dedupe key makes the operation idempotent: a second call with the same
// key reuses the stored event instead of inserting a duplicate.
func (c *Center) EmitEvent(ctx context.Context, input EmitEventInput) (store.Row, error) {
	organizationId := strings.TrimSpace(input.OrganizationId)
	eventType := strings.TrimSpace(input.EventType)
	category := strings.TrimSpace(input.Category)
	severity := strings.TrimSpace(input.Severity)
	if organizationId == "" || eventType == "" || category == "" || severity == "" {
		return nil, nil
	}

	fallbackRoles := make([]string, 0, len(input.FallbackRoles))
	for _, role := range input.FallbackRoles {
		if trimmed := strings.TrimSpace(role); trimmed != "" {
			fallbackRoles = append(fallbackRoles, trimmed)
		}
	}
	if len(fallbackRoles) == 0 {
		fallbackRoles = DefaultRecipientRoles
	}

	dedupeKey := strings.TrimSpace(input.DedupeKey)

	var event store.Row
	var err error
	if dedupeKey != "" {
		event, err = c.findEventByDedupeKey(ctx, dedupeKey)
		if err != nil {
			return nil, err
		}
	}
	if event == nil {
		event, err = c.insertEventRow(ctx, organizationId, eventType, category, severity, dedupeKey, input)
		if err != nil {
			return nil, err
		}
	}

	eventId := utils.RowString(event, "id")
	if eventId == "" {
		return event, nil
	}

	recipients, err := c.resolveRecipients(ctx, organizationId, input.Payload, fallbackRoles)
	if err != nil {
		return nil, err
	}
	delivered := make([]string, 0, len(recipients))
	for _, recipientUserId := range recipients {
		_, err := c.Store.Create(ctx, "user_notifications", store.Row{
			"organization_id":   organizationId,
			"event_id":          eventId,
			"recipient_user_id": recipientUserId,
		})
		if errors.Is(err, store.ErrConflict) {
			continue
		}
		if err != nil {
			config.LogError(c.Logger, "notifications", "EmitEvent", "insert delivery row", map[string]interface{}{
				"event_id":          eventId,
				"recipient_user_id": recipientUserId,
			}, err)
			continue
		}
		delivered = append(delivered, recipientUserId)
	}

	if c.Push != nil && len(delivered) > 0 {
		c.Push.SendPush(ctx, delivered, strings.TrimSpace(input.Title), strings.TrimSpace(input.Body), input.Payload)
	}
	return event, nil
}

func (c *Center) insertEventRow(ctx context.Context, organizationId, eventType, category, severity, dedupeKey string, input EmitEventInput) (store.Row, error) {
	record := store.Row{
		"organization_id": organizationId,
		"event_type":      eventType,
		"category":        category,
		"severity":        severity,
		"title":           strings.TrimSpace(input.Title),
		"body":            strings.TrimSpace(input.Body),
	}
	setIfPresent(record, "link_path", input.LinkPath)
	setIfPresent(record, "source_table", input.SourceTable)
	setIfPresent(record, "source_id", input.SourceId)
	setIfPresent(record, "actor_user_id", input.ActorUserId)
	setIfPresent(record, "dedupe_key", dedupeKey)

	payload := input.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	record["payload"] = payload

	occurredAt := strings.TrimSpace(input.OccurredAt)
	if occurredAt == "" {
		occurredAt = c.Clock().Format(time.RFC3339)
	}
	record["occurred_at"] = occurredAt

	created, err := c.Store.Create(ctx, "notification_events", record)
	if errors.Is(err, store.ErrConflict) {
		// A concurrent emitter with the same dedupe key won the insert.
		if dedupeKey != "" {
			existing, lookupErr := c.findEventByDedupeKey(ctx, dedupeKey)
			if lookupErr != nil {
				return nil, lookupErr
			}
			if existing != nil {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("duplicate notification event rejected by dedupe key %q", dedupeKey)
	}
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (c *Center) findEventByDedupeKey(ctx context.Context, dedupeKey string) (store.Row, error) {
	rows, err := c.Store.List(ctx, "notification_events", store.Filters{"dedupe_key": dedupeKey}, store.ListOptions{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// resolveRecipients prefers recipients named in the payload and falls back to
// every org member holding one of the fallback roles.
func (c *Center) resolveRecipients(ctx context.Context, organizationId string, payload map[string]any, fallbackRoles []string) ([]string, error) {
	seen := map[string]bool{}

	for _, key := range []string{"assigned_user_id", "recipient_user_id"} {
		if userId, ok := payload[key].(string); ok {
			if trimmed := strings.TrimSpace(userId); trimmed != "" {
				seen[trimmed] = true
			}
		}
	}
	for _, key := range []string{"assigned_user_ids", "recipient_user_ids"} {
		items, ok := payload[key].([]any)
		if !ok {
			if typed, isStrings := payload[key].([]string); isStrings {
				for _, userId := range typed {
					items = append(items, userId)
				}
			}
		}
		for _, item := range items {
			if userId, ok := item.(string); ok {
				if trimmed := strings.TrimSpace(userId); trimmed != "" {
					seen[trimmed] = true
				}
			}
		}
	}

	if len(seen) == 0 {
		members, err := c.Store.List(ctx, "organization_members", store.Filters{
			"organization_id": organizationId,
			"role":            fallbackRoles,
		}, store.ListOptions{Limit: 500, OrderBy: "created_at", Ascending: true})
		if err != nil {
			return nil, err
		}
		for _, member := range members {
			if userId := utils.RowString(member, "user_id"); userId != "" {
				seen[userId] = true
			}
		}
	}

	recipients := make([]string, 0, len(seen))
	for userId := range seen {
		recipients = append(recipients, userId)
	}
	sort.Strings(recipients)
	return recipients, nil
}

func setIfPresent(record store.Row, column, value string) {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		record[column] = trimmed
	}
}
