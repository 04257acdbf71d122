package models

import "time"

// NotificationEvent is one logical in-app notification. DedupeKey, when
// present, is globally unique: emitting the same key twice reuses the stored
// event and its fan-out instead of inserting a duplicate.
type NotificationEvent struct {
	Base
	EventType   string    `gorm:"size:64;index;not null" json:"event_type"`
	Category    string    `gorm:"size:64;index;not null" json:"category"`
	Severity    string    `gorm:"size:32;not null;default:info" json:"severity"`
	Title       string    `gorm:"size:255" json:"title"`
	Body        string    `gorm:"type:text" json:"body"`
	LinkPath    string    `gorm:"size:512" json:"link_path"`
	SourceTable string    `gorm:"size:64" json:"source_table"`
	SourceId    string    `gorm:"type:char(36)" json:"source_id"`
	ActorUserId string    `gorm:"type:char(36)" json:"actor_user_id"`
	Payload     JSONMap   `gorm:"type:json" json:"payload"`
	DedupeKey   *string   `gorm:"size:255;uniqueIndex" json:"dedupe_key"`
	OccurredAt  time.Time `json:"occurred_at"`
	CreatedAt   time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

// UserNotification is one recipient's inbox entry for an event. The
// (event_id, recipient_user_id) pair is unique; re-emits hit the constraint
// and are ignored.
type UserNotification struct {
	Base
	EventId         string     `gorm:"type:char(36);index;not null;uniqueIndex:idx_event_recipient" json:"event_id"`
	RecipientUserId string     `gorm:"type:char(36);index;not null;uniqueIndex:idx_event_recipient" json:"recipient_user_id"`
	ReadAt          *time.Time `json:"read_at"`
	CreatedAt       time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
}

type PushToken struct {
	Base
	UserId    string    `gorm:"type:char(36);index;not null;uniqueIndex:idx_user_token" json:"user_id"`
	Token     string    `gorm:"size:255;not null;uniqueIndex:idx_user_token" json:"token"`
	Platform  string    `gorm:"size:16" json:"platform"`
	DeviceId  string    `gorm:"size:128" json:"device_id"`
	IsActive  bool      `gorm:"index;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
