package models

import "time"

// MessageLog is one outbound message. The engine appends queued rows only;
// the transport worker owns every later status transition. Payload always
// carries a reminder_type tag plus the source entity id, which the dunning
// dedup lookback matches on.
type MessageLog struct {
	Base
	Channel     string     `gorm:"size:32;index;not null" json:"channel"`
	Recipient   string     `gorm:"size:255;not null" json:"recipient"`
	Status      string     `gorm:"size:32;index;not null;default:queued" json:"status"`
	Direction   string     `gorm:"size:16;default:outbound" json:"direction"`
	Payload     JSONMap    `gorm:"type:json" json:"payload"`
	ScheduledAt *time.Time `json:"scheduled_at"`
	CreatedAt   time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
