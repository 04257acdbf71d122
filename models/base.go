package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// JSONMap is a free-form JSON object column (MessageLog.Payload,
// NotificationEvent.Payload).
type JSONMap map[string]any

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func (m *JSONMap) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return errors.New("unsupported type for JSONMap")
	}
	return json.Unmarshal(raw, m)
}

// Base carries the UUID primary key and tenant scoping shared by every
// engine entity.
type Base struct {
	ID             string `gorm:"type:char(36);primaryKey" json:"id"`
	OrganizationId string `gorm:"type:char(36);index;not null" json:"organization_id"`
}

func (b *Base) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return nil
}
