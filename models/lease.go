package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Lease ties a tenant to a unit. lease_status is recomputed by the dunning
// cycle from overdue collections; renewal_status belongs to the renewal cycle
// and the explicit send-offer action.
type Lease struct {
	Base
	PropertyId         string           `gorm:"type:char(36);index" json:"property_id"`
	UnitId             string           `gorm:"type:char(36);index" json:"unit_id"`
	LeaseStatus        string           `gorm:"size:32;index;not null;default:draft" json:"lease_status"`
	RenewalStatus      string           `gorm:"size:32;index" json:"renewal_status"`
	StartsOn           *time.Time       `gorm:"type:date" json:"starts_on"`
	EndsOn             *time.Time       `gorm:"type:date;index" json:"ends_on"`
	TenantFullName     string           `gorm:"size:255" json:"tenant_full_name"`
	TenantPhoneE164    string           `gorm:"size:32" json:"tenant_phone_e164"`
	TenantEmail        string           `gorm:"size:255" json:"tenant_email"`
	MonthlyRent        decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"monthly_rent"`
	Currency           string           `gorm:"size:8" json:"currency"`
	RenewalOfferedAt   *time.Time       `json:"renewal_offered_at"`
	RenewalOfferedRent *decimal.Decimal `gorm:"type:decimal(20,4)" json:"renewal_offered_rent"`
	RenewalNotes       string           `gorm:"type:text" json:"renewal_notes"`
	CreatedAt          time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

type Property struct {
	Base
	Name         string    `gorm:"size:255" json:"name"`
	AssetOwnerId string    `gorm:"type:char(36);index" json:"asset_owner_id"`
	IsActive     bool      `gorm:"index;default:true" json:"is_active"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
