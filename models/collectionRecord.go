package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CollectionRecord is one expected rent payment on a lease's billing schedule.
// Created when the schedule is materialized; from then on the dunning cycle
// drives status forward and the reconciliation classifier accumulates
// amount_paid. Never deleted by the engine.
type CollectionRecord struct {
	Base
	LeaseId          string          `gorm:"type:char(36);index;not null" json:"lease_id"`
	Status           string          `gorm:"size:32;index;not null;default:scheduled" json:"status"`
	DueDate          time.Time       `gorm:"type:date;index;not null" json:"due_date"`
	Amount           decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
	AmountPaid       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount_paid"`
	Currency         string          `gorm:"size:8;not null" json:"currency"`
	PaymentMethod    string          `gorm:"size:64" json:"payment_method"`
	PaymentReference string          `gorm:"size:255" json:"payment_reference"`
	PaidAt           *time.Time      `json:"paid_at"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type PaymentInstruction struct {
	Base
	CollectionRecordId string          `gorm:"type:char(36);index" json:"collection_record_id"`
	Status             string          `gorm:"size:32;index;not null;default:active" json:"status"`
	ReferenceCode      string          `gorm:"size:64;index" json:"reference_code"`
	TenantPhoneE164    string          `gorm:"size:32" json:"tenant_phone_e164"`
	Amount             decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
	Currency           string          `gorm:"size:8" json:"currency"`
	ExpiresAt          *time.Time      `gorm:"index" json:"expires_at"`
	CreatedAt          time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}
