package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OwnerStatement summarizes one property's income and expenses for a
// calendar-month period. Generated on the 1st for the previous month; the
// (property, period) pair is generated at most once.
type OwnerStatement struct {
	Base
	PropertyId    string          `gorm:"type:char(36);index;not null" json:"property_id"`
	PeriodStart   time.Time       `gorm:"type:date;index;not null" json:"period_start"`
	PeriodEnd     time.Time       `gorm:"type:date;not null" json:"period_end"`
	Status        string          `gorm:"size:32;not null;default:draft" json:"status"`
	TotalIncome   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_income"`
	TotalExpenses decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_expenses"`
	NetAmount     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"net_amount"`
	Currency      string          `gorm:"size:8" json:"currency"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// Reservation, Expense and EscrowEvent are read-only inputs for the anomaly
// heuristics and the owner-statement breakdown.
type Reservation struct {
	Base
	Status      string          `gorm:"size:32;index" json:"status"`
	CheckInDate *time.Time      `gorm:"type:date;index" json:"check_in_date"`
	TotalAmount decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_amount"`
	CreatedAt   time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
}

type Expense struct {
	Base
	PropertyId string          `gorm:"type:char(36);index" json:"property_id"`
	Category   string          `gorm:"size:64;index" json:"category"`
	Amount     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
	Currency   string          `gorm:"size:8" json:"currency"`
	OccurredOn *time.Time      `gorm:"type:date;index" json:"occurred_on"`
	CreatedAt  time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
}

type EscrowEvent struct {
	Base
	Status    string          `gorm:"size:32;index" json:"status"`
	Amount    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
	CreatedAt time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
}
