package models

import "time"

// Task is an operational work item. SlaBreachedAt is set once by the SLA
// breach scan and never cleared or overwritten afterwards.
type Task struct {
	Base
	Title          string     `gorm:"size:255" json:"title"`
	Status         string     `gorm:"size:32;index;not null;default:todo" json:"status"`
	Priority       string     `gorm:"size:32" json:"priority"`
	PropertyId     string     `gorm:"type:char(36);index" json:"property_id"`
	UnitId         string     `gorm:"type:char(36);index" json:"unit_id"`
	AssignedUserId string     `gorm:"type:char(36);index" json:"assigned_user_id"`
	DueAt          *time.Time `json:"due_at"`
	SlaDueAt       *time.Time `gorm:"index" json:"sla_due_at"`
	SlaBreachedAt  *time.Time `json:"sla_breached_at"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

type AnomalyAlert struct {
	Base
	AlertType    string    `gorm:"size:64;index;not null" json:"alert_type"`
	Severity     string    `gorm:"size:32;not null;default:warning" json:"severity"`
	Title        string    `gorm:"size:255" json:"title"`
	Description  string    `gorm:"type:text" json:"description"`
	RelatedTable string    `gorm:"size:64" json:"related_table"`
	RelatedId    string    `gorm:"type:char(36)" json:"related_id"`
	DetectedAt   time.Time `gorm:"index;not null" json:"detected_at"`
	IsDismissed  bool      `gorm:"index;default:false" json:"is_dismissed"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

type ApplicationSubmission struct {
	Base
	Status          string     `gorm:"size:32;index;not null;default:new" json:"status"`
	ApplicantName   string     `gorm:"size:255" json:"applicant_name"`
	FirstResponseAt *time.Time `json:"first_response_at"`
	CreatedAt       time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
