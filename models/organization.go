package models

import "time"

type Organization struct {
	ID        string    `gorm:"type:char(36);primaryKey" json:"id"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	IsActive  bool      `gorm:"index;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type OrganizationMember struct {
	Base
	UserId    string    `gorm:"type:char(36);index;not null" json:"user_id"`
	Role      string    `gorm:"size:32;index;not null" json:"role"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

type AppUser struct {
	ID        string    `gorm:"type:char(36);primaryKey" json:"id"`
	FullName  string    `gorm:"size:255" json:"full_name"`
	Email     string    `gorm:"size:255;index" json:"email"`
	PhoneE164 string    `gorm:"size:32" json:"phone_e164"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
