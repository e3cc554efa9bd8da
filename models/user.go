package models

import "time"

type User struct {
	ID        int       `gorm:"primary_key" json:"id"`
	CompanyId string    `gorm:"index;size:36" json:"company_id"`
	Username  string    `gorm:"size:100;not null;unique" json:"username" binding:"required"`
	Name      string    `gorm:"size:100;not null" json:"name" binding:"required"`
	Email     *string   `gorm:"size:100;unique" json:"email"`
	Password  string    `gorm:"size:255;not null" json:"password"`
	IsActive  *bool     `gorm:"not null" json:"is_active"`
	Role      UserRole  `gorm:"type:enum('A', 'O', 'C');default:C" json:"role"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
