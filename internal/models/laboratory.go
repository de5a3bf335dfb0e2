package models

import "time"

type Laboratory struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"size:255;not null" json:"name"`
	Code        string    `gorm:"size:64;index" json:"code"`
	Description string    `gorm:"type:text" json:"description"`
	Status      string    `gorm:"size:32;not null" json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
