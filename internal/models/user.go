package models

import "time"

// User represents an account that owns listings.
// Users are created at signup and never updated or deleted afterwards.
type User struct {
	ID           string    `json:"id" gorm:"primaryKey;type:varchar(36)" validate:"omitempty,uuid"`
	Username     string    `json:"username" gorm:"uniqueIndex;type:varchar(100)" validate:"required,min=3,max=100"`
	PasswordHash string    `json:"-" gorm:"type:varchar(255)"` // bcrypt hash, never serialized
	CreatedAt    time.Time `json:"created_at"`
}
