package model

import "time"

// Portal roles.
const (
	RoleCustomer = "customer"
	RoleClient   = "client"
	RoleGOL      = "gol"
)

type User struct {
	ID           string    `gorm:"primaryKey;size:36" json:"id"`
	Username     string    `gorm:"size:64;not null;uniqueIndex" json:"username"`
	Email        string    `gorm:"size:128;not null;uniqueIndex" json:"email"`
	Role         string    `gorm:"size:16;not null;index" json:"role"`
	PasswordHash string    `gorm:"size:255;not null" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ValidRole reports whether role is one of the portal roles.
func ValidRole(role string) bool {
	switch role {
	case RoleCustomer, RoleClient, RoleGOL:
		return true
	}
	return false
}
