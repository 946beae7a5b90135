package models

import "time"

const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"

	ProviderLocal = "local"
)

type User struct {
	ID           string    `json:"user_id" gorm:"primaryKey;type:varchar(36)"`
	Username     string    `json:"username" gorm:"uniqueIndex;not null"`
	Email        string    `json:"email" gorm:"uniqueIndex;not null"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role,omitempty"`
	Provider     string    `json:"provider,omitempty"`
	ProviderID   string    `json:"-"`
	FirstName    string    `json:"first_name,omitempty"`
	LastName     string    `json:"last_name,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
