package models

import "github.com/google/uuid"

// User represents a management API user
type User struct {
	BaseModel

	TenantID *uuid.UUID `json:"tenantId,omitempty" db:"tenant_id"`

	Email        string `json:"email" db:"email"`
	Name         string `json:"name" db:"name"`
	PasswordHash string `json:"-" db:"password_hash"`
	IsAdmin      bool   `json:"isAdmin" db:"is_admin"`
	IsActive     bool   `json:"isActive" db:"is_active"`
}
