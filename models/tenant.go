package models

import "time"

// TenantStatus mirrors the status column of the tenant catalog.
type TenantStatus string

const (
	TenantStatusActive    TenantStatus = "active"
	TenantStatusSuspended TenantStatus = "suspended"
	TenantStatusPending   TenantStatus = "pending"
)

// Tenant is one organization sharing the deployment. DBName is the unique
// identifier of its isolated data store.
type Tenant struct {
	ID        string       `json:"id" db:"id"`
	Slug      string       `json:"slug" db:"slug"`
	DBName    string       `json:"-" db:"db_name"`
	Status    TenantStatus `json:"status" db:"status"`
	CreatedAt time.Time    `json:"created_at" db:"created_at"`
}

func (t *Tenant) IsActive() bool {
	return t != nil && t.Status == TenantStatusActive
}

func IsValidTenantStatus(s TenantStatus) bool {
	switch s {
	case TenantStatusActive, TenantStatusSuspended, TenantStatusPending:
		return true
	}
	return false
}
