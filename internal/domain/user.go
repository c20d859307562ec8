package domain

import "time"

// AuditableFields records who created and last changed a record. On
// creation both halves carry the creator.
type AuditableFields struct {
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedBy string    `json:"updated_by"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewAuditableFields stamps a record created by actor at at.
func NewAuditableFields(actor string, at time.Time) AuditableFields {
	return AuditableFields{CreatedBy: actor, CreatedAt: at, UpdatedBy: actor, UpdatedAt: at}
}

// Stamp sets the update half of the audit fields.
func (a *AuditableFields) Stamp(actor string, at time.Time) {
	a.UpdatedBy = actor
	a.UpdatedAt = at
}

// User is a principal that can log in.
type User struct {
	ID           string      `json:"id"`
	Username     string      `json:"username"`
	Email        string      `json:"email"`
	Telephone    string      `json:"telephone"`
	Name         string      `json:"name"`
	PasswordHash string      `json:"-"`
	Role         Role        `json:"role"`
	AccountType  AccountType `json:"account_type"`
	AuditableFields
}

// TokenPair holds an access and refresh token pair.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}
