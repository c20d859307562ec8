package domain

import "time"

// TokenKind is the scheme a token is presented with.
type TokenKind string

// TokenBearer is the only kind issued.
const TokenBearer TokenKind = "BEARER"

// Token is a refresh token recorded in the ledger.
type Token struct {
	ID        string    `json:"id"`
	Token     string    `json:"token"`
	Kind      TokenKind `json:"kind"`
	Revoked   bool      `json:"revoked"`
	Expired   bool      `json:"expired"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Valid reports whether neither flag has been set. It does not look at the
// token's own exp claim.
func (t *Token) Valid() bool {
	return !t.Revoked && !t.Expired
}

// Invalidate sets both flags.
func (t *Token) Invalidate() {
	t.Revoked = true
	t.Expired = true
}
