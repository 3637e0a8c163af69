package models

import "time"

// Challenge is a single-use, time-limited payment authorization code issued
// to one participant of one order.
//
// At most one live challenge exists per (order, participant): issuing a new
// one overwrites the prior unused one. A challenge validates successfully at
// most once.
type Challenge struct {
	// OrderID and UserID scope the challenge to one participant of one order.
	OrderID string
	UserID  string

	// Code is the 6-digit numeric code, uniformly random. Uniqueness is only
	// required per active challenge, not globally.
	Code string

	// IssuedAt is when the challenge was created.
	IssuedAt time.Time

	// ExpiresAt is IssuedAt plus the configured TTL. A challenge past this
	// instant never validates, even against the correct code.
	ExpiresAt time.Time
}

// Expired reports whether the challenge is past its expiry at the given instant.
func (c Challenge) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}
