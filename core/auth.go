package core

import "time"

// Grant represents an authenticated session issued by the API server
type Grant struct {
	ID            string    // Unique grant identifier
	Subject       string    // Username the grant was issued to
	IssuedAt      time.Time // When the grant was created
	RefreshExpiry time.Time // When the refresh capability expires
	AccessExpiry  time.Time // When the access capability expires
	RefreshID     string    // Unique identifier for the refresh token
}
