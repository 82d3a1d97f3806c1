// Package settings stores per-tenant configuration in a key/value
// table, most importantly the default prices used by the credit and
// appointment services.
package settings

import "time"

// Setting is a single configuration entry. Values are stored as text
// and interpreted by the consumer.
type Setting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Configuration keys for default prices. Values are euro amounts
// ("35" or "35.50"), converted to cents when read.
const (
	KeySessionPrice30 = "sessionPrice30"
	KeySessionPrice60 = "sessionPrice60"
	KeyBonoPrice30    = "bonoPrice30"
	KeyBonoPrice60    = "bonoPrice60"
)

// Fallbacks applied when a tenant has not configured a price key.
const (
	DefaultSessionPrice30Cents = 3500
	DefaultSessionPrice60Cents = 6500
	DefaultBonoPrice30Cents    = 15500
	DefaultBonoPrice60Cents    = 29000
)

// Prices is a snapshot of the four price defaults, in cents.
type Prices struct {
	Session30Cents int `json:"session30Cents"`
	Session60Cents int `json:"session60Cents"`
	Bono30Cents    int `json:"bono30Cents"`
	Bono60Cents    int `json:"bono60Cents"`
}

// SessionCents returns the default price of a single session of the
// given duration.
func (p Prices) SessionCents(minutes int) int {
	if minutes >= 60 {
		return p.Session60Cents
	}
	return p.Session30Cents
}

// BonoCents returns the default price of a multi-session pack of the
// given unit duration.
func (p Prices) BonoCents(minutes int) int {
	if minutes >= 60 {
		return p.Bono60Cents
	}
	return p.Bono30Cents
}
