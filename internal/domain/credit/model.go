// Package credit implements the pack ledger: prepaid credit packs,
// their redemptions against appointments, and the payment-status
// broadcast that keeps loaded views coherent.
package credit

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// Pack kinds accepted on creation. A sesion is a single visit's worth
// of units, a bono is a discounted multi-visit bundle.
const (
	KindSesion = "sesion"
	KindBono   = "bono"
)

// CreditPack is a prepaid bundle of 30-minute units. unit_minutes
// records the session length the pack was sold for; a 60-minute pack
// holds two units per session.
type CreditPack struct {
	ID             uuid.UUID `json:"id"`
	PatientID      uuid.UUID `json:"patientId"`
	Label          string    `json:"label"`
	UnitsTotal     int       `json:"unitsTotal"`
	UnitsRemaining int       `json:"unitsRemaining"`
	UnitMinutes    int       `json:"unitMinutes"`
	PriceCents     int       `json:"priceCents"`
	Paid           bool      `json:"paid"`
	Notes          *string   `json:"notes,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// UnitPriceCents is the pack price spread evenly over its units,
// rounded to the nearest cent. Packs with zero total units price at
// zero rather than dividing by zero.
func (p *CreditPack) UnitPriceCents() int {
	if p.UnitsTotal == 0 {
		return 0
	}
	return int(math.Round(float64(p.PriceCents) / float64(p.UnitsTotal)))
}

// DerivedLabel names the pack from its shape when no explicit label
// was stored. One or two units is a single session; anything larger is
// a bono counted in sessions, so a 60-minute bono halves its units.
func (p *CreditPack) DerivedLabel() string {
	if p.Label != "" {
		return p.Label
	}
	if p.UnitsTotal >= 1 && p.UnitsTotal <= 2 {
		return fmt.Sprintf("Sesión %dm", p.UnitMinutes)
	}
	sessions := p.UnitsTotal
	if p.UnitMinutes == 60 {
		sessions = int(math.Round(float64(p.UnitsTotal) / 2))
	}
	return fmt.Sprintf("Bono %d×%dm", sessions, p.UnitMinutes)
}

// CreditRedemption records units drawn from a pack for an appointment.
type CreditRedemption struct {
	ID            uuid.UUID `json:"id"`
	CreditPackID  uuid.UUID `json:"creditPackId"`
	AppointmentID uuid.UUID `json:"appointmentId"`
	UnitsUsed     int       `json:"unitsUsed"`
	CreatedAt     time.Time `json:"createdAt"`
}

// HistoryEntry is a redemption joined with its pack for display.
type HistoryEntry struct {
	Redemption  CreditRedemption `json:"redemption"`
	PackLabel   string           `json:"packLabel"`
	UnitMinutes int              `json:"unitMinutes"`
	Paid        bool             `json:"paid"`
}

// Summary aggregates a patient's packs into totals plus human-readable
// time strings ("2h 30m").
type Summary struct {
	PatientID          uuid.UUID     `json:"patientId"`
	Packs              []*CreditPack `json:"packs"`
	UnitsTotal         int           `json:"unitsTotal"`
	UnitsRemaining     int           `json:"unitsRemaining"`
	UnitsUsed          int           `json:"unitsUsed"`
	TotalFormatted     string        `json:"totalFormatted"`
	RemainingFormatted string        `json:"remainingFormatted"`
	UsedFormatted      string        `json:"usedFormatted"`
}

// BatchSummaryEntry is the per-patient row of a batch summary request.
type BatchSummaryEntry struct {
	PatientID         uuid.UUID `json:"patientId"`
	TotalCredits      int       `json:"totalCredits"`
	ActiveCredits     int       `json:"activeCredits"`
	TotalPriceCents   int       `json:"totalPriceCents"`
	HasPendingPayment bool      `json:"hasPendingPayment"`
}

// OrphanedRedemption is a redemption whose pack or appointment no
// longer exists. The integrity sweep reports them and leaves the data
// untouched.
type OrphanedRedemption struct {
	RedemptionID       uuid.UUID `json:"redemptionId"`
	CreditPackID       uuid.UUID `json:"creditPackId"`
	AppointmentID      uuid.UUID `json:"appointmentId"`
	MissingPack        bool      `json:"missingPack"`
	MissingAppointment bool      `json:"missingAppointment"`
}

// FormatUnits renders a unit count of the given unit length as
// "Nh Mm", dropping the zero component ("3h", "30m", "0m").
func FormatUnits(units, unitMinutes int) string {
	return FormatMinutes(units * unitMinutes)
}

// FormatMinutes renders a minute count as "Nh Mm".
func FormatMinutes(minutes int) string {
	hours := minutes / 60
	rem := minutes % 60
	switch {
	case hours > 0 && rem > 0:
		return fmt.Sprintf("%dh %dm", hours, rem)
	case hours > 0:
		return fmt.Sprintf("%dh", hours)
	default:
		return fmt.Sprintf("%dm", rem)
	}
}
