// Package appointment books visits and reconciles them against the
// patient's credit packs: booking consumes units, cancellation and
// deletion give them back.
package appointment

import (
	"time"

	"github.com/google/uuid"

	"github.com/dsuarezmarra/clinic-sub001/internal/domain/credit"
)

const (
	StatusBooked    = "BOOKED"
	StatusCancelled = "CANCELLED"
	StatusNoShow    = "NO_SHOW"
)

type Appointment struct {
	ID              uuid.UUID  `json:"id"`
	PatientID       *uuid.UUID `json:"patientId,omitempty"`
	StartAt         time.Time  `json:"startAt"`
	EndAt           time.Time  `json:"endAt"`
	DurationMinutes int        `json:"durationMinutes"`
	PriceCents      int        `json:"priceCents"`
	ConsumesCredit  bool       `json:"consumesCredit"`
	Status          string     `json:"status"`
	Notes           *string    `json:"notes,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// Detail is an appointment joined with its redemptions and the
// payment state derived from them: an appointment is paid when every
// pack it drew from is paid.
type Detail struct {
	Appointment
	Paid        bool                       `json:"paid"`
	Redemptions []*credit.CreditRedemption `json:"redemptions,omitempty"`
}

// UnitCost converts a visit length to 30-minute credit units, rounding
// up. A 45-minute visit costs two units.
func UnitCost(durationMinutes int) int {
	if durationMinutes <= 0 {
		return 0
	}
	return (durationMinutes + 29) / 30
}
