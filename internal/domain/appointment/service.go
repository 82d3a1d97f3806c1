package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dsuarezmarra/clinic-sub001/internal/domain/credit"
	"github.com/dsuarezmarra/clinic-sub001/internal/domain/settings"
)

// ErrOverlap rejects a booking whose window intersects an existing
// BOOKED appointment.
var ErrOverlap = errors.New("appointment overlaps an existing booking")

// PriceProvider supplies the configured price defaults.
type PriceProvider interface {
	Prices(ctx context.Context) settings.Prices
}

// PackPayments flips a pack's paid flag through the ledger so the
// payment-status broadcast fires.
type PackPayments interface {
	SetPaymentStatus(ctx context.Context, id uuid.UUID, paid bool) (*credit.CreditPack, error)
}

// TxRunner executes fn inside a database transaction.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

type Service struct {
	repo        Repository
	packs       credit.PackRepository
	redemptions credit.RedemptionRepository
	prices      PriceProvider
	payments    PackPayments
	runTx       TxRunner
	logger      zerolog.Logger
}

func NewService(repo Repository, packs credit.PackRepository,
	redemptions credit.RedemptionRepository, prices PriceProvider,
	payments PackPayments, runTx TxRunner, logger zerolog.Logger) *Service {
	return &Service{
		repo:        repo,
		packs:       packs,
		redemptions: redemptions,
		prices:      prices,
		payments:    payments,
		runTx:       runTx,
		logger:      logger,
	}
}

// BookInput describes a booking request. A zero DurationMinutes asks
// for the proposed default. AllowWithoutCredit books even when the
// patient's packs cannot cover the visit.
type BookInput struct {
	PatientID          *uuid.UUID `json:"patientId,omitempty"`
	StartAt            time.Time  `json:"startAt"`
	DurationMinutes    int        `json:"durationMinutes"`
	ConsumesCredit     bool       `json:"consumesCredit"`
	PriceCents         *int       `json:"priceCents,omitempty"`
	Notes              *string    `json:"notes,omitempty"`
	AllowWithoutCredit bool       `json:"allowWithoutCredit,omitempty"`
}

// Book creates an appointment and, when it consumes credit, redeems
// units from the patient's packs in the same transaction. The price is
// resolved from, in order: the explicit price, the redeemed pack's
// unit price times units used, the configured default for the
// duration.
func (s *Service) Book(ctx context.Context, in BookInput) (*Detail, error) {
	duration := in.DurationMinutes
	if duration == 0 {
		if in.PatientID != nil {
			duration = s.ProposedDuration(ctx, *in.PatientID)
		} else {
			duration = 30
		}
	}
	if duration < 0 {
		return nil, fmt.Errorf("duration must be positive, got %d", duration)
	}

	start := in.StartAt
	end := start.Add(time.Duration(duration) * time.Minute)

	overlaps, err := s.repo.CountOverlapping(ctx, start, end, nil)
	if err != nil {
		return nil, fmt.Errorf("checking overlap: %w", err)
	}
	if overlaps > 0 {
		return nil, ErrOverlap
	}

	a := &Appointment{
		PatientID:       in.PatientID,
		StartAt:         start,
		EndAt:           end,
		DurationMinutes: duration,
		ConsumesCredit:  in.ConsumesCredit,
		Status:          StatusBooked,
		Notes:           in.Notes,
	}

	var redemptions []*credit.CreditRedemption
	err = s.runTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, a); err != nil {
			return fmt.Errorf("creating appointment: %w", err)
		}

		var pack *credit.CreditPack
		var unitsUsed int
		if a.ConsumesCredit && a.PatientID != nil {
			var cerr error
			pack, unitsUsed, cerr = s.consumeCredit(ctx, *a.PatientID, duration, a.ID)
			if cerr != nil {
				var insufficient *credit.InsufficientCreditError
				if errors.As(cerr, &insufficient) && in.AllowWithoutCredit {
					s.logger.Info().
						Str("appointment_id", a.ID.String()).
						Msg("booked without credit on request")
				} else {
					return cerr
				}
			}
		}

		a.PriceCents = s.resolvePrice(ctx, in.PriceCents, pack, unitsUsed, duration)
		if err := s.repo.Update(ctx, a); err != nil {
			return fmt.Errorf("storing appointment price: %w", err)
		}

		reds, err := s.redemptions.ListByAppointment(ctx, a.ID)
		if err != nil {
			return fmt.Errorf("listing redemptions: %w", err)
		}
		redemptions = reds
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.detail(ctx, a, redemptions)
}

// consumeCredit picks the first pack that can cover the visit and
// draws from it. Packs whose unit length matches the duration come
// first, then the rest, each group already ordered paid first and
// oldest first. The guarded decrement moves on to the next candidate
// if a concurrent booking drained the pack.
func (s *Service) consumeCredit(ctx context.Context, patientID uuid.UUID, durationMinutes int, appointmentID uuid.UUID) (*credit.CreditPack, int, error) {
	units := UnitCost(durationMinutes)

	packs, err := s.packs.ListActiveByPatient(ctx, patientID)
	if err != nil {
		return nil, 0, fmt.Errorf("listing packs: %w", err)
	}

	preferredMinutes := 30
	if durationMinutes >= 60 {
		preferredMinutes = 60
	}

	available := 0
	var candidates []*credit.CreditPack
	var fallback []*credit.CreditPack
	for _, p := range packs {
		available += p.UnitsRemaining
		if p.UnitsTotal == 0 {
			// Malformed pack; skip it rather than fail the booking.
			s.logger.Warn().Err(&credit.ZeroUnitsTotalError{PackID: p.ID}).
				Msg("skipping pack in candidate selection")
			continue
		}
		if p.UnitsRemaining < units {
			continue
		}
		if p.UnitMinutes == preferredMinutes {
			candidates = append(candidates, p)
		} else {
			fallback = append(fallback, p)
		}
	}
	candidates = append(candidates, fallback...)

	for _, p := range candidates {
		ok, err := s.packs.ConsumeUnits(ctx, p.ID, units)
		if err != nil {
			return nil, 0, fmt.Errorf("consuming units: %w", err)
		}
		if !ok {
			continue
		}
		red := &credit.CreditRedemption{
			CreditPackID:  p.ID,
			AppointmentID: appointmentID,
			UnitsUsed:     units,
		}
		if err := s.redemptions.Create(ctx, red); err != nil {
			return nil, 0, fmt.Errorf("recording redemption: %w", err)
		}
		return p, units, nil
	}

	return nil, 0, &credit.InsufficientCreditError{
		PatientID:      patientID,
		UnitsRequired:  units,
		UnitsAvailable: available,
	}
}

func (s *Service) resolvePrice(ctx context.Context, explicit *int, pack *credit.CreditPack, unitsUsed int, durationMinutes int) int {
	if explicit != nil {
		return *explicit
	}
	if pack != nil && unitsUsed > 0 {
		return unitsUsed * pack.UnitPriceCents()
	}
	return s.prices.Prices(ctx).SessionCents(durationMinutes)
}

// revertCredit returns an appointment's units to their packs and drops
// the redemptions. Restores are capped at each pack's total, so a
// double revert cannot overfill.
func (s *Service) revertCredit(ctx context.Context, appointmentID uuid.UUID) error {
	reds, err := s.redemptions.ListByAppointment(ctx, appointmentID)
	if err != nil {
		return fmt.Errorf("listing redemptions: %w", err)
	}
	for _, red := range reds {
		if err := s.packs.RestoreUnits(ctx, red.CreditPackID, red.UnitsUsed); err != nil {
			return fmt.Errorf("restoring units to pack %s: %w", red.CreditPackID, err)
		}
		if err := s.redemptions.Delete(ctx, red.ID); err != nil {
			return fmt.Errorf("deleting redemption %s: %w", red.ID, err)
		}
	}
	return nil
}

// Get returns the appointment with its redemptions and derived
// payment state.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Detail, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	reds, err := s.redemptions.ListByAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, a, reds)
}

func (s *Service) detail(ctx context.Context, a *Appointment, reds []*credit.CreditRedemption) (*Detail, error) {
	d := &Detail{Appointment: *a, Redemptions: reds}
	if len(reds) == 0 {
		return d, nil
	}
	d.Paid = true
	for _, red := range reds {
		p, err := s.packs.GetByID(ctx, red.CreditPackID)
		if err != nil || !p.Paid {
			d.Paid = false
			break
		}
	}
	return d, nil
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

func (s *Service) ListByRange(ctx context.Context, from, to time.Time) ([]*Appointment, error) {
	return s.repo.ListByRange(ctx, from, to)
}

// UpdateInput carries a partial appointment update. Nil fields keep
// their current value.
type UpdateInput struct {
	PatientID       *uuid.UUID `json:"patientId,omitempty"`
	StartAt         *time.Time `json:"startAt,omitempty"`
	DurationMinutes *int       `json:"durationMinutes,omitempty"`
	ConsumesCredit  *bool      `json:"consumesCredit,omitempty"`
	PriceCents      *int       `json:"priceCents,omitempty"`
	Notes           *string    `json:"notes,omitempty"`
}

// Update applies the changes. Structural changes (duration, patient or
// credit flag) revert the old redemption and consume again under the
// new shape, inside one transaction.
func (s *Service) Update(ctx context.Context, id uuid.UUID, in UpdateInput) (*Detail, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	structural := false
	if in.DurationMinutes != nil && *in.DurationMinutes != a.DurationMinutes {
		a.DurationMinutes = *in.DurationMinutes
		structural = true
	}
	if in.PatientID != nil && (a.PatientID == nil || *in.PatientID != *a.PatientID) {
		a.PatientID = in.PatientID
		structural = true
	}
	if in.ConsumesCredit != nil && *in.ConsumesCredit != a.ConsumesCredit {
		a.ConsumesCredit = *in.ConsumesCredit
		structural = true
	}
	if in.StartAt != nil {
		a.StartAt = *in.StartAt
	}
	if in.Notes != nil {
		a.Notes = in.Notes
	}
	a.EndAt = a.StartAt.Add(time.Duration(a.DurationMinutes) * time.Minute)

	if a.Status == StatusBooked {
		overlaps, err := s.repo.CountOverlapping(ctx, a.StartAt, a.EndAt, &a.ID)
		if err != nil {
			return nil, fmt.Errorf("checking overlap: %w", err)
		}
		if overlaps > 0 {
			return nil, ErrOverlap
		}
	}

	err = s.runTx(ctx, func(ctx context.Context) error {
		if structural && a.Status == StatusBooked {
			if err := s.revertCredit(ctx, a.ID); err != nil {
				return err
			}
		}

		var pack *credit.CreditPack
		var unitsUsed int
		if structural && a.Status == StatusBooked && a.ConsumesCredit && a.PatientID != nil {
			var cerr error
			pack, unitsUsed, cerr = s.consumeCredit(ctx, *a.PatientID, a.DurationMinutes, a.ID)
			if cerr != nil {
				return cerr
			}
		}

		if in.PriceCents != nil {
			a.PriceCents = *in.PriceCents
		} else if structural {
			a.PriceCents = s.resolvePrice(ctx, nil, pack, unitsUsed, a.DurationMinutes)
		}

		return s.repo.Update(ctx, a)
	})
	if err != nil {
		return nil, err
	}

	reds, err := s.redemptions.ListByAppointment(ctx, a.ID)
	if err != nil {
		return nil, fmt.Errorf("listing redemptions: %w", err)
	}
	return s.detail(ctx, a, reds)
}

// SetStatus transitions an appointment. Cancelling a booked
// appointment returns its units; a no-show keeps them spent.
func (s *Service) SetStatus(ctx context.Context, id uuid.UUID, status string) (*Detail, error) {
	switch status {
	case StatusBooked, StatusCancelled, StatusNoShow:
	default:
		return nil, fmt.Errorf("unknown appointment status %q", status)
	}

	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	err = s.runTx(ctx, func(ctx context.Context) error {
		if status == StatusCancelled && a.Status == StatusBooked {
			if err := s.revertCredit(ctx, a.ID); err != nil {
				return err
			}
		}
		return s.repo.SetStatus(ctx, a.ID, status)
	})
	if err != nil {
		return nil, err
	}
	a.Status = status

	reds, err := s.redemptions.ListByAppointment(ctx, a.ID)
	if err != nil {
		return nil, fmt.Errorf("listing redemptions: %w", err)
	}
	return s.detail(ctx, a, reds)
}

// Delete removes an appointment, returning any consumed units first.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.runTx(ctx, func(ctx context.Context) error {
		if err := s.revertCredit(ctx, id); err != nil {
			return err
		}
		return s.repo.Delete(ctx, id)
	})
}

// SetPaid toggles an appointment's payment. Marking paid consumes
// credit first when none was drawn yet, then flips every redeemed
// pack's paid flag; marking unpaid flips them back. Pack flips go
// through the ledger so the payment-status broadcast fires.
func (s *Service) SetPaid(ctx context.Context, id uuid.UUID, paid bool) (*Detail, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	err = s.runTx(ctx, func(ctx context.Context) error {
		reds, err := s.redemptions.ListByAppointment(ctx, a.ID)
		if err != nil {
			return err
		}

		if paid && len(reds) == 0 && a.ConsumesCredit && a.PatientID != nil {
			pack, unitsUsed, cerr := s.consumeCredit(ctx, *a.PatientID, a.DurationMinutes, a.ID)
			if cerr != nil {
				return cerr
			}
			a.PriceCents = s.resolvePrice(ctx, nil, pack, unitsUsed, a.DurationMinutes)
			if err := s.repo.Update(ctx, a); err != nil {
				return err
			}
			reds, err = s.redemptions.ListByAppointment(ctx, a.ID)
			if err != nil {
				return err
			}
		}

		for _, red := range reds {
			if _, err := s.payments.SetPaymentStatus(ctx, red.CreditPackID, paid); err != nil {
				return fmt.Errorf("updating pack %s payment: %w", red.CreditPackID, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	reds, err := s.redemptions.ListByAppointment(ctx, a.ID)
	if err != nil {
		return nil, fmt.Errorf("listing redemptions: %w", err)
	}
	return s.detail(ctx, a, reds)
}

// ProposedDuration suggests the default visit length for a patient:
// an hour when a 60-minute pack can still cover one, half an hour
// otherwise.
func (s *Service) ProposedDuration(ctx context.Context, patientID uuid.UUID) int {
	packs, err := s.packs.ListActiveByPatient(ctx, patientID)
	if err != nil {
		return 30
	}
	for _, p := range packs {
		if p.UnitMinutes == 60 && p.UnitsRemaining >= 2 {
			return 60
		}
	}
	return 30
}
