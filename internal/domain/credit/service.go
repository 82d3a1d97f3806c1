package credit

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dsuarezmarra/clinic-sub001/internal/domain/settings"
	"github.com/dsuarezmarra/clinic-sub001/internal/platform/db"
	"github.com/dsuarezmarra/clinic-sub001/internal/platform/events"
)

// PriceProvider supplies the configured price defaults for the
// current tenant.
type PriceProvider interface {
	Prices(ctx context.Context) settings.Prices
}

type Service struct {
	packs       PackRepository
	redemptions RedemptionRepository
	prices      PriceProvider
	bus         *events.Bus
	logger      zerolog.Logger
}

func NewService(packs PackRepository, redemptions RedemptionRepository,
	prices PriceProvider, bus *events.Bus, logger zerolog.Logger) *Service {
	return &Service{
		packs:       packs,
		redemptions: redemptions,
		prices:      prices,
		bus:         bus,
		logger:      logger,
	}
}

// CreatePackInput describes a pack purchase. Quantity creates that
// many identical packs; PriceCents overrides the configured default
// when non-nil.
type CreatePackInput struct {
	PatientID   uuid.UUID `json:"patientId"`
	Kind        string    `json:"kind"`
	UnitMinutes int       `json:"unitMinutes"`
	Quantity    int       `json:"quantity"`
	Paid        bool      `json:"paid"`
	PriceCents  *int      `json:"priceCents,omitempty"`
	Notes       *string   `json:"notes,omitempty"`
}

// unitsFor maps a pack kind and session length to stored units. A
// session is one 30-minute unit or two for an hour; a bono bundles
// five sessions.
func unitsFor(kind string, unitMinutes int) (int, error) {
	switch kind {
	case KindSesion:
		if unitMinutes == 60 {
			return 2, nil
		}
		return 1, nil
	case KindBono:
		if unitMinutes == 60 {
			return 10, nil
		}
		return 5, nil
	default:
		return 0, fmt.Errorf("unknown pack kind %q", kind)
	}
}

func (s *Service) CreatePacks(ctx context.Context, in CreatePackInput) ([]*CreditPack, error) {
	if in.UnitMinutes != 30 && in.UnitMinutes != 60 {
		return nil, fmt.Errorf("unit minutes must be 30 or 60, got %d", in.UnitMinutes)
	}
	if in.Quantity <= 0 {
		in.Quantity = 1
	}

	units, err := unitsFor(in.Kind, in.UnitMinutes)
	if err != nil {
		return nil, err
	}

	priceCents := 0
	if in.PriceCents != nil {
		priceCents = *in.PriceCents
	} else {
		prices := s.prices.Prices(ctx)
		if in.Kind == KindBono {
			priceCents = prices.BonoCents(in.UnitMinutes)
		} else {
			priceCents = prices.SessionCents(in.UnitMinutes)
		}
	}

	created := make([]*CreditPack, 0, in.Quantity)
	for i := 0; i < in.Quantity; i++ {
		p := &CreditPack{
			PatientID:      in.PatientID,
			UnitsTotal:     units,
			UnitsRemaining: units,
			UnitMinutes:    in.UnitMinutes,
			PriceCents:     priceCents,
			Paid:           in.Paid,
			Notes:          in.Notes,
		}
		p.Label = p.DerivedLabel()
		if err := s.packs.Create(ctx, p); err != nil {
			return nil, fmt.Errorf("creating credit pack: %w", err)
		}
		created = append(created, p)
	}

	s.logger.Info().
		Str("patient_id", in.PatientID.String()).
		Str("kind", in.Kind).
		Int("quantity", in.Quantity).
		Int("units_each", units).
		Msg("credit packs created")
	return created, nil
}

func (s *Service) GetPack(ctx context.Context, id uuid.UUID) (*CreditPack, error) {
	return s.packs.GetByID(ctx, id)
}

// ListPacks returns every pack for a patient, paid first then oldest
// first.
func (s *Service) ListPacks(ctx context.Context, patientID uuid.UUID) ([]*CreditPack, error) {
	return s.packs.ListByPatient(ctx, patientID)
}

// ListActivePacks returns the patient's packs that still have units,
// in redemption order.
func (s *Service) ListActivePacks(ctx context.Context, patientID uuid.UUID) ([]*CreditPack, error) {
	return s.packs.ListActiveByPatient(ctx, patientID)
}

// SetPaymentStatus flips a pack's paid flag and broadcasts the change
// so loaded views can patch themselves without refetching. The
// broadcast never blocks and its failure never fails the update.
func (s *Service) SetPaymentStatus(ctx context.Context, id uuid.UUID, paid bool) (*CreditPack, error) {
	if err := s.packs.SetPaid(ctx, id, paid); err != nil {
		return nil, fmt.Errorf("updating payment status: %w", err)
	}
	p, err := s.packs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	s.publishPaymentChange(ctx, p)
	return p, nil
}

func (s *Service) publishPaymentChange(ctx context.Context, p *CreditPack) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(db.TenantFromContext(ctx), events.PaymentStatusEvent{
		PackID:    p.ID,
		Paid:      p.Paid,
		PatientID: p.PatientID,
	})
}

// SetUnitsRemaining manually corrects a pack's balance. Values outside
// [0, unitsTotal] are rejected with an OutOfRangeError.
func (s *Service) SetUnitsRemaining(ctx context.Context, id uuid.UUID, units int) (*CreditPack, error) {
	p, err := s.packs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if units < 0 || units > p.UnitsTotal {
		return nil, &OutOfRangeError{PackID: id, Value: units, UnitsTotal: p.UnitsTotal}
	}
	if err := s.packs.SetUnitsRemaining(ctx, id, units); err != nil {
		return nil, fmt.Errorf("updating units remaining: %w", err)
	}
	p.UnitsRemaining = units
	return p, nil
}

func (s *Service) UpdatePack(ctx context.Context, p *CreditPack) error {
	return s.packs.Update(ctx, p)
}

// DeletePack removes a pack and its redemptions. Redemptions cascade
// rather than block: the appointment history keeps its own price.
func (s *Service) DeletePack(ctx context.Context, id uuid.UUID) error {
	if err := s.packs.DeleteCascade(ctx, id); err != nil {
		return fmt.Errorf("deleting credit pack: %w", err)
	}
	s.logger.Info().Str("pack_id", id.String()).Msg("credit pack deleted with redemptions")
	return nil
}

// Summary aggregates a patient's packs into unit totals and formatted
// durations.
func (s *Service) Summary(ctx context.Context, patientID uuid.UUID) (*Summary, error) {
	packs, err := s.packs.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}

	sum := &Summary{PatientID: patientID, Packs: packs}
	var totalMin, remainingMin int
	for _, p := range packs {
		sum.UnitsTotal += p.UnitsTotal
		sum.UnitsRemaining += p.UnitsRemaining
		totalMin += p.UnitsTotal * p.UnitMinutes
		remainingMin += p.UnitsRemaining * p.UnitMinutes
	}
	sum.UnitsUsed = sum.UnitsTotal - sum.UnitsRemaining

	sum.TotalFormatted = FormatMinutes(totalMin)
	sum.RemainingFormatted = FormatMinutes(remainingMin)
	sum.UsedFormatted = FormatMinutes(totalMin - remainingMin)
	return sum, nil
}

// BatchSummary aggregates per patient, including zero rows for
// patients without packs so callers can render every requested id.
func (s *Service) BatchSummary(ctx context.Context, patientIDs []uuid.UUID) ([]*BatchSummaryEntry, error) {
	entries, err := s.packs.BatchSummary(ctx, patientIDs)
	if err != nil {
		return nil, err
	}

	byPatient := make(map[uuid.UUID]*BatchSummaryEntry, len(entries))
	for _, e := range entries {
		byPatient[e.PatientID] = e
	}

	out := make([]*BatchSummaryEntry, 0, len(patientIDs))
	for _, id := range patientIDs {
		if e, ok := byPatient[id]; ok {
			out = append(out, e)
		} else {
			out = append(out, &BatchSummaryEntry{PatientID: id})
		}
	}
	return out, nil
}

// History lists a patient's redemptions, newest first.
func (s *Service) History(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*HistoryEntry, int, error) {
	return s.redemptions.History(ctx, patientID, limit, offset)
}

// IntegritySweep reports redemptions pointing at missing packs or
// appointments. It only reports: cleanup is a human decision.
func (s *Service) IntegritySweep(ctx context.Context) ([]*OrphanedRedemption, error) {
	orphans, err := s.redemptions.ListOrphaned(ctx)
	if err != nil {
		return nil, err
	}
	if len(orphans) > 0 {
		s.logger.Warn().Int("count", len(orphans)).Msg("orphaned redemptions found")
	}
	return orphans, nil
}
