package credit

import (
	"context"

	"github.com/google/uuid"
)

// PackRepository is the persistence contract for credit packs.
type PackRepository interface {
	Create(ctx context.Context, p *CreditPack) error
	GetByID(ctx context.Context, id uuid.UUID) (*CreditPack, error)
	Update(ctx context.Context, p *CreditPack) error
	SetPaid(ctx context.Context, id uuid.UUID, paid bool) error
	SetUnitsRemaining(ctx context.Context, id uuid.UUID, units int) error

	// ConsumeUnits atomically decrements a pack's remaining units,
	// refusing to go negative. Returns false when the pack lacked the
	// units at execution time.
	ConsumeUnits(ctx context.Context, id uuid.UUID, units int) (bool, error)

	// RestoreUnits adds units back, capped at the pack's total.
	RestoreUnits(ctx context.Context, id uuid.UUID, units int) error

	// DeleteCascade removes a pack and all of its redemptions in a
	// single transaction.
	DeleteCascade(ctx context.Context, id uuid.UUID) error

	// ListByPatient returns every pack for a patient, ordered paid
	// first then oldest first.
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*CreditPack, error)

	// ListActiveByPatient returns packs with units remaining, in the
	// same order.
	ListActiveByPatient(ctx context.Context, patientID uuid.UUID) ([]*CreditPack, error)

	// BatchSummary aggregates pack counts and value per patient.
	BatchSummary(ctx context.Context, patientIDs []uuid.UUID) ([]*BatchSummaryEntry, error)
}

// RedemptionRepository is the persistence contract for redemptions.
type RedemptionRepository interface {
	Create(ctx context.Context, r *CreditRedemption) error
	GetByID(ctx context.Context, id uuid.UUID) (*CreditRedemption, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ListByPack(ctx context.Context, packID uuid.UUID) ([]*CreditRedemption, error)
	ListByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]*CreditRedemption, error)
	History(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*HistoryEntry, int, error)

	// ListOrphaned finds redemptions referencing a missing pack or
	// appointment.
	ListOrphaned(ctx context.Context) ([]*OrphanedRedemption, error)
}
