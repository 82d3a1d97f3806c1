package credit

import (
	"fmt"

	"github.com/google/uuid"
)

// InsufficientCreditError reports that a patient's packs cannot cover
// a booking's unit cost.
type InsufficientCreditError struct {
	PatientID      uuid.UUID
	UnitsRequired  int
	UnitsAvailable int
}

func (e *InsufficientCreditError) Error() string {
	return fmt.Sprintf("insufficient credit for patient %s: need %d units, have %d",
		e.PatientID, e.UnitsRequired, e.UnitsAvailable)
}

// OutOfRangeError reports an attempt to set a pack's remaining units
// outside [0, unitsTotal].
type OutOfRangeError struct {
	PackID     uuid.UUID
	Value      int
	UnitsTotal int
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("units remaining %d out of range [0, %d] for pack %s",
		e.Value, e.UnitsTotal, e.PackID)
}

// ZeroUnitsTotalError flags a pack with zero total units reaching a
// computation that divides by the unit count. Callers degrade to a
// zero price instead of failing the request.
type ZeroUnitsTotalError struct {
	PackID uuid.UUID
}

func (e *ZeroUnitsTotalError) Error() string {
	return fmt.Sprintf("pack %s has zero total units", e.PackID)
}
