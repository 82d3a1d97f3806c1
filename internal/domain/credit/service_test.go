package credit

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dsuarezmarra/clinic-sub001/internal/domain/settings"
	"github.com/dsuarezmarra/clinic-sub001/internal/platform/events"
)

// -- Mock Repositories --

type mockPackRepo struct {
	packs map[uuid.UUID]*CreditPack
	reds  *mockRedemptionRepo
	seq   int
}

func newMockPackRepo(reds *mockRedemptionRepo) *mockPackRepo {
	return &mockPackRepo{packs: make(map[uuid.UUID]*CreditPack), reds: reds}
}

func (m *mockPackRepo) Create(_ context.Context, p *CreditPack) error {
	p.ID = uuid.New()
	m.seq++
	p.CreatedAt = time.Unix(int64(m.seq), 0)
	p.UpdatedAt = p.CreatedAt
	m.packs[p.ID] = p
	return nil
}

func (m *mockPackRepo) GetByID(_ context.Context, id uuid.UUID) (*CreditPack, error) {
	p, ok := m.packs[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return p, nil
}

func (m *mockPackRepo) Update(_ context.Context, p *CreditPack) error {
	m.packs[p.ID] = p
	return nil
}

func (m *mockPackRepo) SetPaid(_ context.Context, id uuid.UUID, paid bool) error {
	p, ok := m.packs[id]
	if !ok {
		return fmt.Errorf("not found")
	}
	p.Paid = paid
	return nil
}

func (m *mockPackRepo) SetUnitsRemaining(_ context.Context, id uuid.UUID, units int) error {
	p, ok := m.packs[id]
	if !ok {
		return fmt.Errorf("not found")
	}
	p.UnitsRemaining = units
	return nil
}

func (m *mockPackRepo) ConsumeUnits(_ context.Context, id uuid.UUID, units int) (bool, error) {
	p, ok := m.packs[id]
	if !ok {
		return false, fmt.Errorf("not found")
	}
	if p.UnitsRemaining < units {
		return false, nil
	}
	p.UnitsRemaining -= units
	return true, nil
}

func (m *mockPackRepo) RestoreUnits(_ context.Context, id uuid.UUID, units int) error {
	p, ok := m.packs[id]
	if !ok {
		return fmt.Errorf("not found")
	}
	p.UnitsRemaining += units
	if p.UnitsRemaining > p.UnitsTotal {
		p.UnitsRemaining = p.UnitsTotal
	}
	return nil
}

func (m *mockPackRepo) DeleteCascade(_ context.Context, id uuid.UUID) error {
	if _, ok := m.packs[id]; !ok {
		return fmt.Errorf("not found")
	}
	delete(m.packs, id)
	if m.reds != nil {
		for rid, red := range m.reds.reds {
			if red.CreditPackID == id {
				delete(m.reds.reds, rid)
			}
		}
	}
	return nil
}

func (m *mockPackRepo) ListByPatient(_ context.Context, patientID uuid.UUID) ([]*CreditPack, error) {
	var result []*CreditPack
	for _, p := range m.packs {
		if p.PatientID == patientID {
			result = append(result, p)
		}
	}
	sortPacks(result)
	return result, nil
}

func (m *mockPackRepo) ListActiveByPatient(_ context.Context, patientID uuid.UUID) ([]*CreditPack, error) {
	var result []*CreditPack
	for _, p := range m.packs {
		if p.PatientID == patientID && p.UnitsRemaining > 0 {
			result = append(result, p)
		}
	}
	sortPacks(result)
	return result, nil
}

func sortPacks(packs []*CreditPack) {
	sort.Slice(packs, func(i, j int) bool {
		if packs[i].Paid != packs[j].Paid {
			return packs[i].Paid
		}
		return packs[i].CreatedAt.Before(packs[j].CreatedAt)
	})
}

func (m *mockPackRepo) BatchSummary(_ context.Context, patientIDs []uuid.UUID) ([]*BatchSummaryEntry, error) {
	byPatient := make(map[uuid.UUID]*BatchSummaryEntry)
	for _, p := range m.packs {
		e, ok := byPatient[p.PatientID]
		if !ok {
			e = &BatchSummaryEntry{PatientID: p.PatientID}
			byPatient[p.PatientID] = e
		}
		e.TotalCredits += p.UnitsTotal
		e.ActiveCredits += p.UnitsRemaining
		if p.UnitsRemaining > 0 {
			e.TotalPriceCents += p.PriceCents
			if !p.Paid {
				e.HasPendingPayment = true
			}
		}
	}
	var result []*BatchSummaryEntry
	for _, id := range patientIDs {
		if e, ok := byPatient[id]; ok {
			result = append(result, e)
		}
	}
	return result, nil
}

type mockRedemptionRepo struct {
	reds map[uuid.UUID]*CreditRedemption
}

func newMockRedemptionRepo() *mockRedemptionRepo {
	return &mockRedemptionRepo{reds: make(map[uuid.UUID]*CreditRedemption)}
}

func (m *mockRedemptionRepo) Create(_ context.Context, r *CreditRedemption) error {
	r.ID = uuid.New()
	r.CreatedAt = time.Now()
	m.reds[r.ID] = r
	return nil
}

func (m *mockRedemptionRepo) GetByID(_ context.Context, id uuid.UUID) (*CreditRedemption, error) {
	r, ok := m.reds[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return r, nil
}

func (m *mockRedemptionRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.reds, id)
	return nil
}

func (m *mockRedemptionRepo) ListByPack(_ context.Context, packID uuid.UUID) ([]*CreditRedemption, error) {
	var result []*CreditRedemption
	for _, r := range m.reds {
		if r.CreditPackID == packID {
			result = append(result, r)
		}
	}
	return result, nil
}

func (m *mockRedemptionRepo) ListByAppointment(_ context.Context, appointmentID uuid.UUID) ([]*CreditRedemption, error) {
	var result []*CreditRedemption
	for _, r := range m.reds {
		if r.AppointmentID == appointmentID {
			result = append(result, r)
		}
	}
	return result, nil
}

func (m *mockRedemptionRepo) History(_ context.Context, _ uuid.UUID, limit, offset int) ([]*HistoryEntry, int, error) {
	return nil, len(m.reds), nil
}

func (m *mockRedemptionRepo) ListOrphaned(_ context.Context) ([]*OrphanedRedemption, error) {
	return nil, nil
}

type stubPrices struct{}

func (stubPrices) Prices(_ context.Context) settings.Prices {
	return settings.Prices{
		Session30Cents: 3500,
		Session60Cents: 6500,
		Bono30Cents:    15500,
		Bono60Cents:    29000,
	}
}

func newTestService() (*Service, *mockPackRepo, *mockRedemptionRepo) {
	reds := newMockRedemptionRepo()
	packs := newMockPackRepo(reds)
	svc := NewService(packs, reds, stubPrices{}, events.NewBus(), zerolog.Nop())
	return svc, packs, reds
}

// -- Pack creation --

func TestCreatePacks_Sesion30(t *testing.T) {
	svc, _, _ := newTestService()
	packs, err := svc.CreatePacks(context.Background(), CreatePackInput{
		PatientID: uuid.New(), Kind: KindSesion, UnitMinutes: 30, Quantity: 1,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(packs) != 1 {
		t.Fatalf("expected 1 pack, got %d", len(packs))
	}
	p := packs[0]
	if p.UnitsTotal != 1 || p.UnitsRemaining != 1 {
		t.Errorf("expected 1 unit, got total=%d remaining=%d", p.UnitsTotal, p.UnitsRemaining)
	}
	if p.PriceCents != 3500 {
		t.Errorf("expected configured session price 3500, got %d", p.PriceCents)
	}
	if p.Label != "Sesión 30m" {
		t.Errorf("unexpected label %q", p.Label)
	}
}

func TestCreatePacks_Sesion60(t *testing.T) {
	svc, _, _ := newTestService()
	packs, err := svc.CreatePacks(context.Background(), CreatePackInput{
		PatientID: uuid.New(), Kind: KindSesion, UnitMinutes: 60,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p := packs[0]
	if p.UnitsTotal != 2 {
		t.Errorf("expected 2 units for a 60-minute session, got %d", p.UnitsTotal)
	}
	if p.PriceCents != 6500 {
		t.Errorf("expected 6500, got %d", p.PriceCents)
	}
	if p.Label != "Sesión 60m" {
		t.Errorf("unexpected label %q", p.Label)
	}
}

func TestCreatePacks_Bono30(t *testing.T) {
	svc, _, _ := newTestService()
	packs, err := svc.CreatePacks(context.Background(), CreatePackInput{
		PatientID: uuid.New(), Kind: KindBono, UnitMinutes: 30,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p := packs[0]
	if p.UnitsTotal != 5 {
		t.Errorf("expected 5 units, got %d", p.UnitsTotal)
	}
	if p.PriceCents != 15500 {
		t.Errorf("expected 15500, got %d", p.PriceCents)
	}
	if p.Label != "Bono 5×30m" {
		t.Errorf("unexpected label %q", p.Label)
	}
}

func TestCreatePacks_Bono60(t *testing.T) {
	svc, _, _ := newTestService()
	packs, err := svc.CreatePacks(context.Background(), CreatePackInput{
		PatientID: uuid.New(), Kind: KindBono, UnitMinutes: 60,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p := packs[0]
	if p.UnitsTotal != 10 {
		t.Errorf("expected 10 units, got %d", p.UnitsTotal)
	}
	// 10 units of 60 minutes display as 5 sessions.
	if p.Label != "Bono 5×60m" {
		t.Errorf("unexpected label %q", p.Label)
	}
}

func TestCreatePacks_Quantity(t *testing.T) {
	svc, _, _ := newTestService()
	packs, err := svc.CreatePacks(context.Background(), CreatePackInput{
		PatientID: uuid.New(), Kind: KindSesion, UnitMinutes: 30, Quantity: 3,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(packs) != 3 {
		t.Errorf("expected 3 packs, got %d", len(packs))
	}
}

func TestCreatePacks_ExplicitPrice(t *testing.T) {
	svc, _, _ := newTestService()
	price := 12000
	packs, err := svc.CreatePacks(context.Background(), CreatePackInput{
		PatientID: uuid.New(), Kind: KindBono, UnitMinutes: 30, PriceCents: &price,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if packs[0].PriceCents != 12000 {
		t.Errorf("expected explicit price 12000, got %d", packs[0].PriceCents)
	}
}

func TestCreatePacks_RejectsBadMinutes(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.CreatePacks(context.Background(), CreatePackInput{
		PatientID: uuid.New(), Kind: KindSesion, UnitMinutes: 45,
	})
	if err == nil {
		t.Error("expected error for 45-minute unit")
	}
}

func TestCreatePacks_RejectsUnknownKind(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.CreatePacks(context.Background(), CreatePackInput{
		PatientID: uuid.New(), Kind: "abono", UnitMinutes: 30,
	})
	if err == nil {
		t.Error("expected error for unknown kind")
	}
}

// -- Unit price and labels --

func TestUnitPriceCents(t *testing.T) {
	p := &CreditPack{UnitsTotal: 10, PriceCents: 13500}
	if got := p.UnitPriceCents(); got != 1350 {
		t.Errorf("expected 1350, got %d", got)
	}

	p = &CreditPack{UnitsTotal: 3, PriceCents: 10000}
	if got := p.UnitPriceCents(); got != 3333 {
		t.Errorf("expected 3333, got %d", got)
	}
}

func TestUnitPriceCents_ZeroUnitsTotal(t *testing.T) {
	p := &CreditPack{UnitsTotal: 0, PriceCents: 5000}
	if got := p.UnitPriceCents(); got != 0 {
		t.Errorf("expected 0 for zero units total, got %d", got)
	}
}

func TestDerivedLabel_PrefersStored(t *testing.T) {
	p := &CreditPack{Label: "Promo verano", UnitsTotal: 5, UnitMinutes: 30}
	if got := p.DerivedLabel(); got != "Promo verano" {
		t.Errorf("expected stored label, got %q", got)
	}
}

// -- Ordering --

func TestListActivePacks_PaidFirstThenOldest(t *testing.T) {
	svc, packs, _ := newTestService()
	patientID := uuid.New()

	unpaidOld := &CreditPack{PatientID: patientID, UnitsTotal: 5, UnitsRemaining: 5, UnitMinutes: 30}
	paidNew := &CreditPack{PatientID: patientID, UnitsTotal: 5, UnitsRemaining: 5, UnitMinutes: 30, Paid: true}
	drained := &CreditPack{PatientID: patientID, UnitsTotal: 5, UnitsRemaining: 0, UnitMinutes: 30, Paid: true}
	packs.Create(context.Background(), unpaidOld)
	packs.Create(context.Background(), paidNew)
	packs.Create(context.Background(), drained)

	active, err := svc.ListActivePacks(context.Background(), patientID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("expected 2 active packs, got %d", len(active))
	}
	if active[0].ID != paidNew.ID {
		t.Error("expected the paid pack first")
	}
	if active[1].ID != unpaidOld.ID {
		t.Error("expected the unpaid pack second")
	}
}

// -- Units remaining --

func TestSetUnitsRemaining(t *testing.T) {
	svc, packs, _ := newTestService()
	p := &CreditPack{PatientID: uuid.New(), UnitsTotal: 10, UnitsRemaining: 10, UnitMinutes: 30}
	packs.Create(context.Background(), p)

	updated, err := svc.SetUnitsRemaining(context.Background(), p.ID, 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.UnitsRemaining != 4 {
		t.Errorf("expected 4 units remaining, got %d", updated.UnitsRemaining)
	}
}

func TestSetUnitsRemaining_OutOfRange(t *testing.T) {
	svc, packs, _ := newTestService()
	p := &CreditPack{PatientID: uuid.New(), UnitsTotal: 10, UnitsRemaining: 10, UnitMinutes: 30}
	packs.Create(context.Background(), p)

	for _, bad := range []int{-1, 11} {
		_, err := svc.SetUnitsRemaining(context.Background(), p.ID, bad)
		if err == nil {
			t.Fatalf("expected out-of-range error for %d", bad)
		}
		if _, ok := err.(*OutOfRangeError); !ok {
			t.Errorf("expected *OutOfRangeError for %d, got %T", bad, err)
		}
	}
	if p.UnitsRemaining != 10 {
		t.Errorf("pack should be untouched after rejected updates, got %d", p.UnitsRemaining)
	}
}

// -- Payment status broadcast --

func TestSetPaymentStatus_Broadcasts(t *testing.T) {
	reds := newMockRedemptionRepo()
	packRepo := newMockPackRepo(reds)
	bus := events.NewBus()
	svc := NewService(packRepo, reds, stubPrices{}, bus, zerolog.Nop())

	received := make(chan events.PaymentStatusEvent, 1)
	bus.Subscribe(func(_ string, evt events.PaymentStatusEvent) {
		received <- evt
	})

	p := &CreditPack{PatientID: uuid.New(), UnitsTotal: 5, UnitsRemaining: 5, UnitMinutes: 30}
	packRepo.Create(context.Background(), p)

	updated, err := svc.SetPaymentStatus(context.Background(), p.ID, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !updated.Paid {
		t.Error("expected pack to be marked paid")
	}

	select {
	case evt := <-received:
		if evt.PackID != p.ID || !evt.Paid || evt.PatientID != p.PatientID {
			t.Errorf("unexpected event: %+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a payment status event")
	}
}

// -- Summary --

func TestSummary(t *testing.T) {
	svc, packs, _ := newTestService()
	patientID := uuid.New()
	packs.Create(context.Background(), &CreditPack{
		PatientID: patientID, UnitsTotal: 10, UnitsRemaining: 7, UnitMinutes: 30,
	})
	packs.Create(context.Background(), &CreditPack{
		PatientID: patientID, UnitsTotal: 2, UnitsRemaining: 2, UnitMinutes: 60,
	})

	sum, err := svc.Summary(context.Background(), patientID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum.UnitsTotal != 12 || sum.UnitsRemaining != 9 || sum.UnitsUsed != 3 {
		t.Errorf("unexpected totals: %+v", sum)
	}
	// 10x30 + 2x60 = 420 minutes total, 7x30 + 2x60 = 330 remaining.
	if sum.TotalFormatted != "7h" {
		t.Errorf("expected 7h total, got %q", sum.TotalFormatted)
	}
	if sum.RemainingFormatted != "5h 30m" {
		t.Errorf("expected 5h 30m remaining, got %q", sum.RemainingFormatted)
	}
	if sum.UsedFormatted != "1h 30m" {
		t.Errorf("expected 1h 30m used, got %q", sum.UsedFormatted)
	}
}

func TestFormatMinutes(t *testing.T) {
	cases := []struct {
		minutes int
		want    string
	}{
		{0, "0m"},
		{30, "30m"},
		{60, "1h"},
		{90, "1h 30m"},
		{150, "2h 30m"},
	}
	for _, c := range cases {
		if got := FormatMinutes(c.minutes); got != c.want {
			t.Errorf("FormatMinutes(%d) = %q, want %q", c.minutes, got, c.want)
		}
	}
}

// -- Batch summary --

func TestBatchSummary_FillsMissingPatients(t *testing.T) {
	svc, packs, _ := newTestService()
	withPacks := uuid.New()
	without := uuid.New()
	packs.Create(context.Background(), &CreditPack{
		PatientID: withPacks, UnitsTotal: 5, UnitsRemaining: 3, UnitMinutes: 30, PriceCents: 15500,
	})

	entries, err := svc.BatchSummary(context.Background(), []uuid.UUID{withPacks, without})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].TotalCredits != 5 || entries[0].ActiveCredits != 3 {
		t.Errorf("unexpected entry for patient with packs: %+v", entries[0])
	}
	if !entries[0].HasPendingPayment {
		t.Error("expected pending payment for unpaid pack with units")
	}
	if entries[1].PatientID != without || entries[1].TotalCredits != 0 {
		t.Errorf("expected zero entry for patient without packs: %+v", entries[1])
	}
}

// -- Deletion --

func TestDeletePack_CascadesRedemptions(t *testing.T) {
	svc, packs, reds := newTestService()
	p := &CreditPack{PatientID: uuid.New(), UnitsTotal: 5, UnitsRemaining: 4, UnitMinutes: 30}
	packs.Create(context.Background(), p)
	reds.Create(context.Background(), &CreditRedemption{CreditPackID: p.ID, AppointmentID: uuid.New(), UnitsUsed: 1})

	if err := svc.DeletePack(context.Background(), p.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(reds.reds) != 0 {
		t.Errorf("expected redemptions to cascade, %d left", len(reds.reds))
	}
}
