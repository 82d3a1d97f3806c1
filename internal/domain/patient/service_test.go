package patient

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type mockRepo struct {
	patients map[uuid.UUID]*Patient
}

func newMockRepo() *mockRepo {
	return &mockRepo{patients: make(map[uuid.UUID]*Patient)}
}

func (m *mockRepo) Create(_ context.Context, p *Patient) error {
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	m.patients[p.ID] = p
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	p, ok := m.patients[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return p, nil
}

func (m *mockRepo) Update(_ context.Context, p *Patient) error {
	m.patients[p.ID] = p
	return nil
}

func (m *mockRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.patients, id)
	return nil
}

func (m *mockRepo) List(_ context.Context, search string, _, _ int) ([]*Patient, int, error) {
	var result []*Patient
	for _, p := range m.patients {
		if search == "" || strings.Contains(strings.ToLower(p.FirstName+" "+p.LastName), strings.ToLower(search)) {
			result = append(result, p)
		}
	}
	return result, len(result), nil
}

func newTestService() (*Service, *mockRepo) {
	repo := newMockRepo()
	return NewService(repo, zerolog.Nop()), repo
}

func TestCreate(t *testing.T) {
	svc, repo := newTestService()
	p := &Patient{FirstName: "María", LastName: "García"}
	if err := svc.Create(context.Background(), p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ID == uuid.Nil {
		t.Error("expected an id assigned")
	}
	if len(repo.patients) != 1 {
		t.Errorf("expected 1 patient stored, got %d", len(repo.patients))
	}
}

func TestCreate_FirstNameRequired(t *testing.T) {
	svc, _ := newTestService()
	if err := svc.Create(context.Background(), &Patient{FirstName: "  "}); err == nil {
		t.Error("expected error for blank first name")
	}
}

func TestUpdate_FirstNameRequired(t *testing.T) {
	svc, _ := newTestService()
	p := &Patient{FirstName: "María"}
	if err := svc.Create(context.Background(), p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p.FirstName = ""
	if err := svc.Update(context.Background(), p); err == nil {
		t.Error("expected error for blank first name")
	}
}

func TestList_Search(t *testing.T) {
	svc, _ := newTestService()
	for _, name := range []string{"María", "Marta", "Lucía"} {
		if err := svc.Create(context.Background(), &Patient{FirstName: name}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	result, total, err := svc.List(context.Background(), "mar", 20, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 2 || len(result) != 2 {
		t.Errorf("expected 2 matches, got %d", total)
	}
}
