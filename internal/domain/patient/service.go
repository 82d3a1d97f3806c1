package patient

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Service struct {
	repo   Repository
	logger zerolog.Logger
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

func (s *Service) Create(ctx context.Context, p *Patient) error {
	if strings.TrimSpace(p.FirstName) == "" {
		return fmt.Errorf("patient first name is required")
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return fmt.Errorf("creating patient: %w", err)
	}
	s.logger.Info().Str("patient_id", p.ID.String()).Msg("patient created")
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) Update(ctx context.Context, p *Patient) error {
	if strings.TrimSpace(p.FirstName) == "" {
		return fmt.Errorf("patient first name is required")
	}
	return s.repo.Update(ctx, p)
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

func (s *Service) List(ctx context.Context, search string, limit, offset int) ([]*Patient, int, error) {
	return s.repo.List(ctx, search, limit, offset)
}
