package settings

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

type Service struct {
	repo   Repository
	logger zerolog.Logger
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

func (s *Service) Get(ctx context.Context, key string) (*Setting, error) {
	return s.repo.Get(ctx, key)
}

func (s *Service) Set(ctx context.Context, key, value string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("setting key is required")
	}
	return s.repo.Set(ctx, key, value)
}

func (s *Service) List(ctx context.Context) ([]*Setting, error) {
	return s.repo.List(ctx)
}

func (s *Service) Delete(ctx context.Context, key string) error {
	return s.repo.Delete(ctx, key)
}

// Prices reads the four price keys for the current tenant, falling
// back to the built-in defaults for any key that is missing or
// unparseable. A bad value is logged, not surfaced: pricing must keep
// working even with a corrupt configuration row.
func (s *Service) Prices(ctx context.Context) Prices {
	return Prices{
		Session30Cents: s.priceCents(ctx, KeySessionPrice30, DefaultSessionPrice30Cents),
		Session60Cents: s.priceCents(ctx, KeySessionPrice60, DefaultSessionPrice60Cents),
		Bono30Cents:    s.priceCents(ctx, KeyBonoPrice30, DefaultBonoPrice30Cents),
		Bono60Cents:    s.priceCents(ctx, KeyBonoPrice60, DefaultBonoPrice60Cents),
	}
}

func (s *Service) priceCents(ctx context.Context, key string, fallback int) int {
	setting, err := s.repo.Get(ctx, key)
	if err != nil {
		return fallback
	}
	cents, err := EurosToCents(setting.Value)
	if err != nil {
		s.logger.Warn().Str("key", key).Str("value", setting.Value).
			Msg("unparseable price setting, using default")
		return fallback
	}
	return cents
}

// EurosToCents parses a euro amount ("35", "35.5", "35,50") into cents.
func EurosToCents(value string) (int, error) {
	normalized := strings.ReplaceAll(strings.TrimSpace(value), ",", ".")
	f, err := strconv.ParseFloat(normalized, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing euro amount %q: %w", value, err)
	}
	if f < 0 {
		return 0, fmt.Errorf("negative euro amount %q", value)
	}
	return int(math.Round(f * 100)), nil
}
