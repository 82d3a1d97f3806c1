package settings

import "context"

// Repository is the persistence contract for configuration entries.
type Repository interface {
	Get(ctx context.Context, key string) (*Setting, error)
	Set(ctx context.Context, key, value string) error
	List(ctx context.Context) ([]*Setting, error)
	Delete(ctx context.Context, key string) error
}
