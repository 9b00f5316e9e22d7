package repositories

import (
	"context"
	"time"

	"example.com/flightguild/bot/internal/models"
)

// BanStore is the durable surface behind the ban lifecycle.
// Put and Remove persist before returning; a nil error means the change is durable.
type BanStore interface {
	Put(ctx context.Context, subjectID string, expiresAt time.Time) error
	Remove(ctx context.Context, subjectID string) error
	Get(ctx context.Context, subjectID string) (models.BanRecord, bool, error)
	IsActive(ctx context.Context, subjectID string, now time.Time) (bool, error)
	LoadAll(ctx context.Context) ([]models.BanRecord, error)
}
