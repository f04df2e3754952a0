package service

import (
	"context"

	"github.com/project-reconciler/internal/models"
)

// ProjectStore persists canonical project records.
// storage.ProjectRepository is the production implementation.
type ProjectStore interface {
	FindByIdentity(ctx context.Context, name, ticker string) (*models.Project, error)
	GetByUID(ctx context.Context, uid string) (*models.Project, error)
	GetByName(ctx context.Context, name string) (*models.Project, error)
	ListBySource(ctx context.Context, source string) ([]*models.Project, error)
	ListByCategory(ctx context.Context, category string) ([]*models.Project, error)
	Insert(ctx context.Context, p *models.Project) error
	// Update must fail with a version conflict when the stored record is no
	// longer at expectedVersion.
	Update(ctx context.Context, p *models.Project, expectedVersion int64) error
	Stats(ctx context.Context) (*models.StoreStats, error)
	DuplicateTickers(ctx context.Context) ([]models.TickerGroup, error)
}

// ProjectCache caches records by uid.
type ProjectCache interface {
	Get(ctx context.Context, uid string) (*models.Project, bool, error)
	Set(ctx context.Context, p *models.Project) error
	Invalidate(ctx context.Context, uids ...string) error
}

// EventRecorder receives an audit event for every persisted upsert.
type EventRecorder interface {
	Record(ctx context.Context, events ...*models.UpsertEvent) error
}
