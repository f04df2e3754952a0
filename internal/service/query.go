package service

import (
	"context"
	"fmt"
	"strings"

	apperrors "github.com/project-reconciler/internal/errors"
	"github.com/project-reconciler/internal/logging"
	"github.com/project-reconciler/internal/models"
	"github.com/project-reconciler/internal/normalize"
	"github.com/project-reconciler/internal/types"
)

// FindExisting resolves a (name, ticker) pair to its record. The name
// matches case-insensitively, the ticker after upper-casing. Returns nil
// when either input is blank or nothing matches.
func (s *ReconciliationService) FindExisting(ctx context.Context, name, ticker string) (*models.Project, error) {
	name = strings.TrimSpace(name)
	ticker = models.NormalizeTicker(ticker)
	if name == "" || ticker == "" {
		return nil, nil
	}
	return s.repo.FindByIdentity(ctx, name, ticker)
}

// GetByUID returns the record with the given uid, or nil. Reads go through
// the cache when one is configured; cache failures fall back to the store.
func (s *ReconciliationService) GetByUID(ctx context.Context, uid string) (*models.Project, error) {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return nil, nil
	}

	logger := logging.FromContext(ctx).WithField("project_uid", uid)
	if s.cache != nil {
		p, found, err := s.cache.Get(ctx, uid)
		if err != nil {
			logger.WithError(err).Warn("project cache read failed")
		} else if found {
			return p, nil
		}
	}

	p, err := s.repo.GetByUID(ctx, uid)
	if err != nil || p == nil {
		return p, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, p); err != nil {
			logger.WithError(err).Warn("project cache write failed")
		}
	}
	return p, nil
}

// GetByName returns the record whose name matches case-insensitively, or nil.
func (s *ReconciliationService) GetByName(ctx context.Context, name string) (*models.Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	return s.repo.GetByName(ctx, name)
}

// GetBySource returns every record the source has reported.
func (s *ReconciliationService) GetBySource(ctx context.Context, sourceID string) ([]*models.Project, error) {
	source := normalize.NormalizeSourceID(sourceID)
	if source == "" {
		return []*models.Project{}, nil
	}
	return nonNil(s.repo.ListBySource(ctx, source))
}

// GetByCategory returns every record tagged with the category, compared
// case-insensitively.
func (s *ReconciliationService) GetByCategory(ctx context.Context, tag string) ([]*models.Project, error) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return []*models.Project{}, nil
	}
	return nonNil(s.repo.ListByCategory(ctx, tag))
}

// Stats counts all records and the records of each source. Every source in
// the priority order is listed, even at zero.
func (s *ReconciliationService) Stats(ctx context.Context) (*models.StoreStats, error) {
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, err
	}
	if stats.BySource == nil {
		stats.BySource = map[string]int64{}
	}
	for _, source := range s.resolver.Order() {
		if _, ok := stats.BySource[source]; !ok {
			stats.BySource[source] = 0
		}
	}
	return stats, nil
}

// DuplicateGroup is one ticker shared by several records.
type DuplicateGroup struct {
	Ticker   string           `json:"project_ticker"`
	Count    int              `json:"count"`
	Projects []types.Document `json:"projects"`
}

// DuplicatesByTicker reports every ticker held by more than one record,
// largest groups first. excludeFields are left out of each listed record.
func (s *ReconciliationService) DuplicatesByTicker(ctx context.Context, excludeFields []string) ([]DuplicateGroup, error) {
	for _, field := range excludeFields {
		if field == types.FieldProjectUID || field == types.FieldProjectTicker {
			return nil, apperrors.NewInvalidParameterError("exclude", fmt.Sprintf("%s identifies the listed records and cannot be excluded", field))
		}
	}

	groups, err := s.repo.DuplicateTickers(ctx)
	if err != nil {
		return nil, err
	}
	models.SortTickerGroups(groups)

	out := make([]DuplicateGroup, 0, len(groups))
	for _, g := range groups {
		docs := make([]types.Document, 0, len(g.Projects))
		for _, p := range g.Projects {
			docs = append(docs, p.Document().Without(excludeFields...))
		}
		out = append(out, DuplicateGroup{Ticker: g.Ticker, Count: len(docs), Projects: docs})
	}
	return out, nil
}

func nonNil(projects []*models.Project, err error) ([]*models.Project, error) {
	if err != nil {
		return nil, err
	}
	if projects == nil {
		projects = []*models.Project{}
	}
	return projects, nil
}
