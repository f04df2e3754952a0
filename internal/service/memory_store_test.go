package service

import (
	"context"
	"sort"
	"strings"
	"sync"

	apperrors "github.com/project-reconciler/internal/errors"
	"github.com/project-reconciler/internal/models"
)

// memoryStore is an in-memory ProjectStore with the same version semantics
// as the Postgres repository.
type memoryStore struct {
	mu       sync.Mutex
	projects map[string]*models.Project

	inserts int
	updates int

	// hooks
	findErr      error
	insertErr    func(p *models.Project) error
	beforeUpdate func(p *models.Project)
}

func newMemoryStore() *memoryStore {
	return &memoryStore{projects: make(map[string]*models.Project)}
}

func (m *memoryStore) FindByIdentity(_ context.Context, name, ticker string) (*models.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	var found *models.Project
	for _, p := range m.sortedLocked() {
		if strings.EqualFold(p.Name, name) && p.Ticker == ticker {
			found = p
			break
		}
	}
	return found.Clone(), nil
}

func (m *memoryStore) GetByUID(_ context.Context, uid string) (*models.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.projects[uid].Clone(), nil
}

func (m *memoryStore) GetByName(_ context.Context, name string) (*models.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.sortedLocked() {
		if strings.EqualFold(p.Name, name) {
			return p.Clone(), nil
		}
	}
	return nil, nil
}

func (m *memoryStore) ListBySource(_ context.Context, source string) ([]*models.Project, error) {
	return m.filter(func(p *models.Project) bool {
		_, ok := p.Sources[source]
		return ok
	}), nil
}

func (m *memoryStore) ListByCategory(_ context.Context, category string) ([]*models.Project, error) {
	return m.filter(func(p *models.Project) bool {
		for _, tag := range p.Strings("category") {
			if strings.EqualFold(tag, category) {
				return true
			}
		}
		return false
	}), nil
}

func (m *memoryStore) Insert(_ context.Context, p *models.Project) error {
	if m.insertErr != nil {
		if err := m.insertErr(p); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p.Version = 1
	m.projects[p.UID] = p.Clone()
	m.inserts++
	return nil
}

func (m *memoryStore) Update(_ context.Context, p *models.Project, expectedVersion int64) error {
	if m.beforeUpdate != nil {
		m.beforeUpdate(p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.projects[p.UID]
	if !ok || stored.Version != expectedVersion {
		return apperrors.NewVersionConflictError(p.UID)
	}
	p.Version = expectedVersion + 1
	m.projects[p.UID] = p.Clone()
	m.updates++
	return nil
}

func (m *memoryStore) Stats(_ context.Context) (*models.StoreStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &models.StoreStats{Total: int64(len(m.projects)), BySource: map[string]int64{}}
	for _, p := range m.projects {
		for source := range p.Sources {
			stats.BySource[source]++
		}
	}
	return stats, nil
}

func (m *memoryStore) DuplicateTickers(_ context.Context) ([]models.TickerGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byTicker := map[string][]*models.Project{}
	for _, p := range m.sortedLocked() {
		byTicker[p.Ticker] = append(byTicker[p.Ticker], p.Clone())
	}
	var groups []models.TickerGroup
	for ticker, projects := range byTicker {
		if len(projects) > 1 {
			groups = append(groups, models.TickerGroup{Ticker: ticker, Projects: projects})
		}
	}
	return groups, nil
}

// put stores a record directly, bypassing the service.
func (m *memoryStore) put(p *models.Project) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.Version == 0 {
		p.Version = 1
	}
	m.projects[p.UID] = p.Clone()
}

func (m *memoryStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.projects)
}

func (m *memoryStore) filter(keep func(*models.Project) bool) []*models.Project {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Project
	for _, p := range m.sortedLocked() {
		if keep(p) {
			out = append(out, p.Clone())
		}
	}
	return out
}

// sortedLocked returns records oldest first, as the repository orders them.
func (m *memoryStore) sortedLocked() []*models.Project {
	out := make([]*models.Project, 0, len(m.projects))
	for _, p := range m.projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].UID < out[j].UID
	})
	return out
}
