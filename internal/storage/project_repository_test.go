package storage

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/project-reconciler/internal/errors"
	"github.com/project-reconciler/internal/models"
	"github.com/project-reconciler/internal/types"
)

func newTestProject(name, ticker, source string) *models.Project {
	p := &models.Project{
		UID:       uuid.NewString(),
		Name:      name,
		Ticker:    ticker,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
		Fields: types.Document{
			types.FieldCategory: []any{"DeFi"},
			types.FieldSocials:  map[string]any{"website": []any{"https://example.org"}},
		},
	}
	p.TouchSource(source, "https://"+source+".example/"+ticker, time.Now())
	return p
}

func uniqueTicker() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
}

func TestProjectRepository_InsertAndFind(t *testing.T) {
	db := openTestPostgres(t)
	repo := NewProjectRepository(db)
	ctx := testContext(t)

	ticker := uniqueTicker()
	p := newTestProject("Alpha Protocol", ticker, "coingecko")
	require.NoError(t, repo.Insert(ctx, p))
	assert.Equal(t, int64(1), p.Version)

	found, err := repo.FindByIdentity(ctx, "alpha protocol", ticker)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, p.UID, found.UID)
	assert.Equal(t, "Alpha Protocol", found.Name)
	assert.Equal(t, []any{"DeFi"}, found.Fields[types.FieldCategory])
	assert.Equal(t, p.Sources, found.Sources)

	missing, err := repo.FindByIdentity(ctx, "alpha protocol", ticker+"X")
	require.NoError(t, err)
	assert.Nil(t, missing)

	byUID, err := repo.GetByUID(ctx, p.UID)
	require.NoError(t, err)
	require.NotNil(t, byUID)
	assert.Equal(t, p.CreatedAt.Unix(), byUID.CreatedAt.Unix())
}

func TestProjectRepository_UpdateVersionConflict(t *testing.T) {
	db := openTestPostgres(t)
	repo := NewProjectRepository(db)
	ctx := testContext(t)

	p := newTestProject("Beta", uniqueTicker(), "dextools")
	require.NoError(t, repo.Insert(ctx, p))

	p.Fields[types.FieldNetwork] = []any{"Solana"}
	require.NoError(t, repo.Update(ctx, p, 1))
	assert.Equal(t, int64(2), p.Version)

	stale := p.Clone()
	err := repo.Update(ctx, stale, 1)
	require.Error(t, err)
	assert.True(t, apperrors.IsVersionConflict(err))

	stored, err := repo.GetByUID(ctx, p.UID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stored.Version)
	assert.Equal(t, []any{"Solana"}, stored.Fields[types.FieldNetwork])
}

func TestProjectRepository_ReadQueries(t *testing.T) {
	db := openTestPostgres(t)
	repo := NewProjectRepository(db)
	ctx := testContext(t)

	source := "src-" + uuid.NewString()[:8]
	tag := "Tag-" + uuid.NewString()[:8]
	ticker := uniqueTicker()

	first := newTestProject("Gamma One", ticker, source)
	first.Fields[types.FieldCategory] = []any{tag}
	second := newTestProject("Gamma Two", ticker, source)
	second.CreatedAt = first.CreatedAt.Add(time.Second)
	require.NoError(t, repo.Insert(ctx, first))
	require.NoError(t, repo.Insert(ctx, second))

	bySource, err := repo.ListBySource(ctx, source)
	require.NoError(t, err)
	assert.Len(t, bySource, 2)

	byCategory, err := repo.ListByCategory(ctx, strings.ToLower(tag))
	require.NoError(t, err)
	require.Len(t, byCategory, 1)
	assert.Equal(t, first.UID, byCategory[0].UID)

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.BySource[source])
	assert.GreaterOrEqual(t, stats.Total, int64(2))

	groups, err := repo.DuplicateTickers(ctx)
	require.NoError(t, err)
	var group *models.TickerGroup
	for i := range groups {
		if groups[i].Ticker == ticker {
			group = &groups[i]
		}
	}
	require.NotNil(t, group)
	require.Len(t, group.Projects, 2)
	assert.Equal(t, first.UID, group.Projects[0].UID)
}
