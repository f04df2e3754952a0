package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/project-reconciler/internal/errors"
	"github.com/project-reconciler/internal/types"
)

func TestBulkUpsert_PartialFailure(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store)

	result := svc.BulkUpsert(testContext(t), []types.Document{
		{"project_name": "Alpha", "project_ticker": "ALP"},
		{"project_name": "Beta"},
		{"project_name": "Gamma", "project_ticker": "GAM"},
	}, "coingecko")

	assert.Equal(t, []string{"uid-1", "uid-2"}, result.UIDs)
	require.Len(t, result.Failures, 1)
	failure := result.Failures[0]
	assert.Equal(t, 1, failure.Index)
	assert.Equal(t, "Beta", failure.ProjectName)
	assert.True(t, apperrors.IsValidation(failure.Err))
	assert.NotEmpty(t, failure.Message)
	assert.Equal(t, 2, store.count())
}

func TestBulkUpsert_SameProjectTwice(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store)

	result := svc.BulkUpsert(testContext(t), []types.Document{
		{"project_name": "Alpha", "project_ticker": "ALP", "category": []any{"DeFi"}},
		{"project_name": "ALPHA", "project_ticker": "alp", "category": []any{"Gaming"}},
	}, "dextools")

	assert.Equal(t, []string{"uid-1", "uid-1"}, result.UIDs)
	assert.Empty(t, result.Failures)

	p, _ := store.GetByUID(testContext(t), "uid-1")
	assert.Equal(t, []any{"Gaming", "DeFi"}, p.Fields["category"])
}

func TestBulkUpsert_Empty(t *testing.T) {
	result := newTestService(newMemoryStore()).BulkUpsert(testContext(t), nil, "coingecko")
	assert.Empty(t, result.UIDs)
	assert.NotNil(t, result.UIDs)
	assert.NotNil(t, result.Failures)
}
