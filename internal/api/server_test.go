package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/project-reconciler/internal/errors"
	"github.com/project-reconciler/internal/models"
	"github.com/project-reconciler/internal/normalize"
	"github.com/project-reconciler/internal/service"
	"github.com/project-reconciler/internal/types"
)

// mockProjectService records calls and returns canned results.
type mockProjectService struct {
	upsertFunc func(ctx context.Context, payload types.Document, source string) (*service.UpsertResult, error)
	projects   map[string]*models.Project

	lastSource  string
	lastExclude []string
	bulkCalls   int
}

func newMockProjectService() *mockProjectService {
	p := &models.Project{
		UID:       "uid-1",
		Name:      "Digital Gold",
		Ticker:    "GOLD",
		CreatedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Fields:    types.Document{"category": []any{"DeFi"}},
	}
	p.TouchSource("coingecko", "https://cg.example/gold", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))
	return &mockProjectService{projects: map[string]*models.Project{p.UID: p}}
}

func (m *mockProjectService) UpsertWithResult(ctx context.Context, payload types.Document, source string) (*service.UpsertResult, error) {
	m.lastSource = source
	if m.upsertFunc != nil {
		return m.upsertFunc(ctx, payload, source)
	}
	if payload.String("project_name") == "" {
		return nil, apperrors.NewValidationError("project_name", "is required")
	}
	return &service.UpsertResult{
		Project:        &models.Project{UID: "new-uid", Name: payload.String("project_name")},
		Action:         models.UpsertInserted,
		PreferIncoming: true,
		Warnings:       []normalize.Warning{{Field: "socials", Reason: "expected mapping, got string"}},
	}, nil
}

func (m *mockProjectService) BulkUpsert(ctx context.Context, payloads []types.Document, source string) *service.BulkResult {
	m.bulkCalls++
	result := &service.BulkResult{UIDs: []string{}, Failures: []service.BulkFailure{}}
	for i, p := range payloads {
		res, err := m.UpsertWithResult(ctx, p, source)
		if err != nil {
			result.Failures = append(result.Failures, service.BulkFailure{Index: i, Message: err.Error(), Err: err})
			continue
		}
		result.UIDs = append(result.UIDs, res.Project.UID)
	}
	return result
}

func (m *mockProjectService) Preview(_ context.Context, payload types.Document, _ string) (*service.PreviewResult, error) {
	before := m.projects["uid-1"]
	after := before.Clone()
	after.Fields["about"] = payload.String("about")
	return &service.PreviewResult{Before: before, After: after, PreferIncoming: true}, nil
}

func (m *mockProjectService) GetByUID(_ context.Context, uid string) (*models.Project, error) {
	if uid == "boom" {
		return nil, apperrors.NewPersistenceError("get project", errors.New("db password in error"))
	}
	return m.projects[uid], nil
}

func (m *mockProjectService) GetByName(_ context.Context, name string) (*models.Project, error) {
	for _, p := range m.projects {
		if p.Name == name {
			return p, nil
		}
	}
	return nil, nil
}

func (m *mockProjectService) GetBySource(_ context.Context, source string) ([]*models.Project, error) {
	m.lastSource = source
	return []*models.Project{m.projects["uid-1"]}, nil
}

func (m *mockProjectService) GetByCategory(_ context.Context, _ string) ([]*models.Project, error) {
	return []*models.Project{}, nil
}

func (m *mockProjectService) Stats(_ context.Context) (*models.StoreStats, error) {
	return &models.StoreStats{Total: 1, BySource: map[string]int64{"coingecko": 1, "dextools": 0}}, nil
}

func (m *mockProjectService) DuplicatesByTicker(_ context.Context, exclude []string) ([]service.DuplicateGroup, error) {
	m.lastExclude = exclude
	for _, field := range exclude {
		if field == "project_ticker" {
			return nil, apperrors.NewInvalidParameterError("exclude", "project_ticker cannot be excluded")
		}
	}
	return []service.DuplicateGroup{{Ticker: "GOLD", Count: 2, Projects: []types.Document{{"project_uid": "a"}, {"project_uid": "b"}}}}, nil
}

func newTestServer(svc ProjectService) *Server {
	cfg := DefaultServerConfig()
	return NewServer(cfg, svc)
}

func doRequest(t *testing.T, s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	s := newTestServer(newMockProjectService())
	rec := doRequest(t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode(t, rec)["status"])

	s.AddHealthCheck("postgres", func(context.Context) error { return errors.New("connection refused") })
	rec = doRequest(t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "unhealthy", body["status"])
	assert.Equal(t, "connection refused", body["dependencies"].(map[string]interface{})["postgres"])
}

func TestUpsertProject(t *testing.T) {
	svc := newMockProjectService()
	s := newTestServer(svc)

	rec := doRequest(t, s, http.MethodPost, "/api/sources/coingecko/projects", map[string]interface{}{
		"project_name":   "Alpha",
		"project_ticker": "ALP",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "new-uid", body["project_uid"])
	assert.Equal(t, "inserted", body["action"])
	assert.Equal(t, []interface{}{"socials: expected mapping, got string"}, body["warnings"])
	assert.Equal(t, "coingecko", svc.lastSource)
}

func TestUpsertProject_Updated(t *testing.T) {
	svc := newMockProjectService()
	svc.upsertFunc = func(context.Context, types.Document, string) (*service.UpsertResult, error) {
		return &service.UpsertResult{Project: &models.Project{UID: "uid-1"}, Action: models.UpsertUpdated}, nil
	}
	rec := doRequest(t, newTestServer(svc), http.MethodPost, "/api/sources/dextools/projects", map[string]interface{}{"project_name": "x"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, decode(t, rec), "warnings")
}

func TestUpsertProject_ValidationError(t *testing.T) {
	s := newTestServer(newMockProjectService())

	rec := doRequest(t, s, http.MethodPost, "/api/sources/coingecko/projects", map[string]interface{}{"project_ticker": "ALP"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	errBody := decode(t, rec)["error"].(map[string]interface{})
	assert.Equal(t, apperrors.CodeValidation, errBody["code"])
	assert.Equal(t, "project_name", errBody["details"].(map[string]interface{})["field"])
}

func TestUpsertProject_BadBody(t *testing.T) {
	s := newTestServer(newMockProjectService())

	for _, body := range []string{"{not json", `["a"]`, `{"a":1} {"b":2}`} {
		rec := doRequest(t, s, http.MethodPost, "/api/sources/coingecko/projects", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Equal(t, ErrCodeInvalidInput, decode(t, rec)["error"].(map[string]interface{})["code"])
	}
}

func TestUpsertProject_ConflictAndLockErrors(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{apperrors.NewVersionConflictError("uid-1"), http.StatusConflict},
		{apperrors.NewLockError("alpha|ALP", errors.New("timeout")), http.StatusServiceUnavailable},
		{errors.New("unexpected"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		svc := newMockProjectService()
		svc.upsertFunc = func(context.Context, types.Document, string) (*service.UpsertResult, error) {
			return nil, tt.err
		}
		rec := doRequest(t, newTestServer(svc), http.MethodPost, "/api/sources/coingecko/projects", map[string]interface{}{"project_name": "x"})
		assert.Equal(t, tt.code, rec.Code, tt.err.Error())
	}
}

func TestBulkUpsert(t *testing.T) {
	svc := newMockProjectService()
	s := newTestServer(svc)

	rec := doRequest(t, s, http.MethodPost, "/api/sources/dextools/projects:bulk", []map[string]interface{}{
		{"project_name": "A", "project_ticker": "A"},
		{"project_ticker": "B"},
		{"project_name": "C", "project_ticker": "C"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Len(t, body["project_uids"], 2)
	failed := body["failed"].([]interface{})
	require.Len(t, failed, 1)
	assert.Equal(t, float64(1), failed[0].(map[string]interface{})["index"])
	assert.Equal(t, 1, svc.bulkCalls)

	rec = doRequest(t, s, http.MethodPost, "/api/sources/dextools/projects:bulk", map[string]interface{}{"project_name": "A"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPreview(t *testing.T) {
	rec := doRequest(t, newTestServer(newMockProjectService()), http.MethodPost, "/api/sources/coingecko/projects:preview", map[string]interface{}{
		"project_name": "Digital Gold", "project_ticker": "GOLD", "about": "new",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "new", body["after"].(map[string]interface{})["about"])
	assert.Equal(t, "uid-1", body["before"].(map[string]interface{})["project_uid"])
}

func TestGetProject(t *testing.T) {
	s := newTestServer(newMockProjectService())

	rec := doRequest(t, s, http.MethodGet, "/api/projects/uid-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "Digital Gold", body["project_name"])
	assert.Equal(t, "2024-01-02 03:04:05", body["created_at"])
	assert.Equal(t, map[string]interface{}{
		"coingecko": map[string]interface{}{"url": "https://cg.example/gold", "last_updated": "2024-01-02"},
	}, body["sources"])

	rec = doRequest(t, s, http.MethodGet, "/api/projects/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	errBody := decode(t, rec)["error"].(map[string]interface{})
	assert.Equal(t, apperrors.CodeNotFound, errBody["code"])
	assert.Equal(t, "missing", errBody["details"].(map[string]interface{})["id"])

	rec = doRequest(t, s, http.MethodGet, "/api/projects/boom", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestGetByName(t *testing.T) {
	s := newTestServer(newMockProjectService())

	rec := doRequest(t, s, http.MethodGet, "/api/projects?name=Digital+Gold", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "uid-1", decode(t, rec)["project_uid"])

	rec = doRequest(t, s, http.MethodGet, "/api/projects?name=Nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/api/projects", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	errBody := decode(t, rec)["error"].(map[string]interface{})
	assert.Equal(t, apperrors.CodeInvalidParameter, errBody["code"])
	assert.Equal(t, "name", errBody["details"].(map[string]interface{})["parameter"])
}

func TestListEndpoints(t *testing.T) {
	svc := newMockProjectService()
	s := newTestServer(svc)

	rec := doRequest(t, s, http.MethodGet, "/api/sources/coingecko/projects", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decode(t, rec)["count"])
	assert.Equal(t, "coingecko", svc.lastSource)

	rec = doRequest(t, s, http.MethodGet, "/api/categories/DeFi/projects", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, float64(0), body["count"])
	assert.Equal(t, []interface{}{}, body["projects"])
}

func TestStats(t *testing.T) {
	rec := doRequest(t, newTestServer(newMockProjectService()), http.MethodGet, "/api/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, float64(1), body["total_projects"])
	assert.Equal(t, map[string]interface{}{"coingecko": float64(1), "dextools": float64(0)}, body["projects_per_source"])
}

func TestDuplicates(t *testing.T) {
	svc := newMockProjectService()
	rec := doRequest(t, newTestServer(svc), http.MethodGet, "/api/reports/duplicates?exclude=socials,+telegram_admins&exclude=about", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"socials", "telegram_admins", "about"}, svc.lastExclude)

	body := decode(t, rec)
	groups := body["duplicates"].([]interface{})
	require.Len(t, groups, 1)
	assert.Equal(t, "GOLD", groups[0].(map[string]interface{})["project_ticker"])
	assert.Equal(t, float64(2), groups[0].(map[string]interface{})["count"])

	rec = doRequest(t, newTestServer(svc), http.MethodGet, "/api/reports/duplicates?exclude=about,project_ticker", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, apperrors.CodeInvalidParameter, decode(t, rec)["error"].(map[string]interface{})["code"])
}

func TestIngestRateLimitPerSource(t *testing.T) {
	cfg := DefaultServerConfig()
	cfg.IngestRPS = 1
	cfg.IngestBurst = 1
	s := NewServer(cfg, newMockProjectService())

	payload := map[string]interface{}{"project_name": "A", "project_ticker": "A"}
	assert.Equal(t, http.StatusCreated, doRequest(t, s, http.MethodPost, "/api/sources/coingecko/projects", payload).Code)
	limited := doRequest(t, s, http.MethodPost, "/api/sources/coingecko/projects", payload)
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Equal(t, "1", limited.Header().Get("Retry-After"))
	assert.Equal(t, apperrors.CodeRateLimit, decode(t, limited)["error"].(map[string]interface{})["code"])
	// other sources have their own budget
	assert.Equal(t, http.StatusCreated, doRequest(t, s, http.MethodPost, "/api/sources/dextools/projects", payload).Code)
	// reads are not limited
	assert.Equal(t, http.StatusOK, doRequest(t, s, http.MethodGet, "/api/sources/coingecko/projects", nil).Code)
}

func TestCORSHeaders(t *testing.T) {
	s := newTestServer(newMockProjectService())

	rec := doRequest(t, s, http.MethodGet, "/api/stats", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := RecoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRateLimiter_Disabled(t *testing.T) {
	rl := NewRateLimiter(0, 0)
	assert.False(t, rl.Enabled())
	for i := 0; i < 100; i++ {
		assert.True(t, rl.Allow("coingecko"))
	}
}

func TestRateLimiter_SourceKeyNormalised(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	assert.True(t, rl.Allow("CoinGecko"))
	assert.False(t, rl.Allow(" coingecko "))
}
