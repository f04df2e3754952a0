package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	apperrors "github.com/project-reconciler/internal/errors"
	"github.com/project-reconciler/internal/models"
	"github.com/project-reconciler/internal/types"
)

const projectColumns = `project_uid, project_name, project_ticker, created_at, sources, document, version, updated_at`

// categoryMatch is true when the document's category list holds $1,
// compared case-insensitively. Non-list categories never match.
const categoryMatch = `EXISTS (
	SELECT 1 FROM jsonb_array_elements_text(
		CASE WHEN jsonb_typeof(document->'category') = 'array'
			THEN document->'category' ELSE '[]'::jsonb END
	) AS c(tag)
	WHERE lower(c.tag) = lower($1)
)`

// ProjectRepository handles project record persistence
type ProjectRepository struct {
	db *PostgresDB
}

// NewProjectRepository creates a new project repository
func NewProjectRepository(db *PostgresDB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// FindByIdentity returns the record whose name matches case-insensitively
// and whose ticker matches exactly. When historical duplicates exist the
// oldest record wins. Returns nil when nothing matches.
func (r *ProjectRepository) FindByIdentity(ctx context.Context, name, ticker string) (*models.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects
		WHERE lower(project_name) = lower($1) AND project_ticker = $2
		ORDER BY created_at, project_uid
		LIMIT 1`

	p, err := scanProject(r.db.Pool().QueryRow(ctx, query, name, ticker))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewPersistenceError("find project by identity", err)
	}
	return p, nil
}

// GetByUID returns the record with the given uid, or nil.
func (r *ProjectRepository) GetByUID(ctx context.Context, uid string) (*models.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE project_uid = $1`

	p, err := scanProject(r.db.Pool().QueryRow(ctx, query, uid))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewPersistenceError("get project", err)
	}
	return p, nil
}

// GetByName returns the oldest record with the given name, compared
// case-insensitively, or nil.
func (r *ProjectRepository) GetByName(ctx context.Context, name string) (*models.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects
		WHERE lower(project_name) = lower($1)
		ORDER BY created_at, project_uid
		LIMIT 1`

	p, err := scanProject(r.db.Pool().QueryRow(ctx, query, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewPersistenceError("get project by name", err)
	}
	return p, nil
}

// ListBySource returns every record the source has reported.
func (r *ProjectRepository) ListBySource(ctx context.Context, source string) ([]*models.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects
		WHERE sources ? $1
		ORDER BY project_name, project_uid`
	return r.list(ctx, "list projects by source", query, source)
}

// ListByCategory returns every record tagged with the category.
func (r *ProjectRepository) ListByCategory(ctx context.Context, category string) ([]*models.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects
		WHERE ` + categoryMatch + `
		ORDER BY project_name, project_uid`
	return r.list(ctx, "list projects by category", query, category)
}

// Insert stores a new record at version 1.
func (r *ProjectRepository) Insert(ctx context.Context, p *models.Project) error {
	sources, document, err := encodeProject(p)
	if err != nil {
		return apperrors.NewPersistenceError("encode project", err)
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO projects (` + projectColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, 1, $7)
	`
	if _, err := r.db.Pool().Exec(ctx, query,
		p.UID, p.Name, p.Ticker, p.CreatedAt, sources, document, now,
	); err != nil {
		return apperrors.NewPersistenceError("insert project", err)
	}

	p.Version = 1
	p.UpdatedAt = now
	return nil
}

// Update replaces the record's sources and document if it is still at
// expectedVersion. A record that moved on yields a version conflict error.
func (r *ProjectRepository) Update(ctx context.Context, p *models.Project, expectedVersion int64) error {
	sources, document, err := encodeProject(p)
	if err != nil {
		return apperrors.NewPersistenceError("encode project", err)
	}

	now := time.Now().UTC()
	query := `
		UPDATE projects
		SET sources = $3, document = $4, version = version + 1, updated_at = $5
		WHERE project_uid = $1 AND version = $2
	`
	tag, err := r.db.Pool().Exec(ctx, query, p.UID, expectedVersion, sources, document, now)
	if err != nil {
		return apperrors.NewPersistenceError("update project", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NewVersionConflictError(p.UID)
	}

	p.Version = expectedVersion + 1
	p.UpdatedAt = now
	return nil
}

// Stats returns the number of records and the number reported by each source.
func (r *ProjectRepository) Stats(ctx context.Context) (*models.StoreStats, error) {
	stats := &models.StoreStats{BySource: map[string]int64{}}

	if err := r.db.Pool().QueryRow(ctx, `SELECT count(*) FROM projects`).Scan(&stats.Total); err != nil {
		return nil, apperrors.NewPersistenceError("count projects", err)
	}

	rows, err := r.db.Pool().Query(ctx, `
		SELECT s.source, count(*)
		FROM projects, jsonb_object_keys(sources) AS s(source)
		GROUP BY s.source
	`)
	if err != nil {
		return nil, apperrors.NewPersistenceError("count projects by source", err)
	}
	defer rows.Close()

	for rows.Next() {
		var source string
		var count int64
		if err := rows.Scan(&source, &count); err != nil {
			return nil, apperrors.NewPersistenceError("scan source count", err)
		}
		stats.BySource[source] = count
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewPersistenceError("iterate source counts", err)
	}
	return stats, nil
}

// DuplicateTickers returns the records of every ticker held by more than one
// record, largest groups first.
func (r *ProjectRepository) DuplicateTickers(ctx context.Context) ([]models.TickerGroup, error) {
	rows, err := r.db.Pool().Query(ctx, `
		SELECT `+projectColumns+` FROM projects
		WHERE project_ticker IN (
			SELECT project_ticker FROM projects
			GROUP BY project_ticker
			HAVING count(*) > 1
		)
		ORDER BY project_ticker, created_at, project_uid
	`)
	if err != nil {
		return nil, apperrors.NewPersistenceError("find duplicate tickers", err)
	}
	defer rows.Close()

	var groups []models.TickerGroup
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, apperrors.NewPersistenceError("scan duplicate ticker", err)
		}
		if n := len(groups); n > 0 && groups[n-1].Ticker == p.Ticker {
			groups[n-1].Projects = append(groups[n-1].Projects, p)
			continue
		}
		groups = append(groups, models.TickerGroup{Ticker: p.Ticker, Projects: []*models.Project{p}})
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewPersistenceError("iterate duplicate tickers", err)
	}

	models.SortTickerGroups(groups)
	return groups, nil
}

func (r *ProjectRepository) list(ctx context.Context, op, query string, args ...interface{}) ([]*models.Project, error) {
	rows, err := r.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewPersistenceError(op, err)
	}
	defer rows.Close()

	var projects []*models.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, apperrors.NewPersistenceError(op, err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewPersistenceError(op, err)
	}
	return projects, nil
}

func encodeProject(p *models.Project) (sources, document []byte, err error) {
	srcs := p.Sources
	if srcs == nil {
		srcs = map[string]models.SourceEntry{}
	}
	if sources, err = json.Marshal(srcs); err != nil {
		return nil, nil, fmt.Errorf("marshal sources: %w", err)
	}
	fields := p.Fields
	if fields == nil {
		fields = types.Document{}
	}
	if document, err = json.Marshal(fields); err != nil {
		return nil, nil, fmt.Errorf("marshal document: %w", err)
	}
	return sources, document, nil
}

func scanProject(row pgx.Row) (*models.Project, error) {
	var p models.Project
	var sources, document []byte
	var updatedAt *time.Time

	if err := row.Scan(
		&p.UID, &p.Name, &p.Ticker, &p.CreatedAt,
		&sources, &document, &p.Version, &updatedAt,
	); err != nil {
		return nil, err
	}

	p.CreatedAt = p.CreatedAt.UTC()
	if updatedAt != nil {
		p.UpdatedAt = updatedAt.UTC()
	}
	if len(sources) > 0 {
		if err := json.Unmarshal(sources, &p.Sources); err != nil {
			return nil, fmt.Errorf("unmarshal sources of %s: %w", p.UID, err)
		}
	}
	if len(document) > 0 {
		if err := json.Unmarshal(document, &p.Fields); err != nil {
			return nil, fmt.Errorf("unmarshal document of %s: %w", p.UID, err)
		}
	}
	return &p, nil
}
