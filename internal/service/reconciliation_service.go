package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/project-reconciler/internal/circuitbreaker"
	apperrors "github.com/project-reconciler/internal/errors"
	"github.com/project-reconciler/internal/lock"
	"github.com/project-reconciler/internal/logging"
	"github.com/project-reconciler/internal/merge"
	"github.com/project-reconciler/internal/models"
	"github.com/project-reconciler/internal/normalize"
	"github.com/project-reconciler/internal/priority"
	"github.com/project-reconciler/internal/retry"
	"github.com/project-reconciler/internal/types"
)

const defaultMaxConflictRetries = 5

// ReconciliationService is the single writer of canonical project records.
// It merges payloads from many sources into one record per identity.
type ReconciliationService struct {
	repo     ProjectStore
	resolver *priority.Resolver
	engine   *merge.Engine
	locker   lock.Locker

	cache         ProjectCache
	events        EventRecorder
	eventsBreaker *circuitbreaker.CircuitBreaker

	maxConflictRetries int
	now                func() time.Time
	newUID             func() string
}

// Option configures a ReconciliationService.
type Option func(*ReconciliationService)

// WithCache enables the read-through record cache.
func WithCache(cache ProjectCache) Option {
	return func(s *ReconciliationService) { s.cache = cache }
}

// WithEventRecorder enables audit events. Recording is best effort and
// guarded by a circuit breaker.
func WithEventRecorder(events EventRecorder) Option {
	return func(s *ReconciliationService) { s.events = events }
}

// WithLocker replaces the default in-process keyed mutex.
func WithLocker(l lock.Locker) Option {
	return func(s *ReconciliationService) { s.locker = l }
}

// WithEngine replaces the default merge engine.
func WithEngine(e *merge.Engine) Option {
	return func(s *ReconciliationService) { s.engine = e }
}

// WithMaxConflictRetries bounds the attempts made when a concurrent writer
// changes the record between read and write.
func WithMaxConflictRetries(n int) Option {
	return func(s *ReconciliationService) { s.maxConflictRetries = n }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *ReconciliationService) { s.now = now }
}

// WithUIDGenerator overrides project_uid generation.
func WithUIDGenerator(newUID func() string) Option {
	return func(s *ReconciliationService) { s.newUID = newUID }
}

// NewReconciliationService creates the store. resolver carries the source
// priority order.
func NewReconciliationService(repo ProjectStore, resolver *priority.Resolver, opts ...Option) *ReconciliationService {
	s := &ReconciliationService{
		repo:               repo,
		resolver:           resolver,
		engine:             merge.NewEngine(),
		locker:             lock.NewLocalLocker(0),
		eventsBreaker:      circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig("upsert-events")),
		maxConflictRetries: defaultMaxConflictRetries,
		now:                func() time.Time { return time.Now().UTC() },
		newUID:             uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.maxConflictRetries < 1 {
		s.maxConflictRetries = 1
	}
	return s
}

// Resolver returns the source priority resolver in use.
func (s *ReconciliationService) Resolver() *priority.Resolver {
	return s.resolver
}

// UpsertResult describes one persisted upsert.
type UpsertResult struct {
	Project        *models.Project
	Action         models.UpsertAction
	PreferIncoming bool
	Warnings       []normalize.Warning
	Attempts       int
}

// upsertPlan is a computed but not yet persisted upsert.
type upsertPlan struct {
	existing       *models.Project
	project        *models.Project
	preferIncoming bool
}

// ingest is a sanitised, validated payload.
type ingest struct {
	source   string
	name     string
	ticker   string
	doc      types.Document
	warnings []normalize.Warning
}

// Upsert reconciles payload reported by sourceID into the store and returns
// the uid of the record it landed in.
func (s *ReconciliationService) Upsert(ctx context.Context, payload types.Document, sourceID string) (string, error) {
	res, err := s.UpsertWithResult(ctx, payload, sourceID)
	if err != nil {
		return "", err
	}
	return res.Project.UID, nil
}

// UpsertWithResult is Upsert, also reporting what was written.
func (s *ReconciliationService) UpsertWithResult(ctx context.Context, payload types.Document, sourceID string) (*UpsertResult, error) {
	in, err := s.prepare(ctx, payload, sourceID)
	if err != nil {
		return nil, err
	}

	key := models.IdentityKey(in.name, in.ticker)
	unlock, err := s.locker.Acquire(ctx, key)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			logging.FromContext(ctx).WithField("key", key).WithError(err).Warn("failed to release upsert lock")
		}
	}()

	var result *UpsertResult
	cfg := retry.ConflictRetryConfig(s.maxConflictRetries, apperrors.IsVersionConflict)
	outcome := retry.WithExponentialBackoff(ctx, cfg, func(ctx context.Context, attempt int) error {
		p, err := s.plan(ctx, in)
		if err != nil {
			return err
		}
		if err := s.persist(ctx, p); err != nil {
			return err
		}
		result = &UpsertResult{
			Project:        p.project,
			Action:         models.UpsertInserted,
			PreferIncoming: p.preferIncoming,
			Warnings:       in.warnings,
			Attempts:       attempt,
		}
		if p.existing != nil {
			result.Action = models.UpsertUpdated
		}
		return nil
	})
	if err := outcome.Err(); err != nil {
		return nil, err
	}

	s.afterWrite(ctx, in, result)
	return result, nil
}

// PreviewResult is the outcome an upsert would have, without writing it.
type PreviewResult struct {
	// Before is nil when the upsert would create a record
	Before         *models.Project
	After          *models.Project
	PreferIncoming bool
	Warnings       []normalize.Warning
}

// Preview computes the record an upsert would produce without persisting.
func (s *ReconciliationService) Preview(ctx context.Context, payload types.Document, sourceID string) (*PreviewResult, error) {
	in, err := s.prepare(ctx, payload, sourceID)
	if err != nil {
		return nil, err
	}
	p, err := s.plan(ctx, in)
	if err != nil {
		return nil, err
	}
	return &PreviewResult{
		Before:         p.existing,
		After:          p.project,
		PreferIncoming: p.preferIncoming,
		Warnings:       in.warnings,
	}, nil
}

// prepare sanitises the payload and checks the identity fields.
func (s *ReconciliationService) prepare(ctx context.Context, payload types.Document, sourceID string) (*ingest, error) {
	in := &ingest{source: normalize.NormalizeSourceID(sourceID)}
	if in.source == "" {
		return nil, apperrors.NewValidationError("source_id", "is required")
	}

	in.doc = normalize.SanitizePayload(payload, func(w normalize.Warning) {
		in.warnings = append(in.warnings, w)
	})
	in.name = strings.TrimSpace(in.doc.String(types.FieldProjectName))
	in.ticker = models.NormalizeTicker(in.doc.String(types.FieldProjectTicker))
	if in.name == "" {
		return nil, apperrors.NewValidationError(types.FieldProjectName, "is required")
	}
	if in.ticker == "" {
		return nil, apperrors.NewValidationError(types.FieldProjectTicker, "is required")
	}
	in.doc[types.FieldProjectName] = in.name
	in.doc[types.FieldProjectTicker] = in.ticker

	if len(in.warnings) > 0 {
		logger := logging.FromContext(ctx).WithFields(map[string]interface{}{
			"source":         in.source,
			"project_name":   in.name,
			"project_ticker": in.ticker,
		})
		for _, w := range in.warnings {
			logger.WithFields(map[string]interface{}{
				"field":  w.Field,
				"reason": w.Reason,
			}).Warn("malformed field coerced")
		}
	}
	return in, nil
}

// plan reads the current record and computes the merged result.
func (s *ReconciliationService) plan(ctx context.Context, in *ingest) (*upsertPlan, error) {
	existing, err := s.repo.FindByIdentity(ctx, in.name, in.ticker)
	if err != nil {
		return nil, err
	}
	now := s.now()
	incoming := in.doc.Without(types.FieldSources)

	if existing == nil {
		p := &models.Project{
			UID:       s.newUID(),
			Name:      in.name,
			Ticker:    in.ticker,
			CreatedAt: now.Truncate(time.Second),
		}
		// merging into nothing still folds duplicate list items and admins
		merged := s.engine.Merge(types.Document{}, incoming, true)
		normalize.DefaultAdminStatuses(merged)
		p.ApplyDocument(merged)
		touchSources(p, in, now)
		return &upsertPlan{project: p, preferIncoming: true}, nil
	}

	prefer := s.resolver.PreferIncoming(existing.SourceIDs(), in.source)
	merged := s.engine.Merge(existing.Document().Without(types.FieldSources), incoming, prefer)
	normalize.DefaultAdminStatuses(merged)

	p := existing.Clone()
	p.ApplyDocument(merged)
	touchSources(p, in, now)
	return &upsertPlan{existing: existing, project: p, preferIncoming: prefer}, nil
}

func (s *ReconciliationService) persist(ctx context.Context, p *upsertPlan) error {
	if p.existing == nil {
		return s.repo.Insert(ctx, p.project)
	}
	return s.repo.Update(ctx, p.project, p.existing.Version)
}

// touchSources stamps every source the payload names, always including the
// reporting source itself.
func touchSources(p *models.Project, in *ingest, now time.Time) {
	urls, _ := in.doc[types.FieldSources].(map[string]any)
	for id, v := range urls {
		url, _ := v.(string)
		p.TouchSource(id, url, now)
	}
	url, _ := urls[in.source].(string)
	p.TouchSource(in.source, url, now)
}

// afterWrite runs the best-effort side effects of a persisted upsert.
func (s *ReconciliationService) afterWrite(ctx context.Context, in *ingest, res *UpsertResult) {
	p := res.Project
	logger := logging.FromContext(ctx).WithFields(map[string]interface{}{
		"action":          string(res.Action),
		"project_uid":     p.UID,
		"project_name":    p.Name,
		"project_ticker":  p.Ticker,
		"source":          in.source,
		"prefer_incoming": res.PreferIncoming,
	})

	// writing the new version through keeps a slower reader from caching
	// the one it replaced; dropping the entry is the fallback
	if s.cache != nil {
		if err := s.cache.Set(ctx, p); err != nil {
			logger.WithError(err).Warn("failed to cache project, invalidating")
			if err := s.cache.Invalidate(ctx, p.UID); err != nil {
				logger.WithError(err).Warn("failed to invalidate cached project")
			}
		}
	}

	if s.events != nil {
		event := &models.UpsertEvent{
			EventID:        uuid.NewString(),
			ProjectUID:     p.UID,
			ProjectName:    p.Name,
			ProjectTicker:  p.Ticker,
			Source:         in.source,
			Action:         res.Action,
			PreferIncoming: res.PreferIncoming,
			Version:        p.Version,
			Warnings:       uint32(len(res.Warnings)), // #nosec G115 - warning count is small
			Timestamp:      s.now(),
		}
		err := s.eventsBreaker.Execute(ctx, func(ctx context.Context) error {
			return s.events.Record(ctx, event)
		})
		if err != nil {
			logger.WithError(err).Warn("failed to record upsert event")
		}
	}

	logger.Info("project upserted")
}
