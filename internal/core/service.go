// Package core wires a document store backend to the observability stack and
// exposes backend selection for the rest of the process.
package core

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"docucore/internal/metrics"
	"docucore/pkg/domain"
)

// Compile-time contract assertion: the service is itself a store, so
// transports depend on one type regardless of instrumentation.
var _ domain.Store = (*Service)(nil)

// Service decorates a backend with structured logging and Prometheus
// instrumentation. It owns no document semantics of its own.
type Service struct {
	store   domain.Store
	log     zerolog.Logger
	metrics *metrics.Metrics
}

// NewService wraps store with observability.
func NewService(store domain.Store, log zerolog.Logger, m *metrics.Metrics) *Service {
	return &Service{store: store, log: log, metrics: m}
}

// Driver reports the wrapped backend's discriminator.
func (s *Service) Driver() domain.Driver { return s.store.Driver() }

// Create persists a new document at version 1.
func (s *Service) Create(ctx context.Context, draft domain.DocumentDraft) (domain.Document, error) {
	start := time.Now()
	doc, err := s.store.Create(ctx, draft)
	s.observe("Create", doc.ID, start, err)
	return doc, err
}

// GetLatest returns the current version of id.
func (s *Service) GetLatest(ctx context.Context, id string) (domain.Document, error) {
	start := time.Now()
	doc, err := s.store.GetLatest(ctx, id)
	s.observe("GetLatest", id, start, err)
	return doc, err
}

// Update appends a new version with the patch applied.
func (s *Service) Update(ctx context.Context, id string, patch domain.DocumentPatch) (domain.Document, error) {
	start := time.Now()
	doc, err := s.store.Update(ctx, id, patch)
	s.observe("Update", id, start, err)
	return doc, err
}

// CreateVersion checkpoints the current payload into a new version.
func (s *Service) CreateVersion(ctx context.Context, id string) (domain.Document, error) {
	start := time.Now()
	doc, err := s.store.CreateVersion(ctx, id)
	s.observe("CreateVersion", id, start, err)
	return doc, err
}

// ListLatest pages current versions, newest first.
func (s *Service) ListLatest(ctx context.Context, opts domain.ListOptions) (domain.Page, error) {
	start := time.Now()
	page, err := s.store.ListLatest(ctx, opts)
	s.observe("ListLatest", "", start, err)
	return page, err
}

// AuditTrail returns every version of id ascending.
func (s *Service) AuditTrail(ctx context.Context, id string) ([]domain.Document, error) {
	start := time.Now()
	trail, err := s.store.AuditTrail(ctx, id)
	s.observe("AuditTrail", id, start, err)
	return trail, err
}

// observe records one store call. NotFound, conflicts and bad tokens are
// expected caller-facing outcomes and stay below the error level.
func (s *Service) observe(operation, id string, start time.Time, err error) {
	duration := time.Since(start)
	if s.metrics != nil {
		s.metrics.ObserveStoreOperation(operation, duration, err)
	}

	status := metrics.StatusLabel(err)
	var event *zerolog.Event
	switch status {
	case "ok":
		event = s.log.Debug()
	case "error":
		event = s.log.Error().Err(err)
	default:
		event = s.log.Debug().Err(err)
	}
	if id != "" {
		event = event.Str("document_id", id)
	}
	event.
		Str("operation", operation).
		Str("status", status).
		Dur("duration", duration).
		Msg("store operation")
}
