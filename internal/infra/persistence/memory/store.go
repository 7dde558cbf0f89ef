// Package memory provides the in-process reference implementation of the
// document store contract, used for tests and local development.
package memory

import (
	"context"
	"encoding/base64"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"docucore/pkg/domain"
)

// Compile-time contract assertion.
var _ domain.Store = (*Store)(nil)

// DefaultPageSize caps ListLatest pages when the caller supplies no limit.
const DefaultPageSize = 50

// Store holds current state plus a full per-id history list. Every mutating
// operation holds an exclusive lock for its whole read-modify-write sequence,
// so the two-write race of the durable backend cannot occur here.
type Store struct {
	mu      sync.Mutex
	latest  map[string]domain.Document
	history map[string][]domain.Document
	nowFn   func() time.Time
}

// NewStore constructs an empty in-memory document store.
func NewStore() *Store {
	return &Store{
		latest:  make(map[string]domain.Document),
		history: make(map[string][]domain.Document),
		nowFn:   func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the store's time source. Tests only.
func (s *Store) SetClock(now func() time.Time) { s.nowFn = now }

// Driver reports the backend discriminator.
func (s *Store) Driver() domain.Driver { return domain.DriverMemory }

// Create persists a new document at version 1.
func (s *Store) Create(_ context.Context, draft domain.DocumentDraft) (domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowFn()
	doc := domain.Document{
		ID:           uuid.NewString(),
		Version:      1,
		CreatedAt:    now,
		LastModified: now,
		Latest:       true,
		Title:        draft.Title,
		Content:      draft.Content,
	}
	if len(draft.Attributes) > 0 {
		doc.Attributes = make(map[string]string, len(draft.Attributes))
		for k, v := range draft.Attributes {
			doc.Attributes[k] = v
		}
	}
	s.latest[doc.ID] = doc.Clone()
	s.history[doc.ID] = append(s.history[doc.ID], doc.Clone())
	return doc, nil
}

// GetLatest returns the current version of id.
func (s *Store) GetLatest(_ context.Context, id string) (domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.latest[id]
	if !ok {
		return domain.Document{}, domain.NotFoundError{ID: id}
	}
	return doc.Clone(), nil
}

// Update appends a new version with the patch applied on top of the latest.
func (s *Store) Update(_ context.Context, id string, patch domain.DocumentPatch) (domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendVersion(id, func(next *domain.Document) { patch.Apply(next) })
}

// CreateVersion duplicates the current payload unchanged into a new version.
func (s *Store) CreateVersion(_ context.Context, id string) (domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendVersion(id, func(*domain.Document) {})
}

// appendVersion demotes the current latest and writes its successor. Callers
// hold the lock.
func (s *Store) appendVersion(id string, mutate func(*domain.Document)) (domain.Document, error) {
	prev, ok := s.latest[id]
	if !ok {
		return domain.Document{}, domain.NotFoundError{ID: id}
	}

	next := prev.Clone()
	mutate(&next)
	next.Version = prev.Version + 1
	next.CreatedAt = prev.CreatedAt
	next.LastModified = s.nowFn()
	next.Latest = true

	hist := s.history[id]
	for i := range hist {
		hist[i].Latest = false
	}
	s.history[id] = append(hist, next.Clone())
	s.latest[id] = next.Clone()
	return next, nil
}

// ListLatest filters current versions in memory and pages them with a
// position cursor encoded as the continuation token.
func (s *Store) ListLatest(_ context.Context, opts domain.ListOptions) (domain.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	offset, err := decodeOffset(opts.Token)
	if err != nil {
		return domain.Page{}, err
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultPageSize
	}

	matched := make([]domain.Document, 0, len(s.latest))
	for _, doc := range s.latest {
		if matchesFilter(doc, opts.Filter) {
			matched = append(matched, doc.Clone())
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].LastModified.Equal(matched[j].LastModified) {
			return matched[i].LastModified.After(matched[j].LastModified)
		}
		return matched[i].ID < matched[j].ID
	})

	if offset >= len(matched) {
		return domain.Page{Documents: []domain.Document{}}, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	page := domain.Page{Documents: matched[offset:end]}
	page.Total = len(page.Documents)
	if end < len(matched) {
		page.NextToken = encodeOffset(end)
	}
	return page, nil
}

// AuditTrail returns every version of id ascending. Unknown ids yield an
// empty sequence, not an error.
func (s *Store) AuditTrail(_ context.Context, id string) ([]domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hist := s.history[id]
	out := make([]domain.Document, 0, len(hist))
	for _, doc := range hist {
		out = append(out, doc.Clone())
	}
	return out, nil
}

func matchesFilter(doc domain.Document, filter map[string]string) bool {
	for k, want := range filter {
		if doc.Attributes[k] != want {
			return false
		}
	}
	return true
}

func encodeOffset(offset int) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.Itoa(offset)))
}

func decodeOffset(token string) (int, error) {
	if token == "" {
		return 0, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
	}
	offset, err := strconv.Atoi(string(raw))
	if err != nil || offset < 0 {
		return 0, fmt.Errorf("%w: not a cursor position", domain.ErrInvalidToken)
	}
	return offset, nil
}
