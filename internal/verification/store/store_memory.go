package store

import (
	"context"
	"encoding/json"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/Khrees2412/provepoc/internal/verification/models"
	"github.com/Khrees2412/provepoc/pkg/platform/sentinel"
)

// InMemoryStore keeps verifications in process memory. Used by unit tests and
// local runs without DATABASE_URL.
type InMemoryStore struct {
	mu          sync.RWMutex
	byReference map[string]*models.Verification
	ids         map[string]string
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byReference: make(map[string]*models.Verification),
		ids:         make(map[string]string),
	}
}

func (s *InMemoryStore) Insert(_ context.Context, v *models.Verification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byReference[v.MonoReference]; ok {
		return sentinel.ErrConflict
	}
	if _, ok := s.ids[v.ID]; ok {
		return sentinel.ErrConflict
	}
	s.byReference[v.MonoReference] = clone(v)
	s.ids[v.ID] = v.MonoReference
	return nil
}

func (s *InMemoryStore) FindByReference(_ context.Context, reference string) (*models.Verification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.byReference[reference]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(v), nil
}

func (s *InMemoryStore) UpdateStatus(_ context.Context, reference string, status models.Status, raw json.RawMessage, now time.Time) (*models.Verification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.byReference[reference]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	v.ApplyStatus(status, slices.Clone(raw), now)
	return clone(v), nil
}

func (s *InMemoryStore) Transition(_ context.Context, reference string, to models.Status, from []models.Status, raw json.RawMessage, customerID string, now time.Time) (*models.Verification, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.byReference[reference]
	if !ok {
		return nil, false, sentinel.ErrNotFound
	}
	if !slices.Contains(from, v.Status) {
		return clone(v), false, nil
	}
	v.ApplyStatus(to, slices.Clone(raw), now)
	if customerID != "" {
		v.CustomerID = customerID
	}
	return clone(v), true, nil
}

func (s *InMemoryStore) List(_ context.Context, limit int) ([]*models.Verification, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	s.mu.RLock()
	out := make([]*models.Verification, 0, len(s.byReference))
	for _, v := range s.byReference {
		out = append(out, clone(v))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func clone(v *models.Verification) *models.Verification {
	c := *v
	c.RawResponse = slices.Clone(v.RawResponse)
	return &c
}
