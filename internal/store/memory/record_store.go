// Package memory provides an in-process [release.RecordStore], used by tests
// and by dry runs that must not touch the on-disk store.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"relctl/internal/release"
)

// RecordStore is a [release.RecordStore] held in memory.
type RecordStore struct {
	mu      sync.RWMutex
	records map[string]release.Record
	order   []string
	current map[string]string
}

var _ release.RecordStore = (*RecordStore)(nil)

// NewRecordStore returns an empty store.
func NewRecordStore() *RecordStore {
	return &RecordStore{
		records: make(map[string]release.Record),
		current: make(map[string]string),
	}
}

func (s *RecordStore) Begin(_ context.Context, rec release.Record) (release.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[rec.ID]; ok {
		return release.Record{}, fmt.Errorf("release record %q already exists: %w", rec.ID, release.ErrInvalidRecord)
	}
	if !rec.Terminal() {
		for _, id := range s.order {
			other := s.records[id]
			if other.Namespace == rec.Namespace && !other.Terminal() {
				return release.Record{}, fmt.Errorf("namespace %q: %w", rec.Namespace, release.ErrReleaseInProgress)
			}
		}
	}

	rec.PreviousGoodID = s.current[rec.Namespace]
	s.records[rec.ID] = clone(rec)
	s.order = append(s.order, rec.ID)
	return clone(rec), nil
}

func (s *RecordStore) Update(_ context.Context, rec release.Record) error {
	if rec.State == release.StateSucceeded {
		return fmt.Errorf("record %q: succeeded records must be promoted: %w", rec.ID, release.ErrInvalidRecord)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateLocked(rec)
}

func (s *RecordStore) Promote(_ context.Context, rec release.Record) error {
	if rec.State != release.StateSucceeded {
		return fmt.Errorf("record %q in state %s cannot be promoted: %w", rec.ID, rec.State, release.ErrInvalidRecord)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.updateLocked(rec); err != nil {
		return err
	}
	s.current[rec.Namespace] = rec.ID
	return nil
}

func (s *RecordStore) updateLocked(rec release.Record) error {
	existing, ok := s.records[rec.ID]
	if !ok {
		return fmt.Errorf("release record %q: %w", rec.ID, release.ErrNotFound)
	}
	if existing.Terminal() {
		return fmt.Errorf("release record %q: %w", rec.ID, release.ErrRecordFinalized)
	}

	// Identity and the spec snapshot are fixed at Begin.
	existing.State = rec.State
	existing.Outcome = rec.Outcome
	existing.FinishedAt = rec.FinishedAt
	existing.ErrorKind = rec.ErrorKind
	existing.Error = rec.Error
	existing.RollbackError = rec.RollbackError
	s.records[rec.ID] = existing
	return nil
}

func (s *RecordStore) Get(_ context.Context, id string) (release.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return release.Record{}, fmt.Errorf("release record %q: %w", id, release.ErrNotFound)
	}
	return clone(rec), nil
}

func (s *RecordStore) Current(_ context.Context, namespace string) (release.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.current[namespace]
	if !ok {
		return release.Record{}, fmt.Errorf("current release of %q: %w", namespace, release.ErrNotFound)
	}
	return clone(s.records[id]), nil
}

func (s *RecordStore) InFlight(_ context.Context, namespace string) (release.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.order {
		rec := s.records[id]
		if rec.Namespace == namespace && !rec.Terminal() {
			return clone(rec), nil
		}
	}
	return release.Record{}, fmt.Errorf("in-flight release of %q: %w", namespace, release.ErrNotFound)
}

func (s *RecordStore) List(_ context.Context, namespace string) ([]release.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []release.Record
	for _, id := range s.order {
		if rec := s.records[id]; rec.Namespace == namespace {
			out = append(out, clone(rec))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out, nil
}

func clone(rec release.Record) release.Record {
	rec.Spec = rec.Spec.Clone()
	return rec
}
