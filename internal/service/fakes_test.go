package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"compass/internal/model"
	"compass/internal/repository"
	"compass/internal/softdelete"
)

// passThroughTx runs fn without a real transaction.
type passThroughTx struct{}

func (passThroughTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type memStore struct {
	mu          sync.Mutex
	descriptor  softdelete.Descriptor
	records     map[string]softdelete.Record
	hardDeletes int
	failHard    map[string]error
}

func newMemStore(descriptor softdelete.Descriptor, records ...softdelete.Record) *memStore {
	s := &memStore{descriptor: descriptor, records: map[string]softdelete.Record{}, failHard: map[string]error{}}
	for _, r := range records {
		s.records[r.Ref().Key()] = r
	}
	return s
}

func divisionStore(records ...softdelete.Record) *memStore {
	return newMemStore(softdelete.Descriptor{Type: model.TypeDivision, Slug: model.SlugDivisions, KeyKind: softdelete.KeyInt}, records...)
}

func templateStore(records ...softdelete.Record) *memStore {
	return newMemStore(softdelete.Descriptor{Type: model.TypeEmailTemplate, Slug: model.SlugEmailTemplates, KeyKind: softdelete.KeyUUID}, records...)
}

func (s *memStore) Descriptor() softdelete.Descriptor { return s.descriptor }

func (s *memStore) Find(_ context.Context, ref softdelete.EntityRef, mode softdelete.Visibility) (softdelete.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[ref.Key()]
	if !ok || (mode == softdelete.Default && r.IsDeleted()) {
		return nil, softdelete.ErrNotFound
	}
	return cloneRecord(r), nil
}

func (s *memStore) SaveDeletionState(_ context.Context, record softdelete.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.records[record.Ref().Key()]
	if !ok {
		return softdelete.ErrNotFound
	}
	if record.IsDeleted() {
		stored.MarkDeleted(*record.DeletedAt())
	} else {
		stored.MarkRestored()
	}
	return nil
}

func (s *memStore) HardDelete(_ context.Context, ref softdelete.EntityRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.failHard[ref.Key()]; err != nil {
		return err
	}
	if _, ok := s.records[ref.Key()]; !ok {
		return softdelete.ErrNotFound
	}
	delete(s.records, ref.Key())
	s.hardDeletes++
	return nil
}

func (s *memStore) get(key string) (softdelete.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[key]
	return r, ok
}

func cloneRecord(r softdelete.Record) softdelete.Record {
	switch v := r.(type) {
	case *model.Division:
		c := *v
		return &c
	case *model.EmailTemplate:
		c := *v
		return &c
	default:
		panic(fmt.Sprintf("unexpected record %T", r))
	}
}

type memTombstones struct {
	mu    sync.Mutex
	items map[uuid.UUID]softdelete.Tombstone
}

func newMemTombstones(items ...softdelete.Tombstone) *memTombstones {
	m := &memTombstones{items: map[uuid.UUID]softdelete.Tombstone{}}
	for _, t := range items {
		m.items[t.ID] = t
	}
	return m
}

func (m *memTombstones) Create(_ context.Context, t softdelete.Tombstone) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.items {
		if existing.Ref == t.Ref && !existing.IsRestored() {
			return softdelete.ErrNotFound
		}
	}
	m.items[t.ID] = t
	return nil
}

func (m *memTombstones) FindActive(_ context.Context, ref softdelete.EntityRef) (softdelete.Tombstone, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range m.items {
		if t.Ref == ref && !t.IsRestored() {
			return t, nil
		}
	}
	return softdelete.Tombstone{}, softdelete.ErrNotFound
}

func (m *memTombstones) FindActiveByID(_ context.Context, id uuid.UUID) (softdelete.Tombstone, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.items[id]
	if !ok || t.IsRestored() {
		return softdelete.Tombstone{}, softdelete.ErrNotFound
	}
	return t, nil
}

func (m *memTombstones) MarkRestored(_ context.Context, id uuid.UUID, at time.Time, by *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.items[id]
	if !ok || t.IsRestored() {
		return softdelete.ErrNotFound
	}
	t.RestoredAt = &at
	t.RestoredBy = by
	m.items[id] = t
	return nil
}

func (m *memTombstones) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.items[id]; !ok || t.IsRestored() {
		return softdelete.ErrNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *memTombstones) List(_ context.Context, filter repository.TombstoneFilter) ([]softdelete.Tombstone, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []softdelete.Tombstone
	for _, t := range m.items {
		if t.IsRestored() {
			continue
		}
		if filter.EntityType != "" && string(t.Ref.Type) != filter.EntityType {
			continue
		}
		if filter.ScopeField != "" && fmt.Sprint(t.Snapshot[filter.ScopeField]) != filter.ScopeValue {
			continue
		}
		matched = append(matched, t)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].DeletedAt.After(matched[j].DeletedAt) })

	total := len(matched)
	if filter.Offset >= total {
		return nil, total, nil
	}
	end := filter.Offset + filter.Limit
	if end > total {
		end = total
	}
	return matched[filter.Offset:end], total, nil
}

func (m *memTombstones) ListExpired(_ context.Context, now time.Time, limit int) ([]softdelete.Tombstone, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var expired []softdelete.Tombstone
	for _, t := range m.items {
		if !t.IsRestored() && !t.ExpiresAt.After(now) {
			expired = append(expired, t)
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].ExpiresAt.Before(expired[j].ExpiresAt) })
	if len(expired) > limit {
		expired = expired[:limit]
	}
	return expired, nil
}

func (m *memTombstones) get(id uuid.UUID) (softdelete.Tombstone, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.items[id]
	return t, ok
}

func (m *memTombstones) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

var errBoom = errors.New("boom")

var (
	staff = model.AuditActor{UserID: "7f1c1f1e-4a55-4d0e-9c1e-2b8a7e7a0c01", Username: "amina", Role: "staff"}
	admin = model.AuditActor{UserID: "9a0e2b44-61c2-4a53-8f39-3d5b3f0a6d10", Username: "root", Role: "super_admin", Elevated: true}
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
