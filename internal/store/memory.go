package store

import (
	"context"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"adminkit/internal/schema"
)

// Memory keeps records in process memory.
type Memory struct {
	mu      sync.RWMutex
	data    map[string]map[string]*Record // screen -> id -> record
	entropy io.Reader
}

func NewMemory() *Memory {
	src := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &Memory{
		data:    make(map[string]map[string]*Record),
		entropy: ulid.Monotonic(src, 0),
	}
}

// newID must be called with m.mu held; the monotonic reader is not safe for
// concurrent use.
func (m *Memory) newID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), m.entropy).String()
}

func (m *Memory) List(_ context.Context, screen string, fields schema.Schema, p ListParams) ([]*Record, int, error) {
	m.mu.RLock()
	recMap := m.data[screen]
	all := make([]*Record, 0, len(recMap))
	for _, r := range recMap {
		if !r.Deleted {
			all = append(all, copyRecord(r))
		}
	}
	m.mu.RUnlock()

	page, total := Apply(all, fields, p)
	return page, total, nil
}

func (m *Memory) Get(_ context.Context, screen, id string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec := m.data[screen][id]
	if rec == nil || rec.Deleted {
		return nil, ErrNotFound
	}
	return copyRecord(rec), nil
}

func (m *Memory) Create(_ context.Context, screen string, data map[string]any) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data[screen] == nil {
		m.data[screen] = make(map[string]*Record)
	}
	now := time.Now().UTC()
	rec := &Record{
		ID:        m.newID(),
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
		Data:      cloneData(data),
	}
	m.data[screen][rec.ID] = rec
	return copyRecord(rec), nil
}

func (m *Memory) Update(_ context.Context, screen, id string, data map[string]any, expectedVersion int64) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.data[screen][id]
	if rec == nil || rec.Deleted {
		return nil, ErrNotFound
	}
	if expectedVersion != 0 && expectedVersion != rec.Version {
		return nil, ErrVersionConflict
	}
	rec.Data = cloneData(data)
	rec.Version++
	rec.UpdatedAt = time.Now().UTC()
	return copyRecord(rec), nil
}

func (m *Memory) Delete(_ context.Context, screen, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.data[screen][id]
	if rec == nil || rec.Deleted {
		return ErrNotFound
	}
	rec.Deleted = true
	rec.Version++
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Memory) BatchDelete(_ context.Context, screen string, ids []string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	var deleted []string
	for _, id := range ids {
		rec := m.data[screen][id]
		if rec == nil || rec.Deleted {
			continue
		}
		rec.Deleted = true
		rec.Version++
		rec.UpdatedAt = now
		deleted = append(deleted, id)
	}
	return deleted, nil
}

func (m *Memory) Close() error { return nil }

func copyRecord(r *Record) *Record {
	cp := *r
	cp.Data = cloneData(r.Data)
	return &cp
}

func cloneData(d map[string]any) map[string]any {
	out := make(map[string]any, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}
