// Package store persists the records behind every screen.
package store

import (
	"context"
	"errors"
	"time"

	"adminkit/internal/schema"
)

var (
	ErrNotFound        = errors.New("record not found")
	ErrVersionConflict = errors.New("version conflict")
)

type Record struct {
	ID        string         `json:"id"`
	Version   int64          `json:"version"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	Deleted   bool           `json:"-"`
	Data      map[string]any `json:"data"`
}

// Flatten merges the system fields into the record data. Data keys clashing
// with a system field are kept under "data.<key>".
func Flatten(rec *Record) map[string]any {
	out := map[string]any{
		"id":         rec.ID,
		"version":    rec.Version,
		"created_at": rec.CreatedAt.Format(time.RFC3339),
		"updated_at": rec.UpdatedAt.Format(time.RFC3339),
	}
	for k, v := range rec.Data {
		if _, clash := out[k]; clash {
			out["data."+k] = v
			continue
		}
		out[k] = v
	}
	return out
}

// Store keeps records per screen. Deletes are soft.
type Store interface {
	// List returns one page of the records matching p and the total match count.
	List(ctx context.Context, screen string, fields schema.Schema, p ListParams) ([]*Record, int, error)
	Get(ctx context.Context, screen, id string) (*Record, error)
	Create(ctx context.Context, screen string, data map[string]any) (*Record, error)
	// Update replaces the data of id. A non-zero expectedVersion must match the
	// stored version.
	Update(ctx context.Context, screen, id string, data map[string]any, expectedVersion int64) (*Record, error)
	Delete(ctx context.Context, screen, id string) error
	// BatchDelete deletes every existing id and returns the ids it deleted.
	BatchDelete(ctx context.Context, screen string, ids []string) ([]string, error)
	Close() error
}

// DriverMemory keeps records in process memory.
const DriverMemory = "memory"

// Open returns the store for driver; an empty driver is the memory store.
func Open(driver, url string) (Store, error) {
	if driver == "" || driver == DriverMemory {
		return NewMemory(), nil
	}
	return OpenSQL(driver, url)
}
