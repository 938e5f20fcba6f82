// Package crud runs search, pagination and mutations of one table view
// against a resource.
package crud

import (
	"context"
	"errors"
	"fmt"
)

// Record is one row as returned by a resource.
type Record map[string]any

// ID returns the row key value rendered as a string.
func (r Record) ID(rowKey string) string {
	v, ok := r[rowKey]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	if f, ok := v.(float64); ok && f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprint(v)
}

// Query is a list request: search parameters plus pagination.
type Query struct {
	Params   map[string]any
	Page     int
	PageSize int
}

// ListResult is one page of rows and the total row count.
type ListResult struct {
	Rows  []Record `json:"rows"`
	Total int      `json:"total"`
}

// Resource is the backend of a table view.
type Resource interface {
	List(ctx context.Context, q Query) (ListResult, error)
	Create(ctx context.Context, payload Record) error
	Update(ctx context.Context, id string, payload Record) error
	Delete(ctx context.Context, id string) error
	BatchDelete(ctx context.Context, ids []string) error
}

var ErrNotSupported = errors.New("operation not supported by resource")

// Funcs is a Resource assembled from functions. A nil function makes the
// operation fail with ErrNotSupported; a nil BatchDelete falls back to Delete
// per id.
type Funcs struct {
	ListFn        func(ctx context.Context, q Query) (ListResult, error)
	CreateFn      func(ctx context.Context, payload Record) error
	UpdateFn      func(ctx context.Context, id string, payload Record) error
	DeleteFn      func(ctx context.Context, id string) error
	BatchDeleteFn func(ctx context.Context, ids []string) error
}

func (f *Funcs) List(ctx context.Context, q Query) (ListResult, error) {
	if f.ListFn == nil {
		return ListResult{}, fmt.Errorf("list: %w", ErrNotSupported)
	}
	return f.ListFn(ctx, q)
}

func (f *Funcs) Create(ctx context.Context, payload Record) error {
	if f.CreateFn == nil {
		return fmt.Errorf("create: %w", ErrNotSupported)
	}
	return f.CreateFn(ctx, payload)
}

func (f *Funcs) Update(ctx context.Context, id string, payload Record) error {
	if f.UpdateFn == nil {
		return fmt.Errorf("update: %w", ErrNotSupported)
	}
	return f.UpdateFn(ctx, id, payload)
}

func (f *Funcs) Delete(ctx context.Context, id string) error {
	if f.DeleteFn == nil {
		return fmt.Errorf("delete: %w", ErrNotSupported)
	}
	return f.DeleteFn(ctx, id)
}

func (f *Funcs) BatchDelete(ctx context.Context, ids []string) error {
	if f.BatchDeleteFn != nil {
		return f.BatchDeleteFn(ctx, ids)
	}
	if f.DeleteFn == nil {
		return fmt.Errorf("batch delete: %w", ErrNotSupported)
	}
	for _, id := range ids {
		if err := f.DeleteFn(ctx, id); err != nil {
			return err
		}
	}
	return nil
}
