package api

import (
	"context"

	"adminkit/internal/crud"
	"adminkit/internal/project"
	"adminkit/internal/schema"
	"adminkit/internal/store"
)

// storeResource binds one screen of the record store as the resource of a
// mounted table. Payloads go through the same checks as the REST endpoints.
func (s *Service) storeResource(scr *schema.Screen) *crud.Funcs {
	return &crud.Funcs{
		ListFn: func(ctx context.Context, q crud.Query) (crud.ListResult, error) {
			lp := store.ParseListParams(crud.EncodeQuery(q))
			recs, total, err := s.Store.List(ctx, scr.Name, scr.Fields, lp)
			if err != nil {
				return crud.ListResult{}, err
			}
			rows := make([]crud.Record, len(recs))
			for i, rec := range recs {
				rows[i] = crud.Record(store.Flatten(rec))
			}
			return crud.ListResult{Rows: rows, Total: total}, nil
		},
		CreateFn: func(ctx context.Context, payload crud.Record) error {
			obj := stripSystem(payload)
			if errs := s.preparePayload(scr, obj, project.Create); len(errs) > 0 {
				return &ValidationError{Errors: errs}
			}
			_, err := s.Store.Create(ctx, scr.Name, obj)
			return err
		},
		UpdateFn: func(ctx context.Context, id string, payload crud.Record) error {
			obj := stripSystem(payload)
			expVer, _ := versionOf(obj)
			if errs := s.preparePayload(scr, obj, project.Edit); len(errs) > 0 {
				return &ValidationError{Errors: errs}
			}
			_, err := s.Store.Update(ctx, scr.Name, id, obj, expVer)
			return err
		},
		DeleteFn: func(ctx context.Context, id string) error {
			return s.Store.Delete(ctx, scr.Name, id)
		},
		BatchDeleteFn: func(ctx context.Context, ids []string) error {
			_, err := s.Store.BatchDelete(ctx, scr.Name, ids)
			return err
		},
	}
}

// stripSystem copies a row payload without the store-maintained fields a
// table row carries back; version stays as the optimistic-lock hint.
func stripSystem(payload crud.Record) map[string]any {
	obj := make(map[string]any, len(payload))
	for k, v := range payload {
		switch k {
		case "id", "created_at", "updated_at":
			continue
		}
		obj[k] = v
	}
	return obj
}
