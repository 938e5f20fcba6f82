package api

import (
	"adminkit/internal/project"
	"adminkit/internal/resolve"
	"adminkit/internal/schema"
	"adminkit/internal/validate"
)

// preparePayload cleans a client payload for a create or an edit of scr:
// read-only protection first, then normalizePayload. version is removed from obj.
func (s *Service) preparePayload(scr *schema.Screen, obj map[string]any, mode project.Mode) []validate.FieldError {
	if errs := validate.CheckReadOnly(scr.Fields, obj); len(errs) > 0 {
		return errs
	}
	return s.normalizePayload(scr, obj, mode)
}

// normalizePayload applies defaults (create only), coerces types and runs the
// form rules of the fields visible for obj.
func (s *Service) normalizePayload(scr *schema.Screen, obj map[string]any, mode project.Mode) []validate.FieldError {
	if mode == project.Create {
		validate.ApplyDefaults(scr.Fields, obj)
	}
	if errs := validate.Normalize(scr.Fields, obj); len(errs) > 0 {
		return errs
	}

	items := project.Project(scr.Fields, project.Form, mode)
	byKey := make(map[string]*schema.Field, len(items))
	for _, it := range items {
		byKey[it.Key] = it.Field
	}
	r := &resolve.Resolver{Logger: s.Logger}
	values := schema.Values(obj)
	visible := func(key string) bool {
		f, ok := byKey[key]
		return ok && r.Resolve(f, values).Visible
	}
	v := &validate.Validator{Logger: s.Logger}
	return v.Values(items, values, visible)
}
