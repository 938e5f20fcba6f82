package validate

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"adminkit/internal/schema"
)

// SystemFields are maintained by the store and never written by clients.
var SystemFields = []string{"id", "created_at", "updated_at", "version"}

// Normalize coerces the values of known fields to their stored shape in place.
// Unknown keys are left untouched.
func Normalize(fields schema.Schema, obj map[string]any) []FieldError {
	var errs []FieldError
	for i := range fields {
		f := &fields[i]
		if f.IsDivider() || f.Key == "" {
			continue
		}
		val, ok := obj[f.Key]
		if !ok || val == nil {
			continue
		}
		norm, err := coerce(f, val)
		if err != nil {
			errs = append(errs, ferr(ErrTypeMismatch, f.Key, "", "Field '%s' %v", f.Key, err))
			continue
		}
		if len(f.ValueEnum) > 0 && !enumAllows(f.ValueEnum, norm) {
			errs = append(errs, ferr(ErrEnumInvalid, f.Key, "", "Invalid value for '%s'", f.Key))
			continue
		}
		obj[f.Key] = norm
	}
	return errs
}

var (
	dateRe  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	colorRe = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6}|[0-9a-fA-F]{8})$`)
)

func coerce(f *schema.Field, v any) (any, error) {
	switch f.Type() {
	case schema.Text, schema.Password, schema.Textarea:
		return toStringStrict(v)
	case schema.Digit, schema.Money, schema.Rate, schema.Slider:
		return toFloatStrict(v)
	case schema.Switch:
		return toBoolStrict(v)
	case schema.Date:
		s, err := toStringStrict(v)
		if err != nil {
			return nil, err
		}
		if !dateRe.MatchString(s) {
			return nil, errors.New("must match YYYY-MM-DD")
		}
		if _, err := time.Parse("2006-01-02", s); err != nil {
			return nil, errors.New("invalid date")
		}
		return s, nil
	case schema.DateTime:
		s, err := toStringStrict(v)
		if err != nil {
			return nil, err
		}
		if _, err := time.Parse(time.RFC3339, s); err != nil {
			return nil, errors.New("must be RFC3339 datetime")
		}
		return s, nil
	case schema.DateRange, schema.TimeRange:
		arr, ok := v.([]any)
		if !ok || len(arr) != 2 {
			return nil, errors.New("must be a two-element range")
		}
		return arr, nil
	case schema.Checkbox:
		switch t := v.(type) {
		case []any:
			return t, nil
		case string:
			// CSV is accepted: "a,b,c"
			parts := strings.Split(t, ",")
			out := make([]any, 0, len(parts))
			for _, p := range parts {
				if p = strings.TrimSpace(p); p != "" {
					out = append(out, p)
				}
			}
			return out, nil
		}
		return nil, errors.New("must be array")
	case schema.Color:
		s, err := toStringStrict(v)
		if err != nil {
			return nil, err
		}
		if !colorRe.MatchString(s) {
			return nil, errors.New("must be a #rgb color")
		}
		return s, nil
	}
	return v, nil
}

func enumAllows(ve schema.ValueEnum, v any) bool {
	if list, ok := v.([]any); ok {
		for _, it := range list {
			if _, ok := ve[fmt.Sprint(it)]; !ok {
				return false
			}
		}
		return true
	}
	_, ok := ve[fmt.Sprint(v)]
	return ok
}

func toStringStrict(v any) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	return "", errors.New("must be string")
}

func toFloatStrict(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, errors.New("must be a number")
		}
		return f, nil
	}
	return 0, errors.New("must be a number")
}

func toBoolStrict(v any) (bool, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "1", "yes", "y", "on":
			return true, nil
		case "false", "0", "no", "n", "off":
			return false, nil
		}
	}
	return false, errors.New("must be boolean")
}

// ApplyDefaults fills absent fields that declare a default.
func ApplyDefaults(fields schema.Schema, obj map[string]any) {
	for i := range fields {
		f := &fields[i]
		if f.Key == "" || f.Default == nil {
			continue
		}
		if _, exists := obj[f.Key]; exists {
			continue
		}
		// a default that does not coerce is skipped rather than failing the request
		if v, err := coerce(f, f.Default); err == nil {
			obj[f.Key] = v
		}
	}
}

// CheckReadOnly rejects writes to system fields and to fields whose props mark
// them readOnly. "version" is accepted as an optimistic-lock hint and removed.
func CheckReadOnly(fields schema.Schema, obj map[string]any) []FieldError {
	var errs []FieldError
	for _, k := range SystemFields {
		if _, ok := obj[k]; !ok {
			continue
		}
		if k == "version" {
			delete(obj, k)
			continue
		}
		errs = append(errs, ferr(ErrReadOnly, k, "", "Field '%s' is read-only", k))
	}
	for i := range fields {
		f := &fields[i]
		if f.Key == "" || !f.Props.Bool("readOnly") {
			continue
		}
		if _, ok := obj[f.Key]; ok {
			errs = append(errs, ferr(ErrReadOnly, f.Key, "", "Field '%s' is read-only", f.Key))
		}
	}
	return errs
}
