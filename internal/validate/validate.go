// Package validate runs field rules over form values and normalizes payloads
// before they reach a store.
package validate

import (
	"fmt"
	"log"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"

	"adminkit/internal/project"
	"adminkit/internal/resolve"
	"adminkit/internal/schema"
)

type FieldError struct {
	Code    string `json:"code"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) Error() string { return e.Field + ": " + e.Message }

// Error codes.
const (
	ErrRequired     = "required"
	ErrPattern      = "pattern"
	ErrMin          = "min"
	ErrMax          = "max"
	ErrLen          = "len"
	ErrCustom       = "custom"
	ErrTypeMismatch = "type_mismatch"
	ErrEnumInvalid  = "enum_invalid"
	ErrReadOnly     = "readonly_field"
)

// Validator runs rules, logging validator panics through Logger.
type Validator struct {
	Logger resolve.Logger
}

var std = &Validator{Logger: log.Default()}

// Values validates with a validator logging to the standard logger.
func Values(items []project.Resolved, values schema.Values, visible func(key string) bool) []FieldError {
	return std.Values(items, values, visible)
}

// Values checks the rules of every item. Items for which visible reports false
// are skipped for this pass; a nil visible treats every item as visible.
func (v *Validator) Values(items []project.Resolved, values schema.Values, visible func(key string) bool) []FieldError {
	var errs []FieldError
	for _, it := range items {
		if it.Divider || len(it.Rules) == 0 {
			continue
		}
		if visible != nil && !visible(it.Key) {
			continue
		}
		val, present := values[it.Key]
		empty := !present || isBlank(val)
		for _, r := range it.Rules {
			if r.Kind == schema.RuleRequired {
				if empty {
					errs = append(errs, ferr(ErrRequired, it.Key, r.Message, "Field '%s' is required", it.Key))
				}
				continue
			}
			if empty {
				continue
			}
			if fe, failed := v.check(it.Key, r, val, values); failed {
				errs = append(errs, fe)
			}
		}
	}
	return errs
}

func (v *Validator) check(key string, r schema.Rule, val any, values schema.Values) (FieldError, bool) {
	switch r.Kind {
	case schema.RulePattern:
		s, ok := val.(string)
		if !ok {
			return ferr(ErrTypeMismatch, key, "", "Field '%s' must be a string", key), true
		}
		re, err := compiled(r.Pattern)
		if err != nil {
			return ferr(ErrPattern, key, "", "Field '%s' has an invalid pattern", key), true
		}
		if !re.MatchString(s) {
			return ferr(ErrPattern, key, r.Message, "Field '%s' does not match %s", key, r.Pattern), true
		}
	case schema.RuleMin, schema.RuleMax, schema.RuleLen:
		n, ok := measure(val)
		if !ok {
			return ferr(ErrTypeMismatch, key, "", "Field '%s' cannot be measured", key), true
		}
		switch {
		case r.Kind == schema.RuleMin && n < r.Limit:
			return ferr(ErrMin, key, r.Message, "Field '%s' must be at least %v", key, r.Limit), true
		case r.Kind == schema.RuleMax && n > r.Limit:
			return ferr(ErrMax, key, r.Message, "Field '%s' must be at most %v", key, r.Limit), true
		case r.Kind == schema.RuleLen && n != r.Limit:
			return ferr(ErrLen, key, r.Message, "Field '%s' must have length %v", key, r.Limit), true
		}
	case schema.RuleCustom:
		if r.Validator == nil {
			return FieldError{}, false
		}
		err := resolve.Guard(v.Logger, "validator "+key, func() error { return r.Validator(val, values) })
		if err != nil {
			return ferr(ErrCustom, key, r.Message, "%s", err.Error()), true
		}
	}
	return FieldError{}, false
}

var patterns sync.Map

func compiled(p string) (*regexp.Regexp, error) {
	if re, ok := patterns.Load(p); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(p)
	if err != nil {
		return nil, err
	}
	patterns.Store(p, re)
	return re, nil
}

// measure gives numbers their value and strings, lists and maps their length.
func measure(v any) (float64, bool) {
	switch t := v.(type) {
	case string:
		return float64(utf8.RuneCountInString(t)), true
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case int32:
		return float64(t), true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return float64(rv.Len()), true
	}
	return 0, false
}

func isBlank(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map:
		return rv.Len() == 0
	}
	return false
}

// ferr uses msg when set, the formatted default otherwise.
func ferr(code, field, msg, format string, args ...any) FieldError {
	if msg == "" {
		msg = fmt.Sprintf(format, args...)
	}
	return FieldError{Code: code, Field: field, Message: msg}
}
