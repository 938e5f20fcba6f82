package schema

import (
	"fmt"
	"sort"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

type Issue struct {
	Screen   string   `json:"screen"`
	Field    string   `json:"field"`
	Code     string   `json:"code"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// Blocking reports whether any issue is an error.
func Blocking(issues []Issue) bool {
	for _, it := range issues {
		if it.Severity == SeverityError {
			return true
		}
	}
	return false
}

var optionTypes = map[ValueType]bool{
	Select: true, TreeSelect: true, Cascader: true, Radio: true, RadioButton: true, Checkbox: true,
}

// Lint checks a screen for contradictions that do not prevent mounting.
func (s *Screen) Lint() []Issue {
	issues := LintSchema(s.Fields)
	for i := range issues {
		issues[i].Screen = s.Name
	}

	// conditions reading keys that are not tracked never re-evaluate
	for _, fd := range s.declared {
		dep := fd.Dependency
		if dep == nil || len(dep.DependsOn) == 0 {
			continue
		}
		tracked := make(map[string]bool, len(dep.DependsOn))
		for _, k := range dep.DependsOn {
			tracked[k] = true
		}
		var read []string
		for _, c := range []*Condition{dep.VisibleWhen, dep.DisabledWhen} {
			if c != nil {
				read = append(read, c.Fields()...)
			}
		}
		for _, r := range dep.Props {
			read = append(read, r.When.Fields()...)
		}
		for _, k := range uniq(read) {
			if !tracked[k] {
				issues = append(issues, Issue{
					Screen:   s.Name,
					Field:    fd.Key,
					Code:     "condition_untracked",
					Severity: SeverityWarning,
					Message:  fmt.Sprintf("condition reads %q which is not in dependsOn", k),
				})
			}
		}
	}

	if s.PageSize < 0 {
		issues = append(issues, Issue{Screen: s.Name, Code: "page_size_negative", Severity: SeverityError,
			Message: "pageSize must not be negative"})
	}
	return issues
}

// LintSchema checks a bare schema.
func LintSchema(fields Schema) []Issue {
	var issues []Issue
	add := func(f *Field, code string, sev Severity, format string, args ...any) {
		issues = append(issues, Issue{Field: f.Key, Code: code, Severity: sev, Message: fmt.Sprintf(format, args...)})
	}

	keys := make(map[string]bool, len(fields))
	for _, f := range fields {
		if f.Key != "" {
			keys[f.Key] = true
		}
	}

	seen := map[string]bool{}
	for i := range fields {
		f := &fields[i]
		if f.IsDivider() {
			continue
		}
		if f.Key == "" {
			add(f, "key_missing", SeverityWarning, "field at position %d has no key; field-%d is used", i, i)
		} else if seen[f.Key] {
			add(f, "key_duplicate", SeverityError, "duplicate key %q", f.Key)
		}
		seen[f.Key] = true

		if f.ValueType != "" && !f.ValueType.Known() {
			add(f, "value_type_unknown", SeverityWarning, "unknown valueType %q renders as text", f.ValueType)
		}

		if d := f.Dependency; d != nil {
			for _, k := range d.DependsOn {
				switch {
				case k == f.Key:
					add(f, "depends_on_self", SeverityError, "field depends on itself")
				case !keys[k]:
					add(f, "depends_on_unknown", SeverityWarning, "dependsOn %q is not in the schema; the dependency never triggers", k)
				}
			}
			if len(d.DependsOn) == 0 {
				add(f, "depends_on_empty", SeverityWarning, "dependency without dependsOn is resolved once")
			}
		}

		if a := f.AsyncOptions; a != nil {
			if a.Fetch == nil {
				add(f, "options_fetch_missing", SeverityError, "asyncOptions without a fetch function")
			}
			for _, k := range a.DependsOn {
				if !keys[k] {
					add(f, "options_depends_on_unknown", SeverityWarning, "options dependsOn %q is not in the schema; options are never fetched", k)
				}
			}
			if f.Render != nil {
				add(f, "options_ignored", SeverityWarning, "render override ignores asyncOptions")
			}
			if !optionTypes[f.Type()] {
				add(f, "options_unused", SeverityWarning, "valueType %q does not show options", f.Type())
			}
		}

		for _, r := range f.Rules {
			if r.Kind == RuleCustom && r.Validator == nil {
				add(f, "validator_missing", SeverityError, "custom rule without a validator")
			}
		}
	}

	sort.SliceStable(issues, func(i, j int) bool {
		if issues[i].Severity != issues[j].Severity {
			return issues[i].Severity == SeverityError
		}
		return false
	})
	return issues
}
