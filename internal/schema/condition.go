package schema

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Condition is a declarative predicate over form values, used by screen files
// where Go callbacks cannot be written.
//
//	{field: lease_type, operator: in, values: [commercial, industrial]}
//	{operator: all, conditions: [...]}
type Condition struct {
	Field      string      `json:"field,omitempty" yaml:"field,omitempty"`
	Operator   string      `json:"operator" yaml:"operator"`
	Value      any         `json:"value,omitempty" yaml:"value,omitempty"`
	Values     []any       `json:"values,omitempty" yaml:"values,omitempty"`
	Conditions []Condition `json:"conditions,omitempty" yaml:"conditions,omitempty"`
}

var operators = map[string]bool{
	"eq": true, "neq": true, "in": true, "nin": true,
	"gt": true, "gte": true, "lt": true, "lte": true,
	"truthy": true, "falsy": true, "empty": true, "notEmpty": true,
	"all": true, "any": true,
}

// Fields returns every field key the condition reads.
func (c Condition) Fields() []string {
	var out []string
	if c.Field != "" {
		out = append(out, c.Field)
	}
	for _, sub := range c.Conditions {
		out = append(out, sub.Fields()...)
	}
	return out
}

// Check reports structural problems in the condition.
func (c Condition) Check() error {
	if !operators[c.Operator] {
		return fmt.Errorf("unknown operator %q", c.Operator)
	}
	switch c.Operator {
	case "all", "any":
		if len(c.Conditions) == 0 {
			return fmt.Errorf("operator %q needs conditions", c.Operator)
		}
		for _, sub := range c.Conditions {
			if err := sub.Check(); err != nil {
				return err
			}
		}
	default:
		if c.Field == "" {
			return fmt.Errorf("operator %q needs a field", c.Operator)
		}
	}
	return nil
}

// Eval evaluates the condition. A missing value never satisfies a positive
// operator.
func (c Condition) Eval(values Values) bool {
	switch c.Operator {
	case "all":
		for _, sub := range c.Conditions {
			if !sub.Eval(values) {
				return false
			}
		}
		return true
	case "any":
		for _, sub := range c.Conditions {
			if sub.Eval(values) {
				return true
			}
		}
		return false
	}

	got, ok := values[c.Field]
	switch c.Operator {
	case "empty":
		return !ok || isEmpty(got)
	case "notEmpty":
		return ok && !isEmpty(got)
	case "truthy":
		return ok && truthy(got)
	case "falsy":
		return !ok || !truthy(got)
	}
	if !ok || got == nil {
		return c.Operator == "neq" || c.Operator == "nin"
	}

	switch c.Operator {
	case "eq":
		return equal(got, c.Value)
	case "neq":
		return !equal(got, c.Value)
	case "in":
		return contains(c.Values, got)
	case "nin":
		return !contains(c.Values, got)
	case "gt", "gte", "lt", "lte":
		g, ok1 := number(got)
		w, ok2 := number(c.Value)
		if !ok1 || !ok2 {
			return false
		}
		switch c.Operator {
		case "gt":
			return g > w
		case "gte":
			return g >= w
		case "lt":
			return g < w
		default:
			return g <= w
		}
	}
	return false
}

func equal(a, b any) bool {
	if na, ok := number(a); ok {
		if nb, ok := number(b); ok {
			return na == nb
		}
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func contains(list []any, v any) bool {
	for _, w := range list {
		if equal(v, w) {
			return true
		}
	}
	return false
}

func number(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int, int8, int16, int32, int64:
		return float64(reflect.ValueOf(t).Int()), true
	case uint, uint8, uint16, uint32, uint64:
		return float64(reflect.ValueOf(t).Uint()), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t) == ""
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	}
	return false
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	}
	if n, ok := number(v); ok {
		return n != 0
	}
	return !isEmpty(v)
}

// PropsRule sets Props when its condition holds.
type PropsRule struct {
	When Condition `json:"when" yaml:"when"`
	Set  Props     `json:"set" yaml:"set"`
}

// DependencySpec is the declarative form of Dependency.
type DependencySpec struct {
	DependsOn    []string    `json:"dependsOn,omitempty" yaml:"dependsOn,omitempty"`
	VisibleWhen  *Condition  `json:"visibleWhen,omitempty" yaml:"visibleWhen,omitempty"`
	DisabledWhen *Condition  `json:"disabledWhen,omitempty" yaml:"disabledWhen,omitempty"`
	Props        []PropsRule `json:"props,omitempty" yaml:"props,omitempty"`
}

// Compile turns d into a Dependency. DependsOn defaults to every field
// the conditions read.
func (d DependencySpec) Compile() (*Dependency, error) {
	dep := &Dependency{DependsOn: append([]string(nil), d.DependsOn...)}
	var read []string
	if c := d.VisibleWhen; c != nil {
		if err := c.Check(); err != nil {
			return nil, fmt.Errorf("visibleWhen: %w", err)
		}
		cond := *c
		dep.Visible = cond.Eval
		read = append(read, cond.Fields()...)
	}
	if c := d.DisabledWhen; c != nil {
		if err := c.Check(); err != nil {
			return nil, fmt.Errorf("disabledWhen: %w", err)
		}
		cond := *c
		dep.Disabled = cond.Eval
		read = append(read, cond.Fields()...)
	}
	if len(d.Props) > 0 {
		rules := append([]PropsRule(nil), d.Props...)
		for i, r := range rules {
			if err := r.When.Check(); err != nil {
				return nil, fmt.Errorf("props[%d]: %w", i, err)
			}
			read = append(read, r.When.Fields()...)
		}
		dep.DynamicProps = func(v Values) Props {
			out := Props{}
			for _, r := range rules {
				if r.When.Eval(v) {
					for k, x := range r.Set {
						out[k] = x
					}
				}
			}
			return out
		}
	}
	if len(dep.DependsOn) == 0 {
		dep.DependsOn = uniq(read)
	}
	return dep, nil
}

func uniq(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
