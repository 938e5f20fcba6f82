package schema

import (
	"context"
	"fmt"
	"strings"
)

// ValueType selects the control a field is edited and displayed with.
type ValueType string

const (
	Text        ValueType = "text"
	Password    ValueType = "password"
	Textarea    ValueType = "textarea"
	Digit       ValueType = "digit"
	Money       ValueType = "money"
	Select      ValueType = "select"
	TreeSelect  ValueType = "treeSelect"
	Cascader    ValueType = "cascader"
	Radio       ValueType = "radio"
	RadioButton ValueType = "radioButton"
	Checkbox    ValueType = "checkbox"
	Switch      ValueType = "switch"
	Rate        ValueType = "rate"
	Slider      ValueType = "slider"
	Date        ValueType = "date"
	DateTime    ValueType = "dateTime"
	DateRange   ValueType = "dateRange"
	Time        ValueType = "time"
	TimeRange   ValueType = "timeRange"
	Week        ValueType = "week"
	Month       ValueType = "month"
	Quarter     ValueType = "quarter"
	Year        ValueType = "year"
	Color       ValueType = "color"
	Upload      ValueType = "upload"
	Image       ValueType = "image"
	Icon        ValueType = "icon"
	User        ValueType = "user"
	Custom      ValueType = "custom"
	Divider     ValueType = "divider"
)

// ValueTypes lists every known value type in declaration order.
var ValueTypes = []ValueType{
	Text, Password, Textarea, Digit, Money, Select, TreeSelect, Cascader, Radio, RadioButton,
	Checkbox, Switch, Rate, Slider, Date, DateTime, DateRange, Time, TimeRange, Week, Month,
	Quarter, Year, Color, Upload, Image, Icon, User, Custom, Divider,
}

// Known reports whether vt is one of ValueTypes.
func (vt ValueType) Known() bool {
	for _, t := range ValueTypes {
		if t == vt {
			return true
		}
	}
	return false
}

// Values holds the current values of a form or search view keyed by field key.
type Values map[string]any

// Clone returns a shallow copy.
func (v Values) Clone() Values {
	out := make(Values, len(v))
	for k, x := range v {
		out[k] = x
	}
	return out
}

// Props is the opaque control configuration forwarded to a control.
type Props map[string]any

// Clone returns a shallow copy. A nil receiver yields an empty map.
func (p Props) Clone() Props {
	out := make(Props, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Bool reads a boolean prop; anything but a true bool is false.
func (p Props) Bool(key string) bool {
	b, _ := p[key].(bool)
	return b
}

// Options reads the static option list stored under "options".
func (p Props) Options() OptionList {
	switch t := p["options"].(type) {
	case OptionList:
		return t
	case []Option:
		return OptionList(t)
	case []any:
		out := make(OptionList, 0, len(t))
		for _, it := range t {
			if o, ok := optionFromAny(it); ok {
				out = append(out, o)
			}
		}
		return out
	}
	return nil
}

func optionFromAny(v any) (Option, bool) {
	switch t := v.(type) {
	case Option:
		return t, true
	case map[string]any:
		o := Option{Value: t["value"]}
		o.Label, _ = t["label"].(string)
		o.Disabled, _ = t["disabled"].(bool)
		if ch, ok := t["children"].([]any); ok {
			for _, c := range ch {
				if co, ok := optionFromAny(c); ok {
					o.Children = append(o.Children, co)
				}
			}
		}
		return o, true
	}
	return Option{}, false
}

// Option is one selectable entry of a select-like control.
type Option struct {
	Label    string   `json:"label" yaml:"label"`
	Value    any      `json:"value" yaml:"value"`
	Disabled bool     `json:"disabled,omitempty" yaml:"disabled,omitempty"`
	Children []Option `json:"children,omitempty" yaml:"children,omitempty"`
}

// OptionList is an ordered option sequence.
type OptionList []Option

// Label returns the label of the option holding value, searching children too.
func (l OptionList) Label(value any) (string, bool) {
	want := fmt.Sprint(value)
	for _, o := range l {
		if fmt.Sprint(o.Value) == want {
			return o.Label, true
		}
		if s, ok := OptionList(o.Children).Label(value); ok {
			return s, true
		}
	}
	return "", false
}

// EnumEntry is the display mapping of one enum value.
type EnumEntry struct {
	Text   string `json:"text" yaml:"text"`
	Status string `json:"status,omitempty" yaml:"status,omitempty"`
}

// ValueEnum maps stored values (as strings) to their display text.
type ValueEnum map[string]EnumEntry

// Options converts the enum into an option list, keeping the given key order.
func (e ValueEnum) Options(order []string) OptionList {
	out := make(OptionList, 0, len(e))
	seen := make(map[string]bool, len(e))
	for _, k := range order {
		if ent, ok := e[k]; ok && !seen[k] {
			out = append(out, Option{Label: ent.Text, Value: k})
			seen[k] = true
		}
	}
	for k, ent := range e {
		if !seen[k] {
			out = append(out, Option{Label: ent.Text, Value: k})
		}
	}
	return out
}

// ViewFlags excludes a field from individual views.
type ViewFlags struct {
	HideInSearch bool `json:"hideInSearch,omitempty" yaml:"hideInSearch,omitempty"`
	HideInTable  bool `json:"hideInTable,omitempty" yaml:"hideInTable,omitempty"`
	HideInForm   bool `json:"hideInForm,omitempty" yaml:"hideInForm,omitempty"`
	HideInCreate bool `json:"hideInCreate,omitempty" yaml:"hideInCreate,omitempty"`
	HideInEdit   bool `json:"hideInEdit,omitempty" yaml:"hideInEdit,omitempty"`
}

// Dependency makes a field react to the values of its siblings.
type Dependency struct {
	DependsOn    []string
	Visible      func(Values) bool
	Disabled     func(Values) bool
	DynamicProps func(Values) Props
}

// OptionFetcher loads an option list. deps holds the current values of the
// fetch dependencies (empty for eager fields).
type OptionFetcher func(ctx context.Context, deps Values) (OptionList, error)

// AsyncOptions declares an asynchronously loaded option list. Without
// DependsOn the list is fetched once when the owning view mounts.
type AsyncOptions struct {
	Fetch     OptionFetcher
	DependsOn []string
}

// Renderer overrides how a value is displayed.
type Renderer func(value any, record Values) any

// Validator is a custom rule; a non-nil error fails validation.
type Validator func(value any, values Values) error

type RuleKind string

const (
	RuleRequired RuleKind = "required"
	RulePattern  RuleKind = "pattern"
	RuleMin      RuleKind = "min"
	RuleMax      RuleKind = "max"
	RuleLen      RuleKind = "len"
	RuleCustom   RuleKind = "custom"
)

// Rule is one validation rule descriptor.
type Rule struct {
	Kind      RuleKind
	Pattern   string
	Limit     float64
	Message   string
	Validator Validator
}

// Field is one entry of a column schema.
type Field struct {
	Key       string
	Label     string
	ValueType ValueType
	ViewFlags
	Props        Props
	ValueEnum    ValueEnum
	Dependency   *Dependency
	AsyncOptions *AsyncOptions
	Render       Renderer
	Rules        []Rule

	Tooltip    string
	Width      int
	Sortable   bool
	Capability string
	Default    any
}

// Type returns the value type, defaulting to Text.
func (f *Field) Type() ValueType {
	if f.ValueType == "" {
		return Text
	}
	return f.ValueType
}

// IsDivider reports whether the entry is a section break rather than a field.
func (f *Field) IsDivider() bool { return f.ValueType == Divider }

// Required reports whether the field carries a required rule.
func (f *Field) Required() bool {
	for _, r := range f.Rules {
		if r.Kind == RuleRequired {
			return true
		}
	}
	return false
}

// Schema is an ordered sequence of fields; order is display order.
type Schema []Field

// Index returns the position of key or -1.
func (s Schema) Index(key string) int {
	for i := range s {
		if s[i].Key == key {
			return i
		}
	}
	return -1
}

// Field returns the field with key, or nil.
func (s Schema) Field(key string) *Field {
	if i := s.Index(key); i >= 0 {
		return &s[i]
	}
	return nil
}

// Check verifies the schema can be mounted: keys must be unique. Unknown value
// types and unknown dependency keys are lint issues, not mount errors.
func (s Schema) Check() error {
	seen := make(map[string]int, len(s))
	var problems []string
	for i, f := range s {
		if f.IsDivider() {
			continue
		}
		k := s.KeyOf(i)
		if j, dup := seen[k]; dup {
			problems = append(problems, fmt.Sprintf("duplicate key %q at positions %d and %d", k, j, i))
		} else {
			seen[k] = i
		}
	}
	if len(problems) > 0 {
		return &ConfigError{Problems: problems}
	}
	return nil
}

// ConfigError reports a schema that cannot be mounted.
type ConfigError struct {
	Screen   string
	Problems []string
}

func (e *ConfigError) Error() string {
	prefix := "schema"
	if e.Screen != "" {
		prefix = "screen " + e.Screen
	}
	return prefix + ": " + strings.Join(e.Problems, "; ")
}

// KeyOf returns the key of the field at position i, or the synthetic
// "field-<i>" when the field has none.
func (s Schema) KeyOf(i int) string {
	if s[i].Key != "" {
		return s[i].Key
	}
	return fmt.Sprintf("field-%d", i)
}
