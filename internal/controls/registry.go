// Package controls maps value types to control descriptors and loads the
// option lists of select-like controls.
package controls

import (
	"sync"

	"adminkit/internal/schema"
)

// Kind names a concrete control of the rendering toolkit.
type Kind string

const (
	KindInput           Kind = "input"
	KindPassword        Kind = "password"
	KindTextarea        Kind = "textarea"
	KindInputNumber     Kind = "inputNumber"
	KindMoney           Kind = "money"
	KindSelect          Kind = "select"
	KindTreeSelect      Kind = "treeSelect"
	KindCascader        Kind = "cascader"
	KindRadio           Kind = "radio"
	KindRadioButton     Kind = "radioButton"
	KindCheckbox        Kind = "checkbox"
	KindSwitch          Kind = "switch"
	KindRate            Kind = "rate"
	KindSlider          Kind = "slider"
	KindDatePicker      Kind = "datePicker"
	KindDateTimePicker  Kind = "dateTimePicker"
	KindRangePicker     Kind = "rangePicker"
	KindTimePicker      Kind = "timePicker"
	KindTimeRangePicker Kind = "timeRangePicker"
	KindWeekPicker      Kind = "weekPicker"
	KindMonthPicker     Kind = "monthPicker"
	KindQuarterPicker   Kind = "quarterPicker"
	KindYearPicker      Kind = "yearPicker"
	KindColorPicker     Kind = "colorPicker"
	KindUpload          Kind = "upload"
	KindImageUpload     Kind = "imageUpload"
	KindIconPicker      Kind = "iconPicker"
	KindUserSelect      Kind = "userSelect"
	KindCustom          Kind = "custom"
	KindDivider         Kind = "divider"
)

var defaultKinds = map[schema.ValueType]Kind{
	schema.Text:        KindInput,
	schema.Password:    KindPassword,
	schema.Textarea:    KindTextarea,
	schema.Digit:       KindInputNumber,
	schema.Money:       KindMoney,
	schema.Select:      KindSelect,
	schema.TreeSelect:  KindTreeSelect,
	schema.Cascader:    KindCascader,
	schema.Radio:       KindRadio,
	schema.RadioButton: KindRadioButton,
	schema.Checkbox:    KindCheckbox,
	schema.Switch:      KindSwitch,
	schema.Rate:        KindRate,
	schema.Slider:      KindSlider,
	schema.Date:        KindDatePicker,
	schema.DateTime:    KindDateTimePicker,
	schema.DateRange:   KindRangePicker,
	schema.Time:        KindTimePicker,
	schema.TimeRange:   KindTimeRangePicker,
	schema.Week:        KindWeekPicker,
	schema.Month:       KindMonthPicker,
	schema.Quarter:     KindQuarterPicker,
	schema.Year:        KindYearPicker,
	schema.Color:       KindColorPicker,
	schema.Upload:      KindUpload,
	schema.Image:       KindImageUpload,
	schema.Icon:        KindIconPicker,
	schema.User:        KindUserSelect,
	schema.Custom:      KindCustom,
	schema.Divider:     KindDivider,
}

// Control is the descriptor a renderer turns into a concrete widget.
type Control struct {
	Kind      Kind             `json:"kind"`
	ValueType schema.ValueType `json:"valueType"`
	Props     schema.Props     `json:"props,omitempty"`
	// Render is set when the field overrides rendering entirely.
	Render schema.Renderer `json:"-"`
}

// Registry is the value type to control table. The zero value is not usable;
// call NewRegistry.
type Registry struct {
	mu    sync.RWMutex
	kinds map[schema.ValueType]Kind
}

// NewRegistry returns a registry holding the default table.
func NewRegistry() *Registry {
	r := &Registry{kinds: make(map[schema.ValueType]Kind, len(defaultKinds))}
	for vt, k := range defaultKinds {
		r.kinds[vt] = k
	}
	return r
}

// Register overrides the control used for vt.
func (r *Registry) Register(vt schema.ValueType, k Kind) {
	r.mu.Lock()
	r.kinds[vt] = k
	r.mu.Unlock()
}

// Kind returns the control kind for vt; unknown types fall back to the text input.
func (r *Registry) Kind(vt schema.ValueType) Kind {
	if vt == "" {
		vt = schema.Text
	}
	r.mu.RLock()
	k, ok := r.kinds[vt]
	r.mu.RUnlock()
	if !ok {
		return KindInput
	}
	return k
}

// Resolve returns the control for vt carrying props.
func (r *Registry) Resolve(vt schema.ValueType, props schema.Props) Control {
	if vt == "" {
		vt = schema.Text
	}
	return Control{Kind: r.Kind(vt), ValueType: vt, Props: props}
}

// ResolveField resolves the control of f. props are the effective props from
// the dependency resolver; fetched is the latest async option list, if any.
// A render override bypasses both the value type table and the option merge.
func (r *Registry) ResolveField(f *schema.Field, props schema.Props, fetched OptionList, hasFetched bool) Control {
	if props == nil {
		props = f.Props.Clone()
	}
	if f.Render != nil {
		return Control{Kind: KindCustom, ValueType: f.Type(), Props: props, Render: f.Render}
	}
	if f.AsyncOptions != nil && hasFetched {
		props = props.Clone()
		props["options"] = MergeOptions(props.Options(), fetched)
	}
	return r.Resolve(f.Type(), props)
}

// OptionList is an alias kept for readability at call sites.
type OptionList = schema.OptionList

// MergeOptions overlays fetched onto static. Static options keep their place and
// are replaced by a fetched option with the same value; the remaining fetched
// options follow in fetched order.
func MergeOptions(static, fetched OptionList) OptionList {
	if len(static) == 0 {
		return append(OptionList(nil), fetched...)
	}
	byValue := make(map[string]int, len(fetched))
	for i, o := range fetched {
		byValue[valueKey(o.Value)] = i
	}
	used := make([]bool, len(fetched))
	out := make(OptionList, 0, len(static)+len(fetched))
	for _, o := range static {
		if i, ok := byValue[valueKey(o.Value)]; ok {
			out = append(out, fetched[i])
			used[i] = true
			continue
		}
		out = append(out, o)
	}
	for i, o := range fetched {
		if !used[i] {
			out = append(out, o)
		}
	}
	return out
}
