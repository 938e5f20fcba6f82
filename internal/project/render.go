package project

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"adminkit/internal/schema"
)

// Badge is the display of a status-like value.
type Badge struct {
	Status string `json:"status"`
	Text   string `json:"text"`
}

// Texts of the boolean badge; hosts translate them.
const (
	BadgeOn  = "on"
	BadgeOff = "off"
)

const passwordMask = "******"

func cellRenderer(f *schema.Field) CellRenderer {
	if f.Render != nil {
		return CellRenderer(f.Render)
	}
	if len(f.ValueEnum) > 0 {
		ve := f.ValueEnum
		return func(v any, _ schema.Values) any { return enumCell(ve, v) }
	}
	switch f.Type() {
	case schema.Switch:
		return switchCell
	case schema.Money:
		return moneyCell
	case schema.Digit:
		return digitCell
	case schema.Date:
		return timeCell("2006-01-02")
	case schema.DateTime:
		return timeCell("2006-01-02 15:04:05")
	case schema.DateRange:
		return rangeCell("2006-01-02")
	case schema.Password:
		return func(v any, _ schema.Values) any {
			if v == nil || v == "" {
				return ""
			}
			return passwordMask
		}
	case schema.Select, schema.Radio, schema.RadioButton, schema.Checkbox, schema.TreeSelect, schema.Cascader:
		if opts := f.Props.Options(); len(opts) > 0 {
			return optionCell(opts)
		}
	}
	return passthrough
}

func passthrough(v any, _ schema.Values) any { return v }

func enumCell(ve schema.ValueEnum, v any) any {
	if v == nil {
		return nil
	}
	if list, ok := asList(v); ok {
		out := make([]Badge, 0, len(list))
		for _, it := range list {
			if b, ok := enumBadge(ve, it); ok {
				out = append(out, b)
			}
		}
		return out
	}
	if b, ok := enumBadge(ve, v); ok {
		return b
	}
	return v
}

func enumBadge(ve schema.ValueEnum, v any) (Badge, bool) {
	ent, ok := ve[fmt.Sprint(v)]
	if !ok {
		return Badge{}, false
	}
	return Badge{Status: ent.Status, Text: ent.Text}, true
}

func switchCell(v any, _ schema.Values) any {
	on := false
	switch t := v.(type) {
	case bool:
		on = t
	case string:
		on = t == "true" || t == "1"
	case float64:
		on = t != 0
	case int:
		on = t != 0
	}
	if on {
		return Badge{Status: "success", Text: BadgeOn}
	}
	return Badge{Status: "default", Text: BadgeOff}
}

func moneyCell(v any, _ schema.Values) any {
	f, ok := toFloat(v)
	if !ok {
		return v
	}
	return humanize.FormatFloat("#,###.##", f)
}

func digitCell(v any, _ schema.Values) any {
	f, ok := toFloat(v)
	if !ok {
		return v
	}
	if f == float64(int64(f)) {
		return humanize.Comma(int64(f))
	}
	return humanize.Commaf(f)
}

func timeCell(layout string) CellRenderer {
	return func(v any, _ schema.Values) any {
		if t, ok := toTime(v); ok {
			return t.Format(layout)
		}
		return v
	}
}

func rangeCell(layout string) CellRenderer {
	return func(v any, _ schema.Values) any {
		list, ok := asList(v)
		if !ok || len(list) != 2 {
			return v
		}
		a, ok1 := toTime(list[0])
		b, ok2 := toTime(list[1])
		if !ok1 || !ok2 {
			return v
		}
		return a.Format(layout) + " ~ " + b.Format(layout)
	}
}

func optionCell(opts schema.OptionList) CellRenderer {
	return func(v any, _ schema.Values) any {
		if v == nil {
			return nil
		}
		if list, ok := asList(v); ok {
			labels := make([]string, 0, len(list))
			for _, it := range list {
				if s, ok := opts.Label(it); ok {
					labels = append(labels, s)
				} else {
					labels = append(labels, fmt.Sprint(it))
				}
			}
			return strings.Join(labels, ", ")
		}
		if s, ok := opts.Label(v); ok {
			return s
		}
		return v
	}
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
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
	return 0, false
}

var timeLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		for _, l := range timeLayouts {
			if p, err := time.Parse(l, t); err == nil {
				return p, true
			}
		}
	case float64:
		// epoch milliseconds
		return time.UnixMilli(int64(t)).UTC(), true
	}
	return time.Time{}, false
}

func asList(v any) ([]any, bool) {
	if l, ok := v.([]any); ok {
		return l, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice || rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// RenderRow renders the cells of one record for the given table columns.
func RenderRow(cols []Resolved, record schema.Values) map[string]any {
	out := make(map[string]any, len(cols))
	for _, c := range cols {
		v := record[c.Key]
		if c.Render == nil {
			out[c.Key] = v
			continue
		}
		out[c.Key] = c.Render(v, record)
	}
	return out
}
