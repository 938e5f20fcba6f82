package store

import (
	"fmt"
	"net/url"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"adminkit/internal/schema"
)

type filterCond struct {
	field string
	op    string // eq, in, gt, gte, lt, lte
	vals  []string
}

// buildConds parses filters like
//
//	status__in=draft,booked
//	amount__gte=1000
//	date__lte=2025-01-31
func buildConds(q url.Values) []filterCond {
	var out []filterCond
	for key, vals := range q {
		if len(vals) == 0 {
			continue
		}
		field := key
		op := "eq"
		if i := strings.LastIndex(key, "__"); i > 0 {
			field = key[:i]
			op = key[i+2:]
		}
		v := vals[0]
		if strings.HasPrefix(v, "in:") {
			op = "in"
			v = strings.TrimPrefix(v, "in:")
		}
		var parts []string
		if op == "in" {
			for _, p := range strings.Split(strings.Join(append([]string{v}, vals[1:]...), ","), ",") {
				if p = strings.TrimSpace(p); p != "" {
					parts = append(parts, p)
				}
			}
		} else {
			parts = []string{v}
		}
		if field != "" && len(parts) > 0 {
			out = append(out, filterCond{field: field, op: op, vals: parts})
		}
	}
	return out
}

// kindOf groups value types by how filters compare them.
func kindOf(fields schema.Schema, name string) string {
	f := fields.Field(name)
	if f == nil {
		if name == "id" {
			return "id"
		}
		return ""
	}
	if len(f.ValueEnum) > 0 {
		return "enum"
	}
	switch f.Type() {
	case schema.Text, schema.Textarea:
		return "text"
	case schema.Digit, schema.Money, schema.Rate, schema.Slider:
		return "number"
	case schema.Date:
		return "date"
	case schema.DateTime:
		return "datetime"
	case schema.Checkbox:
		return "list"
	}
	return "scalar"
}

func toS(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func compareByKind(kind string, got any, op string, want string) bool {
	switch op {
	case "eq":
		switch kind {
		case "text":
			return strings.Contains(strings.ToLower(toS(got)), strings.ToLower(want))
		case "list":
			if list, ok := got.([]any); ok {
				for _, it := range list {
					if strings.EqualFold(toS(it), want) {
						return true
					}
				}
				return false
			}
		case "number":
			if g, ok := toNumber(got); ok {
				if w, err := strconv.ParseFloat(strings.TrimSpace(want), 64); err == nil {
					return g == w
				}
			}
		}
		return strings.EqualFold(toS(got), want)
	case "in":
		gs := toS(got)
		for _, w := range strings.Split(want, ",") {
			if strings.EqualFold(gs, strings.TrimSpace(w)) {
				return true
			}
		}
		return false
	}

	switch kind {
	case "number":
		gv, ok := toNumber(got)
		if !ok {
			return false
		}
		wv, err := strconv.ParseFloat(strings.TrimSpace(want), 64)
		if err != nil {
			return false
		}
		return ordered(op, cmpFloat(gv, wv))
	case "date", "datetime":
		layout := "2006-01-02"
		if kind == "datetime" {
			layout = time.RFC3339
		}
		wd, err := time.Parse(layout, strings.TrimSpace(want))
		if err != nil {
			return false
		}
		s, ok := got.(string)
		if !ok {
			return false
		}
		gd, err := time.Parse(layout, s)
		if err != nil {
			return false
		}
		return ordered(op, gd.Compare(wd))
	}
	return false
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return +1
	}
	return 0
}

func ordered(op string, c int) bool {
	switch op {
	case "gt":
		return c > 0
	case "gte":
		return c >= 0
	case "lt":
		return c < 0
	case "lte":
		return c <= 0
	}
	return false
}

func toNumber(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int, int32, int64:
		return float64(reflect.ValueOf(x).Int()), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	}
	return 0, false
}

func filterWithOps(all []*Record, fields schema.Schema, p ListParams) []*Record {
	conds := buildConds(p.Filters)
	needle := strings.ToLower(p.Q)
	if len(conds) == 0 && needle == "" {
		return all
	}
	out := make([]*Record, 0, len(all))

loopRecs:
	for _, r := range all {
		for _, cnd := range conds {
			kind := kindOf(fields, cnd.field)
			if kind == "" {
				// unknown field: nothing matches
				continue loopRecs
			}
			var got any
			if kind == "id" {
				got = r.ID
			} else {
				got = r.Data[cnd.field]
			}
			switch cnd.op {
			case "eq", "gt", "gte", "lt", "lte":
				if !compareByKind(kind, got, cnd.op, cnd.vals[0]) {
					continue loopRecs
				}
			case "in":
				if !compareByKind(kind, got, "in", strings.Join(cnd.vals, ",")) {
					continue loopRecs
				}
			default:
				continue loopRecs
			}
		}
		if needle != "" {
			found := false
			for _, v := range r.Data {
				if s, ok := v.(string); ok && strings.Contains(strings.ToLower(s), needle) {
					found = true
					break
				}
			}
			if !found {
				continue
			}
		}
		out = append(out, r)
	}
	return out
}

// Apply filters, sorts and pages records. Records are ordered by id (creation
// order) before the requested sort keys apply.
func Apply(all []*Record, fields schema.Schema, p ListParams) ([]*Record, int) {
	live := make([]*Record, 0, len(all))
	for _, r := range all {
		if r != nil && !r.Deleted {
			live = append(live, r)
		}
	}
	sort.Slice(live, func(i, j int) bool { return live[i].ID < live[j].ID })

	filtered := filterWithOps(live, fields, p)
	sortRecords(filtered, p.Sort, p.Nulls)

	start := max(p.Offset, 0)
	end := start + p.Limit
	if start > len(filtered) {
		start = len(filtered)
	}
	if end > len(filtered) {
		end = len(filtered)
	}
	return filtered[start:end], len(filtered)
}
