package store

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

type SortKey struct {
	Field string
	Desc  bool
}

type ListParams struct {
	Limit   int
	Offset  int
	Sort    []SortKey
	Filters url.Values
	Q       string
	Nulls   string // "last" (default) | "first"
}

// DefaultLimit applies when a request names no _limit.
const DefaultLimit = 50

var reservedParams = map[string]bool{
	"q": true, "offset": true, "limit": true, "sort": true, "order": true,
	"_offset": true, "_limit": true, "_sort": true, "_order": true,
	"nulls": true, "current": true, "pageSize": true,
}

// ParseListParams reads _limit, _offset, _sort, nulls, q and the field filters.
// current/pageSize are accepted as an alternative to _limit/_offset.
func ParseListParams(q url.Values) ListParams {
	limit := DefaultLimit
	lv := q.Get("_limit")
	if lv == "" {
		lv = q.Get("limit")
	}
	if lv == "" {
		lv = q.Get("pageSize")
	}
	if lv != "" {
		if n, err := strconv.Atoi(lv); err == nil && n >= 0 && n <= 1000 {
			limit = n
		}
	}

	offset := 0
	ov := q.Get("_offset")
	if ov == "" {
		ov = q.Get("offset")
	}
	if ov != "" {
		if n, err := strconv.Atoi(ov); err == nil && n >= 0 {
			offset = n
		}
	} else if cv := q.Get("current"); cv != "" {
		if n, err := strconv.Atoi(cv); err == nil && n > 0 {
			offset = (n - 1) * limit
		}
	}

	var sortKeys []SortKey
	sv := strings.TrimSpace(q.Get("_sort"))
	if sv == "" {
		sv = strings.TrimSpace(q.Get("sort"))
	}
	for _, p := range strings.Split(sv, ",") {
		p = strings.TrimSpace(p)
		desc := false
		if strings.HasPrefix(p, "-") {
			desc = true
			p = strings.TrimPrefix(p, "-")
		} else {
			p = strings.TrimPrefix(p, "+")
		}
		if p != "" {
			sortKeys = append(sortKeys, SortKey{Field: p, Desc: desc})
		}
	}

	nulls := strings.ToLower(strings.TrimSpace(q.Get("nulls")))
	if nulls != "first" && nulls != "last" {
		nulls = "last"
	}

	filters := url.Values{}
	for key, vals := range q {
		if reservedParams[key] {
			continue
		}
		for _, v := range vals {
			if strings.TrimSpace(v) != "" {
				filters.Add(key, v)
			}
		}
	}

	return ListParams{
		Limit:   limit,
		Offset:  offset,
		Sort:    sortKeys,
		Filters: filters,
		Q:       strings.TrimSpace(q.Get("q")),
		Nulls:   nulls,
	}
}

// Encode renders p back into query parameters.
func (p ListParams) Encode() url.Values {
	out := url.Values{}
	for k, vs := range p.Filters {
		for _, v := range vs {
			out.Add(k, v)
		}
	}
	out.Set("_limit", strconv.Itoa(p.Limit))
	out.Set("_offset", strconv.Itoa(p.Offset))
	if len(p.Sort) > 0 {
		parts := make([]string, len(p.Sort))
		for i, k := range p.Sort {
			parts[i] = k.Field
			if k.Desc {
				parts[i] = "-" + k.Field
			}
		}
		out.Set("_sort", strings.Join(parts, ","))
	}
	if p.Q != "" {
		out.Set("q", p.Q)
	}
	return out
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

func isNull(v any, ok bool) bool { return !ok || v == nil }

func cmpByKey(a, b *Record, key string, nullsPolicy string, desc bool) int {
	va, oka := a.Data[key]
	vb, okb := b.Data[key]

	na := isNull(va, oka)
	nb := isNull(vb, okb)
	if na && nb {
		return 0
	}
	if na != nb {
		if nullsPolicy == "last" {
			if na {
				return +1
			}
			return -1
		}
		if na {
			return -1
		}
		return +1
	}

	rel := 0
	fa, okfa := va.(float64)
	fb, okfb := vb.(float64)
	if okfa && okfb {
		switch {
		case fa < fb:
			rel = -1
		case fa > fb:
			rel = +1
		}
	} else {
		sa, sb := toString(va), toString(vb)
		switch {
		case sa < sb:
			rel = -1
		case sa > sb:
			rel = +1
		}
	}
	if desc {
		rel = -rel
	}
	return rel
}

func sortRecords(records []*Record, keys []SortKey, nullsPolicy string) {
	if len(keys) == 0 {
		return
	}
	sort.SliceStable(records, func(i, j int) bool {
		for _, k := range keys {
			if k.Field == "" {
				continue
			}
			if c := cmpByKey(records[i], records[j], k.Field, nullsPolicy, k.Desc); c != 0 {
				return c < 0
			}
		}
		return false
	})
}
