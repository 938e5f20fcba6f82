package reference

import (
	"sort"
	"time"

	"adminkit/internal/schema"
)

// EnumDirectory is one enum catalog, e.g. order statuses.
type EnumDirectory struct {
	Name  string     `yaml:"name"`
	Items []EnumItem `yaml:"items"`
}

type EnumItem struct {
	Code string `yaml:"code"`
	Name string `yaml:"name"`
	// Status is a display hint (success, warning, error, processing, default).
	Status    string `yaml:"status,omitempty"`
	Order     int    `yaml:"order,omitempty"`
	ValidFrom string `yaml:"valid_from,omitempty"`
	ValidTo   string `yaml:"valid_to,omitempty"`
}

// Active reports whether the item is valid at t. Unparseable bounds are ignored.
func (it EnumItem) Active(t time.Time) bool {
	if it.ValidFrom != "" {
		if from, err := time.Parse("2006-01-02", it.ValidFrom); err == nil && t.Before(from) {
			return false
		}
	}
	if it.ValidTo != "" {
		if to, err := time.Parse("2006-01-02", it.ValidTo); err == nil && !t.Before(to.AddDate(0, 0, 1)) {
			return false
		}
	}
	return true
}

// Sorted returns the items ordered by Order, keeping file order for ties.
func (d EnumDirectory) Sorted() []EnumItem {
	out := append([]EnumItem(nil), d.Items...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// Catalog is the set of loaded enum directories keyed by name.
type Catalog map[string]EnumDirectory

// Catalog implements schema.CatalogSource. Items outside their validity window
// are still mapped for display but offered as disabled options.
func (c Catalog) Catalog(name string) (schema.ValueEnum, schema.OptionList, bool) {
	return c.catalogAt(name, time.Now())
}

func (c Catalog) catalogAt(name string, now time.Time) (schema.ValueEnum, schema.OptionList, bool) {
	dir, ok := c[name]
	if !ok {
		return nil, nil, false
	}
	items := dir.Sorted()
	ve := make(schema.ValueEnum, len(items))
	opts := make(schema.OptionList, 0, len(items))
	for _, it := range items {
		ve[it.Code] = schema.EnumEntry{Text: it.Name, Status: it.Status}
		opts = append(opts, schema.Option{Label: it.Name, Value: it.Code, Disabled: !it.Active(now)})
	}
	return ve, opts, true
}
