package view

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adminkit/internal/access"
	"adminkit/internal/controls"
	"adminkit/internal/crud"
	"adminkit/internal/display"
	"adminkit/internal/project"
	"adminkit/internal/schema"
	"adminkit/internal/validate"
)

type quiet struct{}

func (quiet) Printf(string, ...any) {}

type cityFetcher struct {
	mu    sync.Mutex
	calls []any
}

func (c *cityFetcher) fetch(_ context.Context, deps schema.Values) (schema.OptionList, error) {
	c.mu.Lock()
	c.calls = append(c.calls, deps["country"])
	c.mu.Unlock()
	switch deps["country"] {
	case "no":
		return schema.OptionList{{Label: "Oslo", Value: "osl"}, {Label: "Bergen", Value: "bgo"}}, nil
	case "se":
		return schema.OptionList{{Label: "Stockholm", Value: "sto"}}, nil
	}
	return nil, errors.New("unknown country")
}

func (c *cityFetcher) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

func customerFields(cities *cityFetcher) schema.Schema {
	return schema.Schema{
		{Key: "id", Label: "ID", ViewFlags: schema.ViewFlags{HideInSearch: true, HideInForm: true}, Capability: "customers.ids"},
		{Key: "name", Label: "Name", Rules: []schema.Rule{{Kind: schema.RuleRequired}}},
		{Key: "active", Label: "Active", ValueType: schema.Switch, Dependency: &schema.Dependency{
			DependsOn: []string{"name"},
			Visible:   func(v schema.Values) bool { s, _ := v["name"].(string); return s != "" },
		}},
		{Label: "Address", ValueType: schema.Divider},
		{Key: "country", Label: "Country", ValueType: schema.Select, Props: schema.Props{"options": schema.OptionList{
			{Label: "Norway", Value: "no"}, {Label: "Sweden", Value: "se"},
		}}},
		{Key: "city", Label: "City", ValueType: schema.Select,
			AsyncOptions: &schema.AsyncOptions{Fetch: cities.fetch, DependsOn: []string{"country"}},
			Rules:        []schema.Rule{{Kind: schema.RuleRequired}},
			Dependency: &schema.Dependency{
				DependsOn: []string{"country"},
				Visible:   func(v schema.Values) bool { return v["country"] != nil },
			},
		},
	}
}

func waitForm(t *testing.T, f *Form) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.Wait(ctx))
}

func TestFormNameActiveScenario(t *testing.T) {
	ctx := context.Background()
	f, err := NewForm(ctx, customerFields(&cityFetcher{}), project.Form, project.Create, nil, FormConfig{Logger: quiet{}})
	require.NoError(t, err)

	keys := func() []string {
		var out []string
		for _, it := range f.Render() {
			out = append(out, it.Key)
		}
		return out
	}
	assert.Equal(t, []string{"name", "field-3", "country"}, keys())

	ch := f.Set(ctx, "name", "Ann")
	assert.Equal(t, []string{"active"}, ch.States)
	assert.Equal(t, []string{"name", "active", "field-3", "country"}, keys())

	// same value again changes nothing
	assert.Empty(t, f.Set(ctx, "name", "Ann").States)

	f.Set(ctx, "active", true)
	f.Set(ctx, "name", "")
	assert.Equal(t, []string{"name", "field-3", "country"}, keys())
	// hidden fields keep their values
	assert.Equal(t, true, f.Values()["active"])
}

func TestFormDependentOptions(t *testing.T) {
	ctx := context.Background()
	cities := &cityFetcher{}
	f, err := NewForm(ctx, customerFields(cities), project.Form, project.Edit, schema.Values{"name": "Ann"}, FormConfig{Logger: quiet{}})
	require.NoError(t, err)
	waitForm(t, f)
	assert.Equal(t, 0, cities.count(), "no fetch while country is missing")

	ch := f.Set(ctx, "country", "no")
	assert.Equal(t, []string{"city"}, ch.Fetches)
	assert.Equal(t, []string{"city"}, ch.States)
	waitForm(t, f)

	city := findItem(t, f.Render(), "city")
	assert.Equal(t, controls.KindSelect, city.Control.Kind)
	assert.Equal(t, schema.OptionList{{Label: "Oslo", Value: "osl"}, {Label: "Bergen", Value: "bgo"}}, city.Control.Props.Options())
	assert.False(t, city.Loading)

	f.Set(ctx, "country", "se")
	waitForm(t, f)
	ch = f.Set(ctx, "country", "no")
	assert.Empty(t, ch.Fetches, "seen combination is served from memory")
	city = findItem(t, f.Render(), "city")
	assert.Equal(t, "Oslo", city.Control.Props.Options()[0].Label)
	assert.Equal(t, 2, cities.count())
}

func TestFormValidateSkipsHiddenFields(t *testing.T) {
	ctx := context.Background()
	f, err := NewForm(ctx, customerFields(&cityFetcher{}), project.Form, project.Create, nil, FormConfig{Logger: quiet{}})
	require.NoError(t, err)

	errs := f.Validate()
	require.Len(t, errs, 1)
	assert.Equal(t, validate.FieldError{Code: validate.ErrRequired, Field: "name", Message: "Field 'name' is required"}, errs[0])

	f.Set(ctx, "name", "Ann")
	f.Set(ctx, "country", "se")
	errs = f.Validate()
	require.Len(t, errs, 1)
	assert.Equal(t, "city", errs[0].Field)

	f.Set(ctx, "city", "sto")
	assert.Empty(t, f.Validate())
}

func TestFormRejectsBadSchemas(t *testing.T) {
	ctx := context.Background()
	_, err := NewForm(ctx, schema.Schema{{Key: "a"}, {Key: "a"}}, project.Form, "", nil, FormConfig{})
	var ce *schema.ConfigError
	assert.ErrorAs(t, err, &ce)

	_, err = NewForm(ctx, schema.Schema{{Key: "a"}}, project.Table, "", nil, FormConfig{})
	assert.ErrorIs(t, err, ErrTableView)
}

func findItem(t *testing.T, items []Item, key string) Item {
	t.Helper()
	for _, it := range items {
		if it.Key == key {
			return it
		}
	}
	t.Fatalf("item %q not rendered", key)
	return Item{}
}

func memoryResource(n int) *crud.Funcs {
	var rows []crud.Record
	for i := 1; i <= n; i++ {
		rows = append(rows, crud.Record{"id": fmt.Sprint(i), "name": fmt.Sprintf("c%d", i), "active": i%2 == 0})
	}
	return &crud.Funcs{
		ListFn: func(_ context.Context, q crud.Query) (crud.ListResult, error) {
			start := min((q.Page-1)*q.PageSize, len(rows))
			end := min(start+q.PageSize, len(rows))
			return crud.ListResult{Rows: rows[start:end], Total: len(rows)}, nil
		},
	}
}

func customerScreen() *schema.Screen {
	return &schema.Screen{
		Name:         "customers",
		RowKey:       "id",
		PageSize:     2,
		Refresh:      "reset",
		Capabilities: schema.Capabilities{Delete: "customers.delete"},
		Fields:       customerFields(&cityFetcher{}),
	}
}

func TestScreen(t *testing.T) {
	ctx := context.Background()
	s, err := NewScreen(customerScreen(), memoryResource(5), ScreenConfig{Logger: quiet{}})
	require.NoError(t, err)

	assert.Equal(t, []string{"name", "active", "country", "city"}, project.Keys(s.Search))
	assert.Equal(t, []string{"id", "name", "active", "country", "city"}, project.Keys(s.Table))
	assert.Equal(t, 2, s.CRUD.State().PageSize)

	require.NoError(t, s.CRUD.Search(ctx, nil))
	reader := access.NewSet("customers.read")
	assert.Equal(t, Actions{Create: true, Edit: true, Delete: false}, s.Actions(reader))
	assert.Equal(t, Actions{Create: true, Edit: true, Delete: true}, s.Actions(access.All))

	// the id column needs its capability, the row key is always returned
	assert.Equal(t, []string{"name", "active", "country", "city"}, project.Keys(s.Columns(reader)))
	require.NoError(t, s.Display.ToggleColumn("country"))
	require.NoError(t, s.Display.MoveColumn("active", "name", true))
	assert.Equal(t, []string{"id", "active", "name", "city"}, project.Keys(s.Columns(access.All)))

	rows := s.Rows(reader)
	require.Len(t, rows, 2)
	assert.Equal(t, "1", rows[0]["id"])
	assert.Equal(t, project.Badge{Status: "default", Text: project.BadgeOff}, rows[0]["active"])
	assert.Equal(t, project.Badge{Status: "success", Text: project.BadgeOn}, rows[1]["active"])
	assert.NotContains(t, rows[0], "country")

	assert.Equal(t, display.Middle, s.Display.State().Density)
}

func TestScreenNeedsAResource(t *testing.T) {
	_, err := NewScreen(&schema.Screen{Name: "x", RowKey: "id"}, nil, ScreenConfig{})
	assert.ErrorIs(t, err, crud.ErrNoResource)

	_, err = NewScreen(&schema.Screen{Name: "x", RowKey: "id", Refresh: "sometimes"}, memoryResource(0), ScreenConfig{})
	assert.Error(t, err)
}

func TestScreenForms(t *testing.T) {
	ctx := context.Background()
	s, err := NewScreen(customerScreen(), memoryResource(0), ScreenConfig{Logger: quiet{}})
	require.NoError(t, err)

	f, err := s.Form(ctx, project.Edit, schema.Values{"name": "Ann"}, FormConfig{Logger: quiet{}})
	require.NoError(t, err)
	assert.Equal(t, project.Form, f.View())
	assert.Equal(t, project.Edit, f.Mode())

	sf, err := s.SearchForm(ctx, nil, FormConfig{Logger: quiet{}})
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "active", "country", "city"}, project.Keys(sf.Items()))
	// dividers never show in search
	for _, it := range sf.Render() {
		assert.False(t, it.Divider)
	}
}
