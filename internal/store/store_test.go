package store

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adminkit/internal/schema"
)

var customerFields = schema.Schema{
	{Key: "name"},
	{Key: "age", ValueType: schema.Digit},
	{Key: "status", ValueType: schema.Select, ValueEnum: schema.ValueEnum{"open": {Text: "Open"}, "closed": {Text: "Closed"}}},
	{Key: "born", ValueType: schema.Date},
	{Key: "tags", ValueType: schema.Checkbox},
}

func listAll(t *testing.T, s Store, raw string) ([]*Record, int) {
	t.Helper()
	q, err := url.ParseQuery(raw)
	require.NoError(t, err)
	recs, total, err := s.List(context.Background(), "customers", customerFields, ParseListParams(q))
	require.NoError(t, err)
	return recs, total
}

func names(recs []*Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i], _ = r.Data["name"].(string)
	}
	return out
}

// runStoreSuite exercises the behaviour every Store shares.
func runStoreSuite(t *testing.T, s Store) {
	ctx := context.Background()
	seed := []map[string]any{
		{"name": "Ann", "age": float64(31), "status": "open", "born": "1993-04-01", "tags": []any{"vip"}},
		{"name": "Bob", "age": float64(25), "status": "closed", "born": "1999-01-15"},
		{"name": "Annette", "age": float64(47), "status": "open", "born": "1977-12-30", "tags": []any{"new", "vip"}},
		{"name": "Carl", "status": "closed"},
	}
	var ids []string
	for _, d := range seed {
		rec, err := s.Create(ctx, "customers", d)
		require.NoError(t, err)
		assert.EqualValues(t, 1, rec.Version)
		ids = append(ids, rec.ID)
	}
	_, err := s.Create(ctx, "orders", map[string]any{"name": "other screen"})
	require.NoError(t, err)

	t.Run("list in creation order", func(t *testing.T) {
		recs, total := listAll(t, s, "")
		assert.Equal(t, 4, total)
		assert.Equal(t, []string{"Ann", "Bob", "Annette", "Carl"}, names(recs))
	})

	t.Run("filters", func(t *testing.T) {
		tests := []struct {
			query string
			want  []string
		}{
			{"name=ann", []string{"Ann", "Annette"}},
			{"status=open", []string{"Ann", "Annette"}},
			{"status__in=closed", []string{"Bob", "Carl"}},
			{"age__gte=30", []string{"Ann", "Annette"}},
			{"age__lt=30", []string{"Bob"}},
			{"born__lt=1990-01-01", []string{"Annette"}},
			{"tags=new", []string{"Annette"}},
			{"q=bo", []string{"Bob"}},
			{"unknown=1", []string{}},
		}
		for _, tt := range tests {
			recs, total := listAll(t, s, tt.query)
			assert.Equal(t, tt.want, names(recs), tt.query)
			assert.Equal(t, len(tt.want), total, tt.query)
		}
	})

	t.Run("sort and page", func(t *testing.T) {
		recs, total := listAll(t, s, "_sort=-age&_limit=2&_offset=0")
		assert.Equal(t, 4, total)
		assert.Equal(t, []string{"Annette", "Ann"}, names(recs))

		recs, _ = listAll(t, s, "_sort=age&nulls=first&_limit=2&_offset=0")
		assert.Equal(t, []string{"Carl", "Bob"}, names(recs))

		recs, _ = listAll(t, s, "_sort=name&current=2&pageSize=3")
		assert.Equal(t, []string{"Carl"}, names(recs))

		recs, total = listAll(t, s, "_limit=2&_offset=10")
		assert.Empty(t, recs)
		assert.Equal(t, 4, total)
	})

	t.Run("update", func(t *testing.T) {
		rec, err := s.Update(ctx, "customers", ids[1], map[string]any{"name": "Bobby", "status": "open"}, 1)
		require.NoError(t, err)
		assert.EqualValues(t, 2, rec.Version)
		assert.Equal(t, "Bobby", rec.Data["name"])

		_, err = s.Update(ctx, "customers", ids[1], map[string]any{"name": "x"}, 1)
		assert.ErrorIs(t, err, ErrVersionConflict)
		_, err = s.Update(ctx, "customers", "nope", map[string]any{}, 0)
		assert.ErrorIs(t, err, ErrNotFound)

		got, err := s.Get(ctx, "customers", ids[1])
		require.NoError(t, err)
		assert.Equal(t, "Bobby", got.Data["name"])
		_, hasAge := got.Data["age"]
		assert.False(t, hasAge, "update replaces the data")
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, s.Delete(ctx, "customers", ids[0]))
		assert.ErrorIs(t, s.Delete(ctx, "customers", ids[0]), ErrNotFound)
		_, err := s.Get(ctx, "customers", ids[0])
		assert.ErrorIs(t, err, ErrNotFound)

		deleted, err := s.BatchDelete(ctx, "customers", []string{ids[0], ids[2], "missing"})
		require.NoError(t, err)
		assert.Equal(t, []string{ids[2]}, deleted)

		recs, total := listAll(t, s, "")
		assert.Equal(t, 2, total)
		assert.Equal(t, []string{"Bobby", "Carl"}, names(recs))
	})
}

func TestMemoryStore(t *testing.T) {
	s := NewMemory()
	defer s.Close()
	runStoreSuite(t, s)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	rec, err := s.Create(ctx, "x", map[string]any{"a": 1})
	require.NoError(t, err)
	rec.Data["a"] = 2
	got, err := s.Get(ctx, "x", rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Data["a"])
}

func TestSQLiteStore(t *testing.T) {
	s, err := OpenSQL(DriverSQLite, ":memory:")
	require.NoError(t, err)
	defer s.Close()
	runStoreSuite(t, s)
}

func TestOpenSQLUnknownDriver(t *testing.T) {
	_, err := OpenSQL("oracle", "")
	assert.ErrorContains(t, err, "unknown store driver")
}

func TestOpenByDriver(t *testing.T) {
	s, err := Open("", "")
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, s)

	s, err = Open(DriverSQLite, ":memory:")
	require.NoError(t, err)
	assert.IsType(t, &SQL{}, s)
	require.NoError(t, s.Close())
}

func TestParseListParams(t *testing.T) {
	q, _ := url.ParseQuery("_limit=5&_offset=10&_sort=-age,+name&q=%20ann%20&status=open&empty=&nulls=bogus")
	p := ParseListParams(q)
	assert.Equal(t, 5, p.Limit)
	assert.Equal(t, 10, p.Offset)
	assert.Equal(t, []SortKey{{Field: "age", Desc: true}, {Field: "name"}}, p.Sort)
	assert.Equal(t, "ann", p.Q)
	assert.Equal(t, "last", p.Nulls)
	assert.Equal(t, url.Values{"status": {"open"}}, p.Filters)

	p = ParseListParams(url.Values{"_limit": {"5000"}})
	assert.Equal(t, DefaultLimit, p.Limit)

	enc := ParseListParams(q).Encode()
	assert.Equal(t, "-age,name", enc.Get("_sort"))
	assert.Equal(t, "open", enc.Get("status"))
}

func TestFlatten(t *testing.T) {
	rec := &Record{ID: "1", Version: 2, Data: map[string]any{"name": "Ann", "id": "spoof"}}
	out := Flatten(rec)
	assert.Equal(t, "1", out["id"])
	assert.Equal(t, "spoof", out["data.id"])
	assert.Equal(t, "Ann", out["name"])
}
