package resolve

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adminkit/internal/schema"
)

type recorder struct{ lines []string }

func (r *recorder) Printf(format string, v ...any) { r.lines = append(r.lines, fmt.Sprintf(format, v...)) }

func TestResolveWithoutDependency(t *testing.T) {
	values := []schema.Values{nil, {}, {"a": 1}, {"disabled": false, "x": []any{1}}}
	fields := []schema.Field{
		{Key: "a"},
		{Key: "b", Props: schema.Props{"disabled": true, "placeholder": "b"}},
		{Key: "c", Props: schema.Props{"disabled": "yes"}},
	}
	for _, f := range fields {
		for _, v := range values {
			st := Resolve(&f, v)
			assert.True(t, st.Visible, "%s %v", f.Key, v)
			assert.Equal(t, f.Props.Bool("disabled"), st.Disabled, "%s %v", f.Key, v)
			assert.Equal(t, f.Props.Clone(), st.Props)
		}
	}
}

func TestResolveVisibleCallback(t *testing.T) {
	f := &schema.Field{Key: "b", Dependency: &schema.Dependency{
		DependsOn: []string{"a"},
		Visible: func(v schema.Values) bool {
			a, ok := v["a"].(int)
			return ok && a == 1
		},
	}}
	assert.True(t, Resolve(f, schema.Values{"a": 1}).Visible)
	assert.False(t, Resolve(f, schema.Values{"a": 2}).Visible)
	assert.False(t, Resolve(f, schema.Values{}).Visible)
	assert.False(t, Resolve(f, nil).Visible)
}

func TestResolveMergesProps(t *testing.T) {
	f := &schema.Field{
		Key:   "price",
		Props: schema.Props{"disabled": true, "min": 0, "step": 1},
		Dependency: &schema.Dependency{
			DependsOn: []string{"mode"},
			Disabled:  func(schema.Values) bool { return false },
			DynamicProps: func(v schema.Values) schema.Props {
				return schema.Props{"step": 5, "disabled": false, "suffix": v["mode"]}
			},
		},
	}
	st := Resolve(f, schema.Values{"mode": "bulk"})
	assert.True(t, st.Visible)
	assert.True(t, st.Disabled, "the static disable still applies")
	assert.Equal(t, schema.Props{"disabled": true, "min": 0, "step": 5, "suffix": "bulk"}, st.Props)
	assert.Equal(t, 1, f.Props["step"], "static props are not mutated")
}

func TestResolveComputedDisableWins(t *testing.T) {
	f := &schema.Field{
		Key: "x",
		Dependency: &schema.Dependency{
			Disabled:     func(schema.Values) bool { return true },
			DynamicProps: func(schema.Values) schema.Props { return schema.Props{"disabled": false} },
		},
	}
	st := Resolve(f, nil)
	assert.True(t, st.Disabled)
	assert.Equal(t, true, st.Props["disabled"])
}

func TestResolveRecoversPanics(t *testing.T) {
	rec := &recorder{}
	r := &Resolver{Logger: rec}
	f := &schema.Field{
		Key:   "x",
		Props: schema.Props{"disabled": true, "placeholder": "p"},
		Dependency: &schema.Dependency{
			Visible:      func(schema.Values) bool { return false },
			DynamicProps: func(v schema.Values) schema.Props { return schema.Props{"n": v["a"].(int)} },
		},
	}
	st := r.Resolve(f, schema.Values{})
	assert.Equal(t, State{Visible: true, Disabled: false, Props: schema.Props{"disabled": true, "placeholder": "p"}}, st)
	require.Len(t, rec.lines, 1)
	assert.True(t, strings.Contains(rec.lines[0], `"x"`))
}

func TestGuard(t *testing.T) {
	rec := &recorder{}
	err := Guard(rec, "validator", func() error { panic("bad") })
	assert.EqualError(t, err, "validator: bad")
	assert.Len(t, rec.lines, 1)
	assert.NoError(t, Guard(rec, "ok", func() error { return nil }))
}
