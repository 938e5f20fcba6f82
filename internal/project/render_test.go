package project

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"adminkit/internal/schema"
)

func render(f schema.Field, v any) any {
	cols := Project(schema.Schema{f}, Table, "")
	return cols[0].Render(v, schema.Values{f.Key: v})
}

func TestCellRendererPriority(t *testing.T) {
	f := schema.Field{
		Key:       "status",
		ValueType: schema.Switch,
		ValueEnum: schema.ValueEnum{"true": {Text: "Enabled", Status: "success"}},
		Render:    func(v any, _ schema.Values) any { return "custom" },
	}
	assert.Equal(t, "custom", render(f, true))

	f.Render = nil
	assert.Equal(t, Badge{Status: "success", Text: "Enabled"}, render(f, true))

	f.ValueEnum = nil
	assert.Equal(t, Badge{Status: "success", Text: BadgeOn}, render(f, true))
	assert.Equal(t, Badge{Status: "default", Text: BadgeOff}, render(f, false))

	f.ValueType = schema.Text
	assert.Equal(t, "raw", render(f, "raw"))
}

func TestValueTypeCells(t *testing.T) {
	assert.Equal(t, "1,234.50", render(schema.Field{Key: "m", ValueType: schema.Money}, 1234.5))
	assert.Equal(t, "1,234,567", render(schema.Field{Key: "d", ValueType: schema.Digit}, float64(1234567)))
	assert.Equal(t, "n/a", render(schema.Field{Key: "d", ValueType: schema.Digit}, "n/a"))
	assert.Equal(t, "******", render(schema.Field{Key: "p", ValueType: schema.Password}, "secret"))
	assert.Equal(t, "", render(schema.Field{Key: "p", ValueType: schema.Password}, ""))

	ts := time.Date(2024, 3, 9, 14, 5, 0, 0, time.UTC)
	assert.Equal(t, "2024-03-09", render(schema.Field{Key: "d", ValueType: schema.Date}, ts.Format(time.RFC3339)))
	assert.Equal(t, "2024-03-09 14:05:00", render(schema.Field{Key: "d", ValueType: schema.DateTime}, ts))
	assert.Equal(t, "2024-03-09 ~ 2024-03-10",
		render(schema.Field{Key: "r", ValueType: schema.DateRange}, []any{"2024-03-09", "2024-03-10"}))
}

func TestOptionAndEnumCells(t *testing.T) {
	sel := schema.Field{Key: "c", ValueType: schema.Checkbox, Props: schema.Props{"options": schema.OptionList{
		{Label: "Red", Value: "r"}, {Label: "Blue", Value: "b"},
	}}}
	assert.Equal(t, "Red", render(sel, "r"))
	assert.Equal(t, "Red, Blue", render(sel, []any{"r", "b"}))
	assert.Equal(t, "g", render(sel, "g"))

	enum := schema.Field{Key: "s", ValueEnum: schema.ValueEnum{"1": {Text: "Open"}, "2": {Text: "Closed"}}}
	assert.Equal(t, Badge{Text: "Open"}, render(enum, float64(1)))
	assert.Equal(t, []Badge{{Text: "Open"}, {Text: "Closed"}}, render(enum, []string{"1", "2"}))
	assert.Equal(t, "9", render(enum, "9"))
}

func TestRenderRow(t *testing.T) {
	s := schema.Schema{
		{Key: "name"},
		{Key: "total", ValueType: schema.Money},
		{Key: "secret", ViewFlags: schema.ViewFlags{HideInTable: true}},
	}
	row := RenderRow(Project(s, Table, ""), schema.Values{"name": "Ann", "total": 10, "secret": "x"})
	assert.Equal(t, map[string]any{"name": "Ann", "total": "10.00"}, row)
}
