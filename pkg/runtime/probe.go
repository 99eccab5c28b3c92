package runtime

import (
	"encoding/json"
	"fmt"
	"strconv"

	lua "github.com/yuin/gopher-lua"
)

// LineType is the kind of a metric line.
type LineType string

// Metric line kinds a probe may return.
const (
	LineText     LineType = "text"
	LineProgress LineType = "progress"
	LineBadge    LineType = "badge"
)

// ErrorColor is used for error badges.
const ErrorColor = "#ef4444"

// MetricLine is one row of probe output.
//
// Text lines use Label and Text. Progress lines use Label, Value, Max and
// Unit. Badge lines use Label and Text.
type MetricLine struct {
	Type  LineType
	Label string
	Text  string
	Value float64
	Max   float64
	Unit  string
	Color string
}

// MarshalJSON encodes the line in the plugin wire shape, where a text line
// carries its text under "value".
func (l MetricLine) MarshalJSON() ([]byte, error) {
	m := map[string]any{"type": l.Type, "label": l.Label}
	switch l.Type {
	case LineText:
		m["value"] = l.Text
	case LineProgress:
		m["value"] = l.Value
		m["max"] = l.Max
		if l.Unit != "" {
			m["unit"] = l.Unit
		}
	case LineBadge:
		m["text"] = l.Text
	}
	if l.Color != "" {
		m["color"] = l.Color
	}
	return json.Marshal(m)
}

// ErrorBadge returns a badge line describing a failure.
func ErrorBadge(text string) MetricLine {
	return MetricLine{Type: LineBadge, Label: "Error", Text: text, Color: ErrorColor}
}

// ProbeOutput is the result of probing one plugin.
type ProbeOutput struct {
	ProviderID  string       `json:"providerId"`
	DisplayName string       `json:"displayName"`
	Lines       []MetricLine `json:"lines"`
}

// parseProbeResult converts the value returned by probe() into metric lines.
func parseProbeResult(v lua.LValue) ([]MetricLine, error) {
	tbl, ok := v.(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("probe must return a table, got %s", v.Type())
	}
	linesTbl, ok := tbl.RawGetString("lines").(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("probe result has no lines table")
	}

	n := linesTbl.Len()
	lines := make([]MetricLine, 0, n)
	for i := 1; i <= n; i++ {
		lineTbl, ok := linesTbl.RawGetInt(i).(*lua.LTable)
		if !ok {
			return nil, fmt.Errorf("line %d is not a table", i)
		}
		line, err := parseLine(lineTbl)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i, err)
		}
		lines = append(lines, line)
	}
	return lines, nil
}

func parseLine(t *lua.LTable) (MetricLine, error) {
	typ, _ := tableString(t, "type")
	label, ok := tableString(t, "label")
	if !ok {
		return MetricLine{}, fmt.Errorf("missing label")
	}
	color, _ := tableString(t, "color")

	line := MetricLine{Type: LineType(typ), Label: label, Color: color}
	switch line.Type {
	case LineText:
		switch v := t.RawGetString("value").(type) {
		case lua.LString:
			line.Text = string(v)
		case lua.LNumber:
			line.Text = strconv.FormatFloat(float64(v), 'f', -1, 64)
		default:
			return MetricLine{}, fmt.Errorf("text line %q needs a string value", label)
		}
	case LineProgress:
		value, ok := tableNumber(t, "value")
		if !ok {
			return MetricLine{}, fmt.Errorf("progress line %q needs a numeric value", label)
		}
		maxValue, ok := tableNumber(t, "max")
		if !ok || maxValue <= 0 {
			return MetricLine{}, fmt.Errorf("progress line %q needs a positive max", label)
		}
		line.Value = value
		line.Max = maxValue
		line.Unit, _ = tableString(t, "unit")
	case LineBadge:
		text, ok := tableString(t, "text")
		if !ok {
			return MetricLine{}, fmt.Errorf("badge line %q needs text", label)
		}
		line.Text = text
	default:
		return MetricLine{}, fmt.Errorf("unknown line type %q", typ)
	}
	return line, nil
}
