package hostapi

import (
	"fmt"

	ouerrors "openusage.dev/openusage/pkg/errors"
)

// String returns a required string argument.
func (a Args) String(capability Capability, key string) (string, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return "", ouerrors.NewHostCallError(string(capability), fmt.Sprintf("missing argument %q", key))
	}
	s, ok := v.(string)
	if !ok {
		return "", ouerrors.NewHostCallError(string(capability), fmt.Sprintf("argument %q must be a string, got %T", key, v))
	}
	return s, nil
}

// OptionalString returns a string argument, or def when it is absent.
func (a Args) OptionalString(capability Capability, key, def string) (string, error) {
	if v, ok := a[key]; !ok || v == nil {
		return def, nil
	}
	return a.String(capability, key)
}

// Map returns a required table argument.
func (a Args) Map(capability Capability, key string) (map[string]any, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return nil, ouerrors.NewHostCallError(string(capability), fmt.Sprintf("missing argument %q", key))
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, ouerrors.NewHostCallError(string(capability), fmt.Sprintf("argument %q must be a table, got %T", key, v))
	}
	return m, nil
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}
