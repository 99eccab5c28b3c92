package hostapi

import (
	"context"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	ouerrors "openusage.dev/openusage/pkg/errors"
)

// handleJSONQuery evaluates a gjson path. Missing paths yield nil.
func (s *Surface) handleJSONQuery(_ context.Context, _ Caller, args Args) (any, error) {
	doc, err := args.String(CapabilityJSONQuery, "document")
	if err != nil {
		return nil, err
	}
	path, err := args.String(CapabilityJSONQuery, "path")
	if err != nil {
		return nil, err
	}
	if !gjson.Valid(doc) {
		return nil, ouerrors.NewHostCallError(string(CapabilityJSONQuery), "document is not valid JSON")
	}

	result := gjson.Get(doc, path)
	if !result.Exists() {
		return nil, nil
	}
	return result.Value(), nil
}

// handleJSONSet returns a copy of the document with value set at path.
func (s *Surface) handleJSONSet(_ context.Context, _ Caller, args Args) (any, error) {
	doc, err := args.OptionalString(CapabilityJSONSet, "document", "{}")
	if err != nil {
		return nil, err
	}
	path, err := args.String(CapabilityJSONSet, "path")
	if err != nil {
		return nil, err
	}

	out, err := sjson.Set(doc, path, args["value"])
	if err != nil {
		return nil, ouerrors.NewHostCallErrorWithCause(string(CapabilityJSONSet), "cannot set "+path, err, false)
	}
	return out, nil
}
