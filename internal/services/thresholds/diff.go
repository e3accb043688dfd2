package thresholds

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/wI2L/jsondiff"

	"satdigital/internal/domain"
)

// Diff turns the JSON patch between two rule documents into field changes.
// Paths are JSON pointers; a nil side means the value was added or removed.
// An empty before document compares as {}.
func Diff(before, after json.RawMessage) ([]domain.FieldChange, error) {
	if len(bytes.TrimSpace(before)) == 0 {
		before = json.RawMessage(`{}`)
	}
	if len(bytes.TrimSpace(after)) == 0 {
		after = json.RawMessage(`{}`)
	}
	// Invertible emits a test op carrying the old value ahead of each
	// replace and remove.
	patch, err := jsondiff.CompareJSON(before, after, jsondiff.Invertible())
	if err != nil {
		return nil, fmt.Errorf("diff rules: %w", err)
	}

	var (
		out []domain.FieldChange
		old = map[string]json.RawMessage{}
	)
	for _, op := range patch {
		path := string(op.Path)
		switch op.Type {
		case jsondiff.OperationTest:
			v, err := json.Marshal(op.Value)
			if err != nil {
				return nil, err
			}
			old[path] = v
		case jsondiff.OperationAdd:
			v, err := json.Marshal(op.Value)
			if err != nil {
				return nil, err
			}
			out = append(out, domain.FieldChange{Path: path, After: v})
		case jsondiff.OperationReplace:
			v, err := json.Marshal(op.Value)
			if err != nil {
				return nil, err
			}
			out = append(out, domain.FieldChange{Path: path, Before: old[path], After: v})
		case jsondiff.OperationRemove:
			out = append(out, domain.FieldChange{Path: path, Before: old[path]})
		}
	}
	return out, nil
}
