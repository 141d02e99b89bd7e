package tracking

import (
	"reflect"
	"sort"
)

// DetectChanges compares every field of current with the same field of
// latest. A nil latest has no changes.
func DetectChanges(current map[string]any, latest *Snapshot) ChangeSet {
	cs := ChangeSet{ChangedFields: []string{}}
	if latest == nil {
		return cs
	}

	for field, v := range current {
		if !Equal(v, latest.Values[field]) {
			cs.ChangedFields = append(cs.ChangedFields, field)
		}
	}
	sort.Strings(cs.ChangedFields)
	cs.HasChanges = len(cs.ChangedFields) > 0
	return cs
}

// BuildHistory derives the history of an entity from its snapshots (oldest
// first) and its live field values.
func BuildHistory(kind EntityKind, path string, snapshots []Snapshot, current map[string]any) History {
	h := History{
		Kind:          kind,
		EntityPath:    path,
		Tags:          snapshots,
		ChangedFields: []string{},
	}
	if h.Tags == nil {
		h.Tags = []Snapshot{}
	}
	if len(snapshots) > 0 {
		latest := snapshots[len(snapshots)-1]
		h.LatestTag = &latest
		cs := DetectChanges(current, h.LatestTag)
		h.HasChanges = cs.HasChanges
		h.ChangedFields = cs.ChangedFields
	}
	h.State = State(h)
	return h
}

// State returns the lifecycle state of a history.
func State(h History) TagState {
	switch {
	case h.LatestTag == nil:
		return StateNone
	case h.HasChanges:
		return StateChanged
	default:
		return StateCreated
	}
}

// GetFieldHistory projects one field across snapshots, newest first.
func GetFieldHistory(field string, snapshots []Snapshot, current any) FieldHistory {
	fh := FieldHistory{
		Field:   field,
		Current: current,
		History: make([]FieldHistoryEntry, 0, len(snapshots)),
	}
	for i := len(snapshots) - 1; i >= 0; i-- {
		s := snapshots[i]
		fh.History = append(fh.History, FieldHistoryEntry{
			Value:     s.Values[field],
			Timestamp: s.Timestamp,
			Version:   s.Version,
		})
	}
	return fh
}

// Equal reports whether two field values are the same after
// normalization: nil and "" are both empty, integers compare as float64,
// anything else compares deeply.
func Equal(a, b any) bool {
	return reflect.DeepEqual(normalize(a), normalize(b))
}

// normalize maps a field value onto its comparison form.
func normalize(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		if x == "" {
			return nil
		}
		return x
	case int:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case float32:
		return float64(x)
	default:
		return v
	}
}

// currentValues picks the field group of kind out of a live document.
// Missing fields are present with a nil value.
func currentValues(kind EntityKind, data map[string]any) map[string]any {
	fields := kind.Fields()
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		out[f] = data[f]
	}
	return out
}
