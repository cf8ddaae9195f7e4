package registry

import (
	"fmt"
	"reflect"
	"sort"
)

// SpecDiff is the structural difference between two contract spec payloads.
// Paths use dotted notation into nested objects.
type SpecDiff struct {
	Added   []string
	Removed []string
	Changed []string
}

// HasRemovals reports whether the diff removes previously published
// structure, the marker of a breaking change.
func (d SpecDiff) HasRemovals() bool {
	return len(d.Removed) > 0
}

func (d SpecDiff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// DiffSpecs walks both spec payloads and classifies every leaf path as
// added, removed or changed.
func DiffSpecs(old, new map[string]interface{}) SpecDiff {
	var diff SpecDiff
	walkDiff("", old, new, &diff)
	sort.Strings(diff.Added)
	sort.Strings(diff.Removed)
	sort.Strings(diff.Changed)
	return diff
}

func walkDiff(prefix string, old, new map[string]interface{}, diff *SpecDiff) {
	for key, oldVal := range old {
		path := joinPath(prefix, key)
		newVal, exists := new[key]
		if !exists {
			diff.Removed = append(diff.Removed, path)
			continue
		}

		oldMap, oldIsMap := oldVal.(map[string]interface{})
		newMap, newIsMap := newVal.(map[string]interface{})
		switch {
		case oldIsMap && newIsMap:
			walkDiff(path, oldMap, newMap, diff)
		case oldIsMap != newIsMap:
			diff.Changed = append(diff.Changed, path)
		default:
			if !reflect.DeepEqual(oldVal, newVal) {
				diff.Changed = append(diff.Changed, path)
			}
		}
	}

	for key := range new {
		if _, exists := old[key]; !exists {
			diff.Added = append(diff.Added, joinPath(prefix, key))
		}
	}
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return fmt.Sprintf("%s.%s", prefix, key)
}
