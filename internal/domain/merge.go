package domain

import (
	"fmt"

	"dario.cat/mergo"
	json "github.com/goccy/go-json"
)

// MergeStates folds a later document into an accumulated one. Objects merge
// key-wise with the later value winning, arrays concatenate, and scalar
// conflicts resolve to the later value. Node input assembly uses this to
// fold ancestor outputs in topological order.
func MergeStates(current, incoming json.RawMessage) (json.RawMessage, error) {
	if len(current) == 0 {
		return incoming, nil
	}

	if len(incoming) == 0 {
		return current, nil
	}

	var currentData, incomingData interface{}

	if err := json.Unmarshal(current, &currentData); err != nil {
		return nil, fmt.Errorf("merge: unmarshal current: %w", err)
	}

	if err := json.Unmarshal(incoming, &incomingData); err != nil {
		return nil, fmt.Errorf("merge: unmarshal incoming: %w", err)
	}

	switch {
	case isObject(currentData) && isObject(incomingData):
		currentMap := currentData.(map[string]interface{})
		incomingMap := incomingData.(map[string]interface{})

		if err := mergo.Merge(&currentMap, incomingMap,
			mergo.WithOverride,
			mergo.WithAppendSlice); err != nil {
			return nil, fmt.Errorf("merge: %w", err)
		}

		merged, err := json.Marshal(currentMap)
		if err != nil {
			return nil, fmt.Errorf("merge: marshal merged: %w", err)
		}
		return merged, nil

	case isArray(currentData) && isArray(incomingData):
		currentSlice := currentData.([]interface{})
		incomingSlice := incomingData.([]interface{})

		merged := make([]interface{}, 0, len(currentSlice)+len(incomingSlice))
		merged = append(merged, currentSlice...)
		merged = append(merged, incomingSlice...)

		mergedBytes, err := json.Marshal(merged)
		if err != nil {
			return nil, fmt.Errorf("merge: marshal array: %w", err)
		}
		return mergedBytes, nil

	default:
		return incoming, nil
	}
}

func isObject(v interface{}) bool {
	_, ok := v.(map[string]interface{})
	return ok
}

func isArray(v interface{}) bool {
	_, ok := v.([]interface{})
	return ok
}
