package peerrpc

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// parsePositionalArguments takes the params of a call message, and asserts
// each positional argument into the reflected value of its expected type.
// Only positional (JSON array) params are supported.
func parsePositionalArguments(rawArgs json.RawMessage, types []reflect.Type) ([]reflect.Value, error) {
	if len(rawArgs) == 0 {
		if len(types) == 0 {
			return nil, nil
		}
		return nil, fmt.Errorf("missing params: expected %d args", len(types))
	}

	var args []json.RawMessage
	if err := json.Unmarshal(rawArgs, &args); err != nil {
		return nil, fmt.Errorf("params must be a positional array: %s", err)
	}
	if len(args) != len(types) {
		return nil, fmt.Errorf("invalid number of params: expected %d, got %d", len(types), len(args))
	}

	values := make([]reflect.Value, 0, len(types))
	for i, arg := range args {
		value := reflect.New(types[i])
		if err := json.Unmarshal(arg, value.Interface()); err != nil {
			return nil, fmt.Errorf("invalid param at position %d: %s", i, err)
		}
		values = append(values, value.Elem())
	}

	return values, nil
}
