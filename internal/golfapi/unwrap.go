package golfapi

import (
	"encoding/json"
	"errors"
)

// ErrUnexpectedShape is returned when no extraction strategy matches a response body.
var ErrUnexpectedShape = errors.New("unexpected response shape")

// Record is one loosely-typed object from a backend list.
type Record = map[string]any

// Strategy tries to locate a list inside a decoded response body.
type Strategy func(v any) ([]any, bool)

// Bare matches a body that is itself a list.
func Bare() Strategy {
	return func(v any) ([]any, bool) {
		list, ok := v.([]any)
		return list, ok
	}
}

// Field matches a list nested under the given object path, e.g. Field("data", "bookings").
func Field(path ...string) Strategy {
	return func(v any) ([]any, bool) {
		cur := v
		for _, name := range path {
			obj, ok := cur.(map[string]any)
			if !ok {
				return nil, false
			}
			cur, ok = obj[name]
			if !ok {
				return nil, false
			}
		}
		list, ok := cur.([]any)
		return list, ok
	}
}

// BookingStrategies are the shapes the booking endpoints have been seen to return.
func BookingStrategies() []Strategy {
	return []Strategy{
		Bare(),
		Field("bookings"),
		Field("data"),
		Field("data", "bookings"),
		Field("data", "data"),
	}
}

// CaddyStrategies are the shapes the caddy roster endpoint has been seen to return.
func CaddyStrategies() []Strategy {
	return []Strategy{
		Bare(),
		Field("list"),
		Field("items"),
		Field("data"),
		Field("data", "list"),
	}
}

// Unwrap decodes body and applies strategies in order, stopping at the first match.
// Non-object list elements are skipped.
func Unwrap(body []byte, strategies ...Strategy) ([]Record, error) {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, errors.Join(ErrUnexpectedShape, err)
	}

	for _, s := range strategies {
		list, ok := s(v)
		if !ok {
			continue
		}
		out := make([]Record, 0, len(list))
		for _, item := range list {
			if rec, ok := item.(map[string]any); ok {
				out = append(out, rec)
			}
		}
		return out, nil
	}
	return nil, ErrUnexpectedShape
}
