package dispatch

import (
	"fmt"
	"reflect"
	"sync"
)

type fieldKey struct {
	typ  reflect.Type
	name string
}

type fieldInfo struct {
	index []int
	found bool
}

// fieldCache memoizes (payload type, property name) → field index. The
// first access per pair pays the reflection cost; subsequent accesses are a
// map hit and a direct index.
var fieldCache sync.Map

// fetchField reads the named exported field from an arbitrary struct
// payload (or pointer to one). The second return reports whether the field
// exists on the payload's type.
func fetchField(payload any, name string) (any, bool) {
	v := reflect.ValueOf(payload)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil, false
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil, false
	}

	key := fieldKey{typ: v.Type(), name: name}
	cached, ok := fieldCache.Load(key)
	if !ok {
		field, found := v.Type().FieldByName(name)
		info := fieldInfo{found: found && field.IsExported()}
		if info.found {
			info.index = field.Index
		}
		cached, _ = fieldCache.LoadOrStore(key, info)
	}

	info := cached.(fieldInfo)
	if !info.found {
		return nil, false
	}
	return v.FieldByIndex(info.index).Interface(), true
}

// extractError reports a payload-shape mismatch: a missing field or a value
// of the wrong type. It carries the event and field names for diagnostics
// and drop accounting.
type extractError struct {
	Event string
	Field string
	Err   error
}

func (e *extractError) Error() string {
	return fmt.Sprintf("event %s: field %s: %v", e.Event, e.Field, e.Err)
}

func (e *extractError) Unwrap() error {
	return e.Err
}

// field pulls a typed field out of a payload, tolerating a missing optional
// field (zero value, nil error) when required is false.
func field[T any](payload any, event, name string, required bool) (T, *extractError) {
	var zero T

	raw, ok := fetchField(payload, name)
	if !ok {
		if !required {
			return zero, nil
		}
		return zero, &extractError{Event: event, Field: name, Err: fmt.Errorf("not present")}
	}
	if raw == nil {
		if required {
			return zero, &extractError{Event: event, Field: name, Err: fmt.Errorf("nil value")}
		}
		return zero, nil
	}

	value, ok := raw.(T)
	if !ok {
		return zero, &extractError{
			Event: event,
			Field: name,
			Err:   fmt.Errorf("unexpected type %T", raw),
		}
	}
	return value, nil
}
