package starlark

import (
	"errors"
	"fmt"

	starlarkLib "go.starlark.net/starlark"

	scripting "github.com/tx7do/go-scripting-provider"
)

// fromStarlark converts a Starlark value to Go. Ints become int64 (or *big.Int
// when they do not fit), lists and tuples become []any, dicts become map[string]any.
// Callables and other values are returned as is.
func fromStarlark(v starlarkLib.Value) (any, error) {
	if v == nil {
		return nil, nil
	}

	switch v := v.(type) {
	case starlarkLib.NoneType:
		return nil, nil
	case starlarkLib.Bool:
		return bool(v), nil
	case starlarkLib.Int:
		if i, ok := v.Int64(); ok {
			return i, nil
		}
		return v.BigInt(), nil
	case starlarkLib.Float:
		return float64(v), nil
	case starlarkLib.String:
		return string(v), nil
	case starlarkLib.Bytes:
		return []byte(v), nil
	case *starlarkLib.List:
		return fromIterable(v, v.Len())
	case starlarkLib.Tuple:
		return fromIterable(v, v.Len())
	case *starlarkLib.Set:
		return fromIterable(v, v.Len())
	case *starlarkLib.Dict:
		dict := make(map[string]any, v.Len())
		for _, item := range v.Items() {
			k, val := item[0], item[1]
			key, ok := starlarkLib.AsString(k)
			if !ok {
				key = k.String()
			}
			vv, err := fromStarlark(val)
			if err != nil {
				return nil, fmt.Errorf("failed to convert dict value: %w", err)
			}
			dict[key] = vv
		}
		return dict, nil
	default:
		return v, nil
	}
}

func fromIterable(v starlarkLib.Iterable, n int) ([]any, error) {
	out := make([]any, 0, n)
	iter := v.Iterate()
	defer iter.Done()

	var elem starlarkLib.Value
	for iter.Next(&elem) {
		x, err := fromStarlark(elem)
		if err != nil {
			return nil, fmt.Errorf("failed to convert list element: %w", err)
		}
		out = append(out, x)
	}
	return out, nil
}

// toStarlark converts a Go value to Starlark.
func toStarlark(v any) (starlarkLib.Value, error) {
	if v == nil {
		return starlarkLib.None, nil
	}

	switch val := v.(type) {
	case starlarkLib.Value:
		return val, nil
	case bool:
		return starlarkLib.Bool(val), nil
	case int:
		return starlarkLib.MakeInt(val), nil
	case int8:
		return starlarkLib.MakeInt64(int64(val)), nil
	case int16:
		return starlarkLib.MakeInt64(int64(val)), nil
	case int32:
		return starlarkLib.MakeInt64(int64(val)), nil
	case int64:
		return starlarkLib.MakeInt64(val), nil
	case uint:
		return starlarkLib.MakeUint(val), nil
	case uint32:
		return starlarkLib.MakeUint64(uint64(val)), nil
	case uint64:
		return starlarkLib.MakeUint64(val), nil
	case float32:
		return starlarkLib.Float(val), nil
	case float64:
		return starlarkLib.Float(val), nil
	case string:
		return starlarkLib.String(val), nil
	case []byte:
		return starlarkLib.Bytes(val), nil
	case fmt.Stringer:
		return starlarkLib.String(val.String()), nil
	case []string:
		elements := make([]starlarkLib.Value, len(val))
		for i, s := range val {
			elements[i] = starlarkLib.String(s)
		}
		return starlarkLib.NewList(elements), nil
	case []any:
		elements := make([]starlarkLib.Value, len(val))
		for i, elem := range val {
			var err error
			elements[i], err = toStarlark(elem)
			if err != nil {
				return nil, fmt.Errorf("failed to convert list element: %w", err)
			}
		}
		return starlarkLib.NewList(elements), nil
	case map[string]struct{}:
		set := starlarkLib.NewSet(len(val))
		for k := range val {
			if err := set.Insert(starlarkLib.String(k)); err != nil {
				return nil, fmt.Errorf("failed to insert set element: %w", err)
			}
		}
		return set, nil
	case map[string][]string:
		dict := starlarkLib.NewDict(len(val))
		for k, values := range val {
			list, _ := toStarlark(values)
			if err := dict.SetKey(starlarkLib.String(k), list); err != nil {
				return nil, fmt.Errorf("failed to set dict key: %w", err)
			}
		}
		return dict, nil
	case scripting.Bindings:
		return toStarlark(map[string]any(val))
	case map[string]any:
		dict := starlarkLib.NewDict(len(val))
		for k, elem := range val {
			sv, err := toStarlark(elem)
			if err != nil {
				return nil, fmt.Errorf("failed to convert dict value: %w", err)
			}
			if err := dict.SetKey(starlarkLib.String(k), sv); err != nil {
				return nil, fmt.Errorf("failed to set dict key: %w", err)
			}
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported type %T", v)
	}
}

// toStringDict converts bindings to predeclared Starlark values, collecting every failure.
func toStringDict(bindings scripting.Bindings) (starlarkLib.StringDict, error) {
	dict := make(starlarkLib.StringDict, len(bindings))
	var errz []error
	for k, v := range bindings {
		sv, err := toStarlark(v)
		if err != nil {
			errz = append(errz, fmt.Errorf("binding %q: %w", k, err))
			continue
		}
		dict[k] = sv
	}
	if len(errz) > 0 {
		return nil, fmt.Errorf("failed to convert bindings: %w", errors.Join(errz...))
	}
	return dict, nil
}
