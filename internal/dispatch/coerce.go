package dispatch

import (
	"encoding/json"
	"math"
	"reflect"
	"slices"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/xeipuuv/gojsonschema"

	"toolshim-mcp/internal/registry"
)

// argumentError lists the parameters that failed validation.
type argumentError struct {
	params  []string
	reasons []string
}

func (e *argumentError) add(param, reason string) {
	if !slices.Contains(e.params, param) {
		e.params = append(e.params, param)
	}
	e.reasons = append(e.reasons, reason)
}

func (e *argumentError) empty() bool { return len(e.params) == 0 }

func (e *argumentError) Error() string {
	return strings.Join(e.reasons, "; ")
}

// prepareArguments checks raw arguments against the descriptor, applies
// defaults and coerces values to their declared types. The result is then
// validated against the compiled schema for enum, bound and length rules.
func prepareArguments(desc registry.ToolDescriptor, schema *gojsonschema.Schema, raw map[string]any) (registry.Arguments, *argumentError) {
	verr := &argumentError{}
	args := make(registry.Arguments, len(desc.Parameters))

	for name := range raw {
		if _, ok := desc.Parameter(name); !ok {
			verr.add(name, "unexpected argument "+strconv.Quote(name))
		}
	}

	for _, p := range desc.Parameters {
		v, present := raw[p.Name]
		if !present || v == nil {
			switch {
			case p.Default != nil:
				v = p.Default
			case p.Required:
				verr.add(p.Name, "missing required argument "+strconv.Quote(p.Name))
				continue
			default:
				continue
			}
		}

		cv, err := coerce(p.Type, p.Items, v)
		if err != nil {
			verr.add(p.Name, strconv.Quote(p.Name)+": "+err.Error())
			continue
		}
		args[p.Name] = cv
	}

	if !verr.empty() {
		slices.Sort(verr.params)
		return nil, verr
	}

	if schema != nil {
		res, err := schema.Validate(gojsonschema.NewGoLoader(map[string]any(args)))
		if err != nil {
			verr.add("(arguments)", err.Error())
			return nil, verr
		}
		if !res.Valid() {
			for _, re := range res.Errors() {
				verr.add(paramOf(re), re.String())
			}
			slices.Sort(verr.params)
			return nil, verr
		}
	}

	return args, nil
}

// paramOf maps a schema error back to the top-level parameter it concerns.
func paramOf(re gojsonschema.ResultError) string {
	field := re.Field()
	if field == "" || field == "(root)" {
		if p, ok := re.Details()["property"].(string); ok {
			return p
		}
		return "(arguments)"
	}
	if i := strings.IndexByte(field, '.'); i > 0 {
		return field[:i]
	}
	return field
}

func coerce(t, items registry.ParamType, v any) (any, error) {
	switch t {
	case registry.TypeString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case registry.TypeInteger:
		return toInteger(v)
	case registry.TypeNumber:
		return toNumber(v)
	case registry.TypeBoolean:
		switch b := v.(type) {
		case bool:
			return b, nil
		case string:
			if pb, err := strconv.ParseBool(strings.TrimSpace(b)); err == nil {
				return pb, nil
			}
		}
	case registry.TypeArray:
		return toArray(items, v)
	case registry.TypeObject:
		return toObject(v)
	}
	return nil, errors.Newf("expected %s, got %s", t, describe(v))
}

func toInteger(v any) (any, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
		if f, err := n.Float64(); err == nil {
			return floatToInteger(f)
		}
	case string:
		if i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64); err == nil {
			return i, nil
		}
	case float32:
		return floatToInteger(float64(n))
	case float64:
		return floatToInteger(n)
	default:
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return rv.Int(), nil
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			if rv.Uint() <= math.MaxInt64 {
				return int64(rv.Uint()), nil
			}
		}
	}
	return nil, errors.Newf("expected integer, got %s", describe(v))
}

func floatToInteger(f float64) (any, error) {
	if f != math.Trunc(f) || math.IsInf(f, 0) || f > math.MaxInt64 || f < math.MinInt64 {
		return nil, errors.Newf("expected integer, got %v", f)
	}
	return int64(f), nil
}

func toNumber(v any) (any, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return f, nil
		}
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return f, nil
		}
	default:
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return float64(rv.Int()), nil
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return float64(rv.Uint()), nil
		}
	}
	return nil, errors.Newf("expected number, got %s", describe(v))
}

func toArray(items registry.ParamType, v any) (any, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, errors.Newf("expected array, got %s", describe(v))
	}
	out := make([]any, rv.Len())
	for i := range out {
		el := rv.Index(i).Interface()
		if items == "" {
			out[i] = el
			continue
		}
		cv, err := coerce(items, "", el)
		if err != nil {
			return nil, errors.Wrapf(err, "item %d", i)
		}
		out[i] = cv
	}
	return out, nil
}

func toObject(v any) (any, error) {
	if m, ok := v.(map[string]any); ok {
		return m, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String {
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = iter.Value().Interface()
		}
		return out, nil
	}
	return nil, errors.Newf("expected object, got %s", describe(v))
}

func describe(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float32, float64, json.Number:
		return "number"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	}
	return reflect.TypeOf(v).String()
}

// checkReturn serializes the handler's value and verifies it matches the
// declared return type.
func checkReturn(t registry.ParamType, v any) (json.RawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "serialize result")
	}

	var decoded any
	dec := json.NewDecoder(strings.NewReader(string(b)))
	dec.UseNumber()
	if err := dec.Decode(&decoded); err != nil {
		return nil, errors.Wrap(err, "serialize result")
	}

	ok := false
	switch t {
	case registry.TypeString:
		_, ok = decoded.(string)
	case registry.TypeBoolean:
		_, ok = decoded.(bool)
	case registry.TypeNumber:
		_, ok = decoded.(json.Number)
	case registry.TypeInteger:
		if n, isNum := decoded.(json.Number); isNum {
			_, err := n.Int64()
			ok = err == nil
		}
	case registry.TypeArray:
		_, ok = decoded.([]any)
	case registry.TypeObject:
		_, ok = decoded.(map[string]any)
	}
	if !ok {
		return nil, errors.Newf("tool returned %s, declared %s", describe(decoded), t)
	}
	return b, nil
}
