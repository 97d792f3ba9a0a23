// Package registry holds the in-process catalog of tools: their descriptors,
// handlers and compiled argument schemas.
package registry

import (
	"reflect"
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"github.com/xeipuuv/gojsonschema"
)

// ParamType is the declared JSON type of a parameter or a return value.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeInteger ParamType = "integer"
	TypeNumber  ParamType = "number"
	TypeBoolean ParamType = "boolean"
	TypeArray   ParamType = "array"
	TypeObject  ParamType = "object"
)

// Valid reports whether t is one of the supported types.
func (t ParamType) Valid() bool {
	switch t {
	case TypeString, TypeInteger, TypeNumber, TypeBoolean, TypeArray, TypeObject:
		return true
	}
	return false
}

// Parameter describes one named argument of a tool.
type Parameter struct {
	Name        string    `json:"name" yaml:"name"`
	Type        ParamType `json:"type" yaml:"type"`
	Required    bool      `json:"required" yaml:"required"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Default     any       `json:"default,omitempty" yaml:"default,omitempty"`
	Enum        []any     `json:"enum,omitempty" yaml:"enum,omitempty"`
	// Items is the element type of an array parameter.
	Items    ParamType `json:"items,omitempty" yaml:"items,omitempty"`
	Minimum  *float64  `json:"minimum,omitempty" yaml:"minimum,omitempty"`
	Maximum  *float64  `json:"maximum,omitempty" yaml:"maximum,omitempty"`
	MinItems *int      `json:"minItems,omitempty" yaml:"minItems,omitempty"`
	MaxItems *int      `json:"maxItems,omitempty" yaml:"maxItems,omitempty"`
}

// ToolDescriptor is the immutable public description of a registered tool.
type ToolDescriptor struct {
	Name        string      `json:"name" yaml:"name"`
	Description string      `json:"description" yaml:"description"`
	Parameters  []Parameter `json:"parameters" yaml:"parameters"`
	Returns     ParamType   `json:"returns" yaml:"returns"`
	// Pure tools have no side effects, so their results may be cached.
	Pure bool `json:"pure,omitempty" yaml:"pure,omitempty"`
}

// Parameter returns the parameter with the given name.
func (d ToolDescriptor) Parameter(name string) (Parameter, bool) {
	for _, p := range d.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return Parameter{}, false
}

// InputSchema renders the parameters as a JSON schema object.
func (d ToolDescriptor) InputSchema() map[string]any {
	props := make(map[string]any, len(d.Parameters))
	required := []string{}
	for _, p := range d.Parameters {
		props[p.Name] = p.schema()
		if p.Required {
			required = append(required, p.Name)
		}
	}
	schema := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// OrderedInputSchema is InputSchema with properties kept in declaration
// order, for discovery output read by people and models.
func (d ToolDescriptor) OrderedInputSchema() *orderedmap.OrderedMap[string, any] {
	props := orderedmap.New[string, any]()
	required := []string{}
	for _, p := range d.Parameters {
		props.Set(p.Name, p.schema())
		if p.Required {
			required = append(required, p.Name)
		}
	}

	schema := orderedmap.New[string, any]()
	schema.Set("type", "object")
	schema.Set("properties", props)
	if len(required) > 0 {
		schema.Set("required", required)
	}
	schema.Set("additionalProperties", false)
	return schema
}

func (p Parameter) schema() map[string]any {
	s := p.typeSchema()
	if p.Default != nil {
		s["default"] = p.Default
	}
	if len(p.Enum) > 0 {
		s["enum"] = p.Enum
	}
	return s
}

// typeSchema is the parameter schema without default and enum: the
// constraints every allowed value must meet.
func (p Parameter) typeSchema() map[string]any {
	s := map[string]any{"type": string(p.Type)}
	if p.Description != "" {
		s["description"] = p.Description
	}
	if p.Type == TypeArray && p.Items != "" {
		s["items"] = map[string]any{"type": string(p.Items)}
	}
	if p.Minimum != nil {
		s["minimum"] = *p.Minimum
	}
	if p.Maximum != nil {
		s["maximum"] = *p.Maximum
	}
	if p.MinItems != nil {
		s["minItems"] = *p.MinItems
	}
	if p.MaxItems != nil {
		s["maxItems"] = *p.MaxItems
	}
	return s
}

func (d ToolDescriptor) clone() ToolDescriptor {
	out := d
	out.Parameters = make([]Parameter, len(d.Parameters))
	for i, p := range d.Parameters {
		p.Default = cloneValue(p.Default)
		if p.Enum != nil {
			p.Enum = cloneValue(p.Enum).([]any)
		}
		p.Minimum = clonePtr(p.Minimum)
		p.Maximum = clonePtr(p.Maximum)
		p.MinItems = clonePtr(p.MinItems)
		p.MaxItems = clonePtr(p.MaxItems)
		out.Parameters[i] = p
	}
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// cloneValue deep-copies the slices, maps and pointers reachable from v.
func cloneValue(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = cloneValue(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = cloneValue(e)
		}
		return out
	}
	return cloneReflect(reflect.ValueOf(v)).Interface()
}

func cloneReflect(rv reflect.Value) reflect.Value {
	switch rv.Kind() {
	case reflect.Slice:
		if rv.IsNil() {
			return rv
		}
		out := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
		for i := range rv.Len() {
			out.Index(i).Set(cloneReflect(rv.Index(i)))
		}
		return out
	case reflect.Map:
		if rv.IsNil() {
			return rv
		}
		out := reflect.MakeMapWithSize(rv.Type(), rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), cloneReflect(iter.Value()))
		}
		return out
	case reflect.Pointer:
		if rv.IsNil() {
			return rv
		}
		out := reflect.New(rv.Type().Elem())
		out.Elem().Set(cloneReflect(rv.Elem()))
		return out
	case reflect.Interface:
		if rv.IsNil() {
			return rv
		}
		out := reflect.New(rv.Type()).Elem()
		out.Set(cloneReflect(rv.Elem()))
		return out
	}
	return rv
}

var toolNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

func (d ToolDescriptor) validate() error {
	if !toolNamePattern.MatchString(d.Name) {
		return errors.Wrapf(ErrInvalidDescriptor, "tool name %q must match %s", d.Name, toolNamePattern)
	}
	if !d.Returns.Valid() {
		return errors.Wrapf(ErrInvalidDescriptor, "tool %q: invalid return type %q", d.Name, d.Returns)
	}

	seen := make(map[string]struct{}, len(d.Parameters))
	for _, p := range d.Parameters {
		if p.Name == "" {
			return errors.Wrapf(ErrInvalidDescriptor, "tool %q: parameter name cannot be empty", d.Name)
		}
		if _, dup := seen[p.Name]; dup {
			return errors.Wrapf(ErrInvalidDescriptor, "tool %q: duplicate parameter %q", d.Name, p.Name)
		}
		seen[p.Name] = struct{}{}

		if !p.Type.Valid() {
			return errors.Wrapf(ErrInvalidDescriptor, "tool %q: invalid type %q for parameter %q", d.Name, p.Type, p.Name)
		}
		if p.Items != "" && (p.Type != TypeArray || !p.Items.Valid()) {
			return errors.Wrapf(ErrInvalidDescriptor, "tool %q: invalid items type %q for parameter %q", d.Name, p.Items, p.Name)
		}
		if err := p.validateValues(); err != nil {
			return errors.Wrapf(ErrInvalidDescriptor, "tool %q: parameter %q: %v", d.Name, p.Name, err)
		}
	}
	return nil
}

// validateValues checks that every enum value meets the parameter's type
// and bounds, and that the default is one of the allowed values.
func (p Parameter) validateValues() error {
	if p.Default == nil && len(p.Enum) == 0 {
		return nil
	}

	typed, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(p.typeSchema()))
	if err != nil {
		return errors.Wrap(err, "schema")
	}
	for _, v := range p.Enum {
		if err := validateValue(typed, v); err != nil {
			return errors.Wrapf(err, "enum value %v", v)
		}
	}
	if p.Default == nil {
		return nil
	}

	full := p.typeSchema()
	if len(p.Enum) > 0 {
		full["enum"] = p.Enum
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(full))
	if err != nil {
		return errors.Wrap(err, "schema")
	}
	if err := validateValue(schema, p.Default); err != nil {
		return errors.Wrapf(err, "default %v", p.Default)
	}
	return nil
}

func validateValue(schema *gojsonschema.Schema, v any) error {
	res, err := schema.Validate(gojsonschema.NewGoLoader(v))
	if err != nil {
		return err
	}
	if res.Valid() {
		return nil
	}
	reasons := make([]string, 0, len(res.Errors()))
	for _, re := range res.Errors() {
		reasons = append(reasons, re.Description())
	}
	return errors.New(strings.Join(reasons, "; "))
}
