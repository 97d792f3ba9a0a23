package registry

import (
	"github.com/cockroachdb/errors"
	"github.com/mitchellh/mapstructure"
)

// Arguments are the validated, coerced arguments passed to a Handler.
// Integers arrive as int64, numbers as float64, arrays as []any and
// objects as map[string]any.
type Arguments map[string]any

// Has reports whether the argument is present.
func (a Arguments) Has(name string) bool {
	_, ok := a[name]
	return ok
}

// String returns a string argument or "".
func (a Arguments) String(name string) string {
	s, _ := a[name].(string)
	return s
}

// Int returns an integer argument or 0.
func (a Arguments) Int(name string) int64 {
	i, _ := a[name].(int64)
	return i
}

// Float returns a number argument or 0.
func (a Arguments) Float(name string) float64 {
	switch v := a[name].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	}
	return 0
}

// Bool returns a boolean argument or false.
func (a Arguments) Bool(name string) bool {
	b, _ := a[name].(bool)
	return b
}

// Decode copies the arguments into a struct using its json tags.
func (a Arguments) Decode(out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "json",
		Result:  out,
	})
	if err != nil {
		return errors.Wrap(err, "arguments decoder")
	}
	if err := dec.Decode(map[string]any(a)); err != nil {
		return errors.Wrap(err, "decode arguments")
	}
	return nil
}
