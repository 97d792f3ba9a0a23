// Package tools holds the built-in reference tools.
package tools

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/cockroachdb/errors"

	"toolshim-mcp/internal/registry"
)

// ReverseDescriptor describes reverse_tool.
var ReverseDescriptor = registry.ToolDescriptor{
	Name:        "reverse_tool",
	Description: "Reverse the characters of a string.",
	Parameters: []registry.Parameter{
		{Name: "text", Type: registry.TypeString, Required: true, Description: "Text to reverse."},
	},
	Returns: registry.TypeString,
	Pure:    true,
}

// Reverse returns s with its code points in reverse order. A run of bytes
// that is not valid UTF-8 is moved as one unit with its bytes kept in
// order, so Reverse(Reverse(s)) == s and len(Reverse(s)) == len(s) hold
// for any string.
func Reverse(s string) string {
	var segments []string
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r != utf8.RuneError || size > 1 {
			segments = append(segments, s[i:i+size])
			i += size
			continue
		}
		j := i + 1
		for j < len(s) {
			if r, size := utf8.DecodeRuneInString(s[j:]); r != utf8.RuneError || size > 1 {
				break
			}
			j++
		}
		segments = append(segments, s[i:j])
		i = j
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := len(segments) - 1; i >= 0; i-- {
		b.WriteString(segments[i])
	}
	return b.String()
}

func reverseHandler(_ context.Context, args registry.Arguments) (any, error) {
	return Reverse(args.String("text")), nil
}

// RegisterBuiltins adds the reference tools to reg.
func RegisterBuiltins(reg *registry.Registry) error {
	if err := reg.Register(ReverseDescriptor, reverseHandler); err != nil {
		return errors.Wrap(err, "register reverse_tool")
	}
	return nil
}
