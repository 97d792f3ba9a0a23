package roddriver

import (
	"strings"

	"github.com/go-rod/rod/lib/input"
)

var namedKeys = map[string]input.Key{
	"enter":     input.Enter,
	"return":    input.Enter,
	"tab":       input.Tab,
	"space":     input.Key(' '),
	"escape":    input.Escape,
	"esc":       input.Escape,
	"backspace": input.Backspace,
	"delete":    input.Delete,
	"del":       input.Delete,
	"up":        input.ArrowUp,
	"down":      input.ArrowDown,
	"left":      input.ArrowLeft,
	"right":     input.ArrowRight,
	"home":      input.Home,
	"end":       input.End,
	"pageup":    input.PageUp,
	"pagedown":  input.PageDown,
	"shift":     input.ShiftLeft,
	"ctrl":      input.ControlLeft,
	"control":   input.ControlLeft,
	"alt":       input.AltLeft,
	"option":    input.AltLeft,
	"cmd":       input.MetaLeft,
	"command":   input.MetaLeft,
	"meta":      input.MetaLeft,
	"win":       input.MetaLeft,
}

// lookupKey resolves a key name, case-insensitively for named keys, or a
// single printable ASCII character.
func lookupKey(name string) (input.Key, error) {
	if k, ok := namedKeys[strings.ToLower(name)]; ok {
		return k, nil
	}
	if r := []rune(name); len(r) == 1 {
		if k, ok := charKey(r[0]); ok {
			return k, nil
		}
	}
	return 0, unsupportedKey(name)
}

// charKey maps a printable ASCII character, tab or newline to its key.
func charKey(r rune) (input.Key, bool) {
	switch {
	case r == '\n':
		return input.Enter, true
	case r == '\t':
		return input.Tab, true
	case r >= ' ' && r <= '~':
		return input.Key(r), true
	}
	return 0, false
}
