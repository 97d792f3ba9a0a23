// Package automation registers desktop-automation tools (screenshots,
// mouse and keyboard) backed by a pluggable Driver.
package automation

import (
	"context"
	"strings"
	"time"

	"toolshim-mcp/internal/registry"
)

// Button is a mouse button.
type Button string

const (
	ButtonLeft   Button = "left"
	ButtonRight  Button = "right"
	ButtonMiddle Button = "middle"
)

// NormalizeButton maps a case-insensitive button name to a Button.
func NormalizeButton(name string) (Button, error) {
	switch b := Button(strings.ToLower(name)); b {
	case ButtonLeft, ButtonRight, ButtonMiddle:
		return b, nil
	}
	return "", registry.Errorf("Button must be 'left', 'right', or 'middle'.")
}

// Region is a screen rectangle in pixels.
type Region struct {
	X, Y, Width, Height int
}

// ClickOptions describes one click action. A nil X or Y clicks at the
// current pointer position.
type ClickOptions struct {
	X, Y     *int
	Button   Button
	Clicks   int
	Interval time.Duration
	Duration time.Duration
}

// Driver performs input and capture on a screen.
type Driver interface {
	// Screenshot returns a PNG of the whole screen or of region.
	Screenshot(ctx context.Context, region *Region) ([]byte, error)
	MoveMouse(ctx context.Context, x, y int, duration time.Duration) error
	Click(ctx context.Context, opts ClickOptions) error
	// PressKey presses key while holding modifiers.
	PressKey(ctx context.Context, key string, modifiers []string) error
	TypeText(ctx context.Context, text string, interval time.Duration) error
	MouseDown(ctx context.Context, button Button) error
	MouseUp(ctx context.Context, button Button) error
}

// Unavailable returns a Driver whose every action fails with a ToolError
// naming reason.
func Unavailable(reason string) Driver {
	return unavailable{reason: reason}
}

type unavailable struct {
	reason string
}

func (u unavailable) err() error {
	return registry.Errorf("Automation backend unavailable: %s.", u.reason)
}

func (u unavailable) Screenshot(context.Context, *Region) ([]byte, error) { return nil, u.err() }
func (u unavailable) MoveMouse(context.Context, int, int, time.Duration) error { return u.err() }
func (u unavailable) Click(context.Context, ClickOptions) error { return u.err() }
func (u unavailable) PressKey(context.Context, string, []string) error { return u.err() }
func (u unavailable) TypeText(context.Context, string, time.Duration) error { return u.err() }
func (u unavailable) MouseDown(context.Context, Button) error { return u.err() }
func (u unavailable) MouseUp(context.Context, Button) error { return u.err() }
