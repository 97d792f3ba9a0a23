package automation

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog/log"

	"toolshim-mcp/internal/registry"
)

// DefaultPause is the settle time after every action.
const DefaultPause = 50 * time.Millisecond

// Option configures the toolset.
type Option func(*toolset)

// WithPause sets the settle time after every action. Zero disables it.
func WithPause(d time.Duration) Option {
	return func(t *toolset) { t.pause = d }
}

type toolset struct {
	driver Driver
	pause  time.Duration
}

var four = 4

// Descriptors lists the automation tools in registration order.
var Descriptors = []registry.ToolDescriptor{
	{
		Name:        "get_screenshot",
		Description: "Return a PNG screenshot encoded as a data URL. An optional region is [x, y, width, height].",
		Parameters: []registry.Parameter{
			{Name: "region", Type: registry.TypeArray, Items: registry.TypeInteger, MinItems: &four, MaxItems: &four,
				Description: "Capture only this rectangle: x, y, width, height."},
		},
		Returns: registry.TypeString,
	},
	{
		Name:        "move_mouse",
		Description: "Move the mouse cursor to (x, y) over duration seconds.",
		Parameters: []registry.Parameter{
			{Name: "x", Type: registry.TypeInteger, Required: true},
			{Name: "y", Type: registry.TypeInteger, Required: true},
			{Name: "duration", Type: registry.TypeNumber, Default: 0.0},
		},
		Returns: registry.TypeString,
	},
	{
		Name:        "click",
		Description: "Click a mouse button, at (x, y) when both are given, otherwise at the current position.",
		Parameters: []registry.Parameter{
			{Name: "x", Type: registry.TypeInteger},
			{Name: "y", Type: registry.TypeInteger},
			{Name: "button", Type: registry.TypeString, Default: "left", Description: "left, right or middle"},
			{Name: "clicks", Type: registry.TypeInteger, Default: 1},
			{Name: "interval", Type: registry.TypeNumber, Default: 0.0, Description: "Seconds between clicks."},
			{Name: "duration", Type: registry.TypeNumber, Default: 0.0, Description: "Seconds to move to (x, y)."},
		},
		Returns: registry.TypeString,
	},
	{
		Name:        "press_key",
		Description: "Press a keyboard key, optionally with modifier keys held.",
		Parameters: []registry.Parameter{
			{Name: "key", Type: registry.TypeString, Required: true},
			{Name: "modifiers", Type: registry.TypeArray, Items: registry.TypeString},
		},
		Returns: registry.TypeString,
	},
	{
		Name:        "type_text",
		Description: "Type text with an optional delay between characters.",
		Parameters: []registry.Parameter{
			{Name: "text", Type: registry.TypeString, Required: true},
			{Name: "interval", Type: registry.TypeNumber, Default: 0.0},
			{Name: "press_enter", Type: registry.TypeBoolean, Default: false},
		},
		Returns: registry.TypeString,
	},
	{
		Name:        "drag_and_drop",
		Description: "Drag from the start coordinates to the end coordinates with the given mouse button.",
		Parameters: []registry.Parameter{
			{Name: "start_x", Type: registry.TypeInteger, Required: true},
			{Name: "start_y", Type: registry.TypeInteger, Required: true},
			{Name: "end_x", Type: registry.TypeInteger, Required: true},
			{Name: "end_y", Type: registry.TypeInteger, Required: true},
			{Name: "duration", Type: registry.TypeNumber, Default: 0.5},
			{Name: "button", Type: registry.TypeString, Default: "left"},
		},
		Returns: registry.TypeString,
	},
}

// Register adds the automation tools to reg, driven by d.
func Register(reg *registry.Registry, d Driver, opts ...Option) error {
	t := &toolset{driver: d, pause: DefaultPause}
	for _, opt := range opts {
		opt(t)
	}

	handlers := map[string]registry.Handler{
		"get_screenshot": t.screenshot,
		"move_mouse":     t.moveMouse,
		"click":          t.click,
		"press_key":      t.pressKey,
		"type_text":      t.typeText,
		"drag_and_drop":  t.dragAndDrop,
	}
	for _, desc := range Descriptors {
		if err := reg.Register(desc, handlers[desc.Name]); err != nil {
			return errors.Wrapf(err, "register %s", desc.Name)
		}
	}
	return nil
}

// act runs one driver action and then waits for the pause.
func (t *toolset) act(ctx context.Context, action string, fn func() error) error {
	if err := fn(); err != nil {
		return errors.Wrap(err, action)
	}
	log.Debug().Str("action", action).Msg("Automation action")
	if t.pause <= 0 {
		return nil
	}
	timer := time.NewTimer(t.pause)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), action)
	}
}

func seconds(s float64) time.Duration {
	if s <= 0 {
		return 0
	}
	return time.Duration(s * float64(time.Second))
}

type screenshotArgs struct {
	Region []int `json:"region"`
}

func (t *toolset) screenshot(ctx context.Context, args registry.Arguments) (any, error) {
	var a screenshotArgs
	if err := args.Decode(&a); err != nil {
		return nil, err
	}

	var region *Region
	if a.Region != nil {
		if len(a.Region) != 4 {
			return nil, registry.Errorf("Region must contain exactly four integers: x, y, width, height.")
		}
		region = &Region{X: a.Region[0], Y: a.Region[1], Width: a.Region[2], Height: a.Region[3]}
		if region.Width <= 0 || region.Height <= 0 {
			return nil, registry.Errorf("Region width and height must be positive.")
		}
	}

	var png []byte
	err := t.act(ctx, "screenshot", func() (err error) {
		png, err = t.driver.Screenshot(ctx, region)
		return err
	})
	if err != nil {
		return nil, err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

type moveArgs struct {
	X        int     `json:"x"`
	Y        int     `json:"y"`
	Duration float64 `json:"duration"`
}

func (t *toolset) moveMouse(ctx context.Context, args registry.Arguments) (any, error) {
	var a moveArgs
	if err := args.Decode(&a); err != nil {
		return nil, err
	}
	err := t.act(ctx, "move mouse", func() error {
		return t.driver.MoveMouse(ctx, a.X, a.Y, seconds(a.Duration))
	})
	if err != nil {
		return nil, err
	}
	return fmt.Sprintf("Mouse moved to (%d, %d).", a.X, a.Y), nil
}

type clickArgs struct {
	X        *int    `json:"x"`
	Y        *int    `json:"y"`
	Button   string  `json:"button"`
	Clicks   int     `json:"clicks"`
	Interval float64 `json:"interval"`
	Duration float64 `json:"duration"`
}

func (t *toolset) click(ctx context.Context, args registry.Arguments) (any, error) {
	var a clickArgs
	if err := args.Decode(&a); err != nil {
		return nil, err
	}
	button, err := NormalizeButton(a.Button)
	if err != nil {
		return nil, err
	}
	if (a.X == nil) != (a.Y == nil) {
		return nil, registry.Errorf("Provide both x and y, or neither.")
	}

	opts := ClickOptions{
		X:        a.X,
		Y:        a.Y,
		Button:   button,
		Clicks:   max(1, a.Clicks),
		Interval: seconds(a.Interval),
		Duration: seconds(a.Duration),
	}
	if err := t.act(ctx, "click", func() error { return t.driver.Click(ctx, opts) }); err != nil {
		return nil, err
	}

	location := "current position"
	if a.X != nil {
		location = fmt.Sprintf("(%d, %d)", *a.X, *a.Y)
	}
	return fmt.Sprintf("Clicked %s button %d time(s) at %s.", a.Button, a.Clicks, location), nil
}

type pressKeyArgs struct {
	Key       string   `json:"key"`
	Modifiers []string `json:"modifiers"`
}

func (t *toolset) pressKey(ctx context.Context, args registry.Arguments) (any, error) {
	var a pressKeyArgs
	if err := args.Decode(&a); err != nil {
		return nil, err
	}
	if a.Key == "" {
		return nil, registry.Errorf("Key cannot be empty.")
	}

	modifiers := make([]string, len(a.Modifiers))
	for i, m := range a.Modifiers {
		modifiers[i] = strings.ToLower(m)
	}
	err := t.act(ctx, "press key", func() error { return t.driver.PressKey(ctx, a.Key, modifiers) })
	if err != nil {
		return nil, err
	}

	sequence := append(modifiers, a.Key)
	return fmt.Sprintf("Pressed %s.", strings.Join(sequence, " + ")), nil
}

type typeTextArgs struct {
	Text       string  `json:"text"`
	Interval   float64 `json:"interval"`
	PressEnter bool    `json:"press_enter"`
}

func (t *toolset) typeText(ctx context.Context, args registry.Arguments) (any, error) {
	var a typeTextArgs
	if err := args.Decode(&a); err != nil {
		return nil, err
	}
	err := t.act(ctx, "type text", func() error { return t.driver.TypeText(ctx, a.Text, seconds(a.Interval)) })
	if err != nil {
		return nil, err
	}
	if !a.PressEnter {
		return "Typed text successfully.", nil
	}
	if err := t.act(ctx, "press enter", func() error { return t.driver.PressKey(ctx, "enter", nil) }); err != nil {
		return nil, err
	}
	return "Typed text and pressed Enter successfully.", nil
}

type dragArgs struct {
	StartX   int     `json:"start_x"`
	StartY   int     `json:"start_y"`
	EndX     int     `json:"end_x"`
	EndY     int     `json:"end_y"`
	Duration float64 `json:"duration"`
	Button   string  `json:"button"`
}

func (t *toolset) dragAndDrop(ctx context.Context, args registry.Arguments) (any, error) {
	var a dragArgs
	if err := args.Decode(&a); err != nil {
		return nil, err
	}
	button, err := NormalizeButton(a.Button)
	if err != nil {
		return nil, err
	}

	if err := t.act(ctx, "move to drag start", func() error {
		return t.driver.MoveMouse(ctx, a.StartX, a.StartY, 0)
	}); err != nil {
		return nil, err
	}
	if err := t.act(ctx, "mouse down", func() error { return t.driver.MouseDown(ctx, button) }); err != nil {
		return nil, err
	}
	if err := t.act(ctx, "move to drag end", func() error {
		return t.driver.MoveMouse(ctx, a.EndX, a.EndY, seconds(a.Duration))
	}); err != nil {
		// Never leave the button held down.
		_ = t.driver.MouseUp(context.WithoutCancel(ctx), button)
		return nil, err
	}
	if err := t.act(ctx, "mouse up", func() error { return t.driver.MouseUp(ctx, button) }); err != nil {
		return nil, err
	}

	return fmt.Sprintf("Dragged from (%d, %d) to (%d, %d) using the %s button.",
		a.StartX, a.StartY, a.EndX, a.EndY, button), nil
}
