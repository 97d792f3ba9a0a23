// Package roddriver drives a headless Chromium page through go-rod. The
// page viewport stands in for the screen.
package roddriver

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog/log"

	"toolshim-mcp/internal/automation"
	"toolshim-mcp/internal/registry"
)

// Config configures the browser backing the driver.
type Config struct {
	Bin       string
	Headless  bool
	NoSandbox bool
	Width     int
	Height    int
	URL       string
}

// moveStep is the interval between pointer updates of a timed move.
const moveStep = 16 * time.Millisecond

var errNotOpen = errors.New("browser not open")

// Driver implements automation.Driver on a single browser page. It is a
// server resource: Open launches the browser and Close kills it.
type Driver struct {
	cfg Config

	mu       sync.Mutex
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
}

var _ automation.Driver = (*Driver)(nil)

// New creates a Driver. Nothing is launched until Open.
func New(cfg Config) *Driver {
	if cfg.Width <= 0 {
		cfg.Width = 1280
	}
	if cfg.Height <= 0 {
		cfg.Height = 800
	}
	if cfg.URL == "" {
		cfg.URL = "about:blank"
	}
	return &Driver{cfg: cfg}
}

func (d *Driver) Name() string { return "rod-browser" }

// Open launches the browser and opens the page.
func (d *Driver) Open(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.page != nil {
		return nil
	}

	l := launcher.New().Headless(d.cfg.Headless)
	if d.cfg.NoSandbox {
		l = l.NoSandbox(true)
	}
	if d.cfg.Bin != "" {
		l = l.Bin(d.cfg.Bin)
	}
	u, err := l.Launch()
	if err != nil {
		return errors.Wrap(err, "launch browser")
	}

	browser := rod.New().ControlURL(u)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return errors.Wrap(err, "connect to browser")
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: d.cfg.URL})
	if err != nil {
		_ = browser.Close()
		l.Kill()
		return errors.Wrap(err, "open page")
	}
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             d.cfg.Width,
		Height:            d.cfg.Height,
		DeviceScaleFactor: 1,
	}); err != nil {
		_ = browser.Close()
		l.Kill()
		return errors.Wrap(err, "set viewport")
	}

	d.launcher, d.browser, d.page = l, browser, page
	log.Info().Int("width", d.cfg.Width).Int("height", d.cfg.Height).Str("url", d.cfg.URL).Msg("Browser launched")
	return nil
}

// Close closes the browser and kills its process.
func (d *Driver) Close(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.browser == nil {
		return nil
	}
	err := d.browser.Close()
	d.launcher.Kill()
	d.launcher, d.browser, d.page = nil, nil, nil
	log.Info().Msg("Browser closed")
	if err != nil {
		return errors.Wrap(err, "close browser")
	}
	return nil
}

// current returns the page, serializing actions on it. The caller must
// call the returned release func.
func (d *Driver) current(ctx context.Context) (*rod.Page, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	d.mu.Lock()
	if d.page == nil {
		d.mu.Unlock()
		return nil, nil, errNotOpen
	}
	return d.page, d.mu.Unlock, nil
}

func (d *Driver) Screenshot(ctx context.Context, region *automation.Region) ([]byte, error) {
	page, release, err := d.current(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	req := &proto.PageCaptureScreenshot{Format: proto.PageCaptureScreenshotFormatPng}
	if region != nil {
		req.Clip = &proto.PageViewport{
			X:      float64(region.X),
			Y:      float64(region.Y),
			Width:  float64(region.Width),
			Height: float64(region.Height),
			Scale:  1,
		}
	}
	png, err := page.Screenshot(false, req)
	if err != nil {
		return nil, errors.Wrap(err, "capture screenshot")
	}
	return png, nil
}

func (d *Driver) MoveMouse(ctx context.Context, x, y int, duration time.Duration) error {
	page, release, err := d.current(ctx)
	if err != nil {
		return err
	}
	defer release()
	return moveTo(ctx, page, x, y, duration)
}

// moveTo moves the pointer in straight-line steps spread over duration.
func moveTo(ctx context.Context, page *rod.Page, x, y int, duration time.Duration) error {
	to := proto.NewPoint(float64(x), float64(y))
	steps := int(duration / moveStep)
	if steps <= 1 {
		return errors.Wrap(page.Mouse.MoveTo(to), "move pointer")
	}

	from := page.Mouse.Position()
	for i := 1; i <= steps; i++ {
		f := float64(i) / float64(steps)
		pt := proto.NewPoint(from.X+(to.X-from.X)*f, from.Y+(to.Y-from.Y)*f)
		if err := page.Mouse.MoveTo(pt); err != nil {
			return errors.Wrap(err, "move pointer")
		}
		if err := sleep(ctx, moveStep); err != nil {
			return err
		}
	}
	return nil
}

func (d *Driver) Click(ctx context.Context, opts automation.ClickOptions) error {
	page, release, err := d.current(ctx)
	if err != nil {
		return err
	}
	defer release()

	if opts.X != nil && opts.Y != nil {
		if err := moveTo(ctx, page, *opts.X, *opts.Y, opts.Duration); err != nil {
			return err
		}
	}

	button := mouseButton(opts.Button)
	clicks := max(1, opts.Clicks)
	if opts.Interval <= 0 {
		return errors.Wrap(page.Mouse.Click(button, clicks), "click")
	}
	for i := 0; i < clicks; i++ {
		if i > 0 {
			if err := sleep(ctx, opts.Interval); err != nil {
				return err
			}
		}
		if err := page.Mouse.Click(button, 1); err != nil {
			return errors.Wrap(err, "click")
		}
	}
	return nil
}

func (d *Driver) PressKey(ctx context.Context, key string, modifiers []string) error {
	k, err := lookupKey(key)
	if err != nil {
		return err
	}
	mods := make([]input.Key, len(modifiers))
	for i, m := range modifiers {
		if mods[i], err = lookupKey(m); err != nil {
			return err
		}
	}

	page, release, err := d.current(ctx)
	if err != nil {
		return err
	}
	defer release()

	kb := page.Keyboard
	for i, m := range mods {
		if err := kb.Press(m); err != nil {
			releaseKeys(kb, mods[:i])
			return errors.Wrapf(err, "press %s", modifiers[i])
		}
	}
	err = kb.Type(k)
	releaseKeys(kb, mods)
	return errors.Wrapf(err, "press %s", key)
}

func releaseKeys(kb *rod.Keyboard, keys []input.Key) {
	for i := len(keys) - 1; i >= 0; i-- {
		_ = kb.Release(keys[i])
	}
}

func (d *Driver) TypeText(ctx context.Context, text string, interval time.Duration) error {
	page, release, err := d.current(ctx)
	if err != nil {
		return err
	}
	defer release()

	if interval <= 0 {
		return errors.Wrap(page.InsertText(text), "type text")
	}
	first := true
	for _, r := range text {
		if !first {
			if err := sleep(ctx, interval); err != nil {
				return err
			}
		}
		first = false

		if k, ok := charKey(r); ok {
			err = page.Keyboard.Type(k)
		} else {
			err = page.InsertText(string(r))
		}
		if err != nil {
			return errors.Wrap(err, "type text")
		}
	}
	return nil
}

func (d *Driver) MouseDown(ctx context.Context, b automation.Button) error {
	page, release, err := d.current(ctx)
	if err != nil {
		return err
	}
	defer release()
	return errors.Wrap(page.Mouse.Down(mouseButton(b), 1), "mouse down")
}

func (d *Driver) MouseUp(ctx context.Context, b automation.Button) error {
	page, release, err := d.current(ctx)
	if err != nil {
		return err
	}
	defer release()
	return errors.Wrap(page.Mouse.Up(mouseButton(b), 1), "mouse up")
}

func mouseButton(b automation.Button) proto.InputMouseButton {
	switch b {
	case automation.ButtonRight:
		return proto.InputMouseButtonRight
	case automation.ButtonMiddle:
		return proto.InputMouseButtonMiddle
	}
	return proto.InputMouseButtonLeft
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// unsupportedKey is returned for key names the page keyboard cannot press.
func unsupportedKey(name string) error {
	return registry.Errorf("Unsupported key %q.", name)
}
