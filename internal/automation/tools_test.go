package automation

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"toolshim-mcp/internal/dispatch"
	"toolshim-mcp/internal/registry"
)

type mockDriver struct {
	mock.Mock
}

func (m *mockDriver) Screenshot(ctx context.Context, region *Region) ([]byte, error) {
	args := m.Called(ctx, region)
	b, _ := args.Get(0).([]byte)
	return b, args.Error(1)
}

func (m *mockDriver) MoveMouse(ctx context.Context, x, y int, duration time.Duration) error {
	return m.Called(ctx, x, y, duration).Error(0)
}

func (m *mockDriver) Click(ctx context.Context, opts ClickOptions) error {
	return m.Called(ctx, opts).Error(0)
}

func (m *mockDriver) PressKey(ctx context.Context, key string, modifiers []string) error {
	return m.Called(ctx, key, modifiers).Error(0)
}

func (m *mockDriver) TypeText(ctx context.Context, text string, interval time.Duration) error {
	return m.Called(ctx, text, interval).Error(0)
}

func (m *mockDriver) MouseDown(ctx context.Context, b Button) error {
	return m.Called(ctx, b).Error(0)
}

func (m *mockDriver) MouseUp(ctx context.Context, b Button) error {
	return m.Called(ctx, b).Error(0)
}

func setup(t *testing.T) (*mockDriver, func(name string, args map[string]any) dispatch.InvocationResult) {
	t.Helper()
	d := &mockDriver{}
	reg := registry.New()
	require.NoError(t, Register(reg, d, WithPause(0)))
	disp := dispatch.New(reg)
	t.Cleanup(func() { d.AssertExpectations(t) })
	return d, func(name string, args map[string]any) dispatch.InvocationResult {
		return disp.Dispatch(context.Background(), dispatch.InvocationRequest{Tool: name, Arguments: args})
	}
}

var anyCtx = mock.Anything

func TestNormalizeButton(t *testing.T) {
	for in, want := range map[string]Button{"left": ButtonLeft, "RIGHT": ButtonRight, "Middle": ButtonMiddle} {
		b, err := NormalizeButton(in)
		require.NoError(t, err)
		assert.Equal(t, want, b)
	}
	for _, bad := range []string{"", "primary", "LEFTCLICK", "l3ft", "None"} {
		_, err := NormalizeButton(bad)
		te, ok := registry.AsToolError(err)
		require.True(t, ok, bad)
		assert.Equal(t, "Button must be 'left', 'right', or 'middle'.", te.Message)
	}
}

func TestRegister_Order(t *testing.T) {
	reg := registry.New()
	require.NoError(t, Register(reg, Unavailable("test")))

	var names []string
	for d := range reg.List() {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"get_screenshot", "move_mouse", "click", "press_key", "type_text", "drag_and_drop"}, names)
}

func TestGetScreenshot(t *testing.T) {
	d, call := setup(t)
	png := []byte("\x89PNG\r\nTESTDATA")
	d.On("Screenshot", anyCtx, (*Region)(nil)).Return(png, nil).Once()
	d.On("Screenshot", anyCtx, &Region{X: 10, Y: 20, Width: 300, Height: 400}).Return([]byte("X"), nil).Once()

	res := call("get_screenshot", nil)
	require.True(t, res.OK(), "%v", res.Err())
	url := res.Text()
	require.True(t, strings.HasPrefix(url, "data:image/png;base64,"))
	decoded, err := base64.StdEncoding.DecodeString(strings.SplitN(url, ",", 2)[1])
	require.NoError(t, err)
	assert.Equal(t, png, decoded)

	res = call("get_screenshot", map[string]any{"region": []any{"10", "20", "300", "400"}})
	require.True(t, res.OK(), "%v", res.Err())
	assert.Equal(t, "data:image/png;base64,WA==", res.Text())
}

func TestGetScreenshot_BadRegion(t *testing.T) {
	_, call := setup(t)
	for _, region := range [][]any{{}, {1, 2, 3}, {1, 2, 3, 4, 5}} {
		res := call("get_screenshot", map[string]any{"region": region})
		assert.Equal(t, dispatch.InvalidArguments, res.Kind())
		assert.Equal(t, []string{"region"}, res.Failure.Parameters)
	}

	res := call("get_screenshot", map[string]any{"region": []any{0, 0, 0, 10}})
	assert.Equal(t, dispatch.ExecutionError, res.Kind())
	assert.Equal(t, "Region width and height must be positive.", res.Failure.Message)
}

func TestMoveMouse_ClampsNegativeDuration(t *testing.T) {
	d, call := setup(t)
	d.On("MoveMouse", anyCtx, 100, 200, time.Duration(0)).Return(nil).Once()
	d.On("MoveMouse", anyCtx, 5, 6, 250*time.Millisecond).Return(nil).Once()

	res := call("move_mouse", map[string]any{"x": 100, "y": 200, "duration": -5.0})
	assert.Equal(t, "Mouse moved to (100, 200).", res.Text())

	res = call("move_mouse", map[string]any{"x": 5, "y": 6, "duration": 0.25})
	assert.Equal(t, "Mouse moved to (5, 6).", res.Text())
}

func TestClick_DefaultsAndClamping(t *testing.T) {
	d, call := setup(t)
	d.On("Click", anyCtx, ClickOptions{Button: ButtonLeft, Clicks: 1}).Return(nil).Once()

	res := call("click", map[string]any{"clicks": 0, "interval": -1.5, "duration": -2.0})
	assert.Equal(t, "Clicked left button 0 time(s) at current position.", res.Text())
}

func TestClick_CoordinatesAndButton(t *testing.T) {
	d, call := setup(t)
	d.On("Click", anyCtx, mock.MatchedBy(func(o ClickOptions) bool {
		return o.X != nil && *o.X == 10 && o.Y != nil && *o.Y == 20 &&
			o.Button == ButtonRight && o.Clicks == 2 &&
			o.Interval == 100*time.Millisecond && o.Duration == 200*time.Millisecond
	})).Return(nil).Once()

	res := call("click", map[string]any{"x": 10, "y": 20, "button": "RIGHT", "clicks": 2, "interval": 0.1, "duration": 0.2})
	assert.Equal(t, "Clicked RIGHT button 2 time(s) at (10, 20).", res.Text())
}

func TestClick_Errors(t *testing.T) {
	_, call := setup(t)

	res := call("click", map[string]any{"button": "invalid"})
	assert.Equal(t, dispatch.ExecutionError, res.Kind())
	assert.Equal(t, "Button must be 'left', 'right', or 'middle'.", res.Failure.Message)

	res = call("click", map[string]any{"x": 1})
	assert.Equal(t, dispatch.ExecutionError, res.Kind())
}

func TestPressKey(t *testing.T) {
	d, call := setup(t)
	d.On("PressKey", anyCtx, "enter", []string{}).Return(nil).Once()
	d.On("PressKey", anyCtx, "c", []string{"command", "shift"}).Return(nil).Once()

	assert.Equal(t, "Pressed enter.", call("press_key", map[string]any{"key": "enter"}).Text())
	assert.Equal(t, "Pressed command + shift + c.",
		call("press_key", map[string]any{"key": "c", "modifiers": []any{"Command", "SHIFT"}}).Text())
}

func TestTypeText(t *testing.T) {
	d, call := setup(t)
	d.On("TypeText", anyCtx, "hello", time.Duration(0)).Return(nil).Twice()
	d.On("PressKey", anyCtx, "enter", []string(nil)).Return(nil).Once()

	assert.Equal(t, "Typed text successfully.", call("type_text", map[string]any{"text": "hello", "interval": -1}).Text())
	assert.Equal(t, "Typed text and pressed Enter successfully.",
		call("type_text", map[string]any{"text": "hello", "press_enter": true}).Text())
}

func TestDragAndDrop(t *testing.T) {
	d, call := setup(t)
	d.On("MoveMouse", anyCtx, 1, 2, time.Duration(0)).Return(nil).Once()
	d.On("MouseDown", anyCtx, ButtonMiddle).Return(nil).Once()
	d.On("MoveMouse", anyCtx, 30, 40, 500*time.Millisecond).Return(nil).Once()
	d.On("MouseUp", anyCtx, ButtonMiddle).Return(nil).Once()

	res := call("drag_and_drop", map[string]any{"start_x": 1, "start_y": 2, "end_x": 30, "end_y": 40, "button": "Middle"})
	assert.Equal(t, "Dragged from (1, 2) to (30, 40) using the middle button.", res.Text())
}

func TestDragAndDrop_ReleasesButtonOnFailure(t *testing.T) {
	d, call := setup(t)
	d.On("MoveMouse", anyCtx, 1, 2, time.Duration(0)).Return(nil).Once()
	d.On("MouseDown", anyCtx, ButtonLeft).Return(nil).Once()
	d.On("MoveMouse", anyCtx, 3, 4, 500*time.Millisecond).Return(errors.New("target closed")).Once()
	d.On("MouseUp", anyCtx, ButtonLeft).Return(nil).Once()

	res := call("drag_and_drop", map[string]any{"start_x": 1, "start_y": 2, "end_x": 3, "end_y": 4})
	assert.Equal(t, dispatch.ExecutionError, res.Kind())
	assert.NotContains(t, res.Failure.Message, "target closed")
}

func TestUnavailable(t *testing.T) {
	reg := registry.New()
	require.NoError(t, Register(reg, Unavailable("no backend configured"), WithPause(0)))

	res := dispatch.New(reg).Dispatch(context.Background(), dispatch.InvocationRequest{
		Tool:      "move_mouse",
		Arguments: map[string]any{"x": 1, "y": 1},
	})
	assert.Equal(t, dispatch.ExecutionError, res.Kind())
	assert.Equal(t, "Automation backend unavailable: no backend configured.", res.Failure.Message)
}

func TestPauseHonorsContext(t *testing.T) {
	d := &mockDriver{}
	d.On("MoveMouse", anyCtx, 1, 1, time.Duration(0)).Return(nil)
	reg := registry.New()
	require.NoError(t, Register(reg, d, WithPause(time.Hour)))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	res := dispatch.New(reg).Dispatch(ctx, dispatch.InvocationRequest{
		Tool:      "move_mouse",
		Arguments: map[string]any{"x": 1, "y": 1},
	})
	assert.Equal(t, dispatch.ExecutionError, res.Kind())
}
