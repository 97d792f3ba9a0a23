package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_SetGet(t *testing.T) {
	c := New[string]()
	k := Key([]byte("reverse_tool"), []byte(`{"text":"hello"}`))
	c.Set(k, "olleh", time.Minute)

	v, ok := c.Get(k)
	require.True(t, ok)
	assert.Equal(t, "olleh", v)

	_, ok = c.Get(Key([]byte("other")))
	assert.False(t, ok)
}

func TestCache_Expiry(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := New[int]()
	c.now = func() time.Time { return now }

	c.Set(1, 10, time.Second)
	c.Set(2, 20, time.Hour)

	now = now.Add(2 * time.Second)
	_, ok := c.Get(1)
	assert.False(t, ok)
	assert.Equal(t, 1, c.Len(), "expired entry is dropped on read")

	c.Set(3, 30, time.Second)
	now = now.Add(2 * time.Second)
	assert.Equal(t, 1, c.Purge())

	v, ok := c.Get(2)
	require.True(t, ok)
	assert.Equal(t, 20, v)
}

func TestKey_Separated(t *testing.T) {
	assert.NotEqual(t, Key([]byte("ab"), []byte("c")), Key([]byte("a"), []byte("bc")))
	assert.Equal(t, Key([]byte("a")), Key([]byte("a")))
}

type countingPurger struct{ calls int }

func (p *countingPurger) Purge() int {
	p.calls++
	return 1
}

func TestSweeper_Lifecycle(t *testing.T) {
	p := &countingPurger{}
	s := NewSweeper("", p)
	assert.Equal(t, DefaultSweepSchedule, s.schedule)

	require.NoError(t, s.Open(context.Background()))
	require.NoError(t, s.Open(context.Background()))

	s.Sweep()
	assert.Equal(t, 1, p.calls)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Close(ctx))
	require.NoError(t, s.Close(ctx))
}

func TestSweeper_BadSchedule(t *testing.T) {
	s := NewSweeper("every now and then")
	err := s.Open(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "every now and then")
}
