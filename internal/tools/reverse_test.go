package tools

import (
	"context"
	"slices"
	"testing"
	"unicode/utf8"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toolshim-mcp/internal/dispatch"
	"toolshim-mcp/internal/registry"
)

func randomInputs(t *testing.T) []string {
	t.Helper()
	faker := gofakeit.New(42)
	inputs := []string{"", "a", "hello", "héllo wörld", "日本語テキスト", "🙂👍"}
	for i := 0; i < 200; i++ {
		inputs = append(inputs, faker.LetterN(uint(faker.IntRange(0, 64))), faker.Name()+" "+faker.Emoji())
	}
	return inputs
}

func TestReverse_Involution(t *testing.T) {
	for _, s := range randomInputs(t) {
		assert.Equal(t, s, Reverse(Reverse(s)))
	}
}

func TestReverse_PreservesLengthAndCharacters(t *testing.T) {
	for _, s := range randomInputs(t) {
		r := Reverse(s)
		assert.Equal(t, utf8.RuneCountInString(s), utf8.RuneCountInString(r))

		a, b := []rune(s), []rune(r)
		slices.Sort(a)
		slices.Sort(b)
		assert.Equal(t, a, b)
	}
}

func TestReverse_InvalidUTF8(t *testing.T) {
	faker := gofakeit.New(7)
	inputs := []string{"a\xffb", "\xff", "\xac\x82\xe2", "x\xe2\x82y", "日\xff\xfe本"}
	for i := 0; i < 200; i++ {
		b := make([]byte, faker.IntRange(0, 16))
		for j := range b {
			b[j] = byte(faker.IntRange(0, 255))
		}
		inputs = append(inputs, string(b))
	}

	for _, s := range inputs {
		r := Reverse(s)
		assert.Equal(t, s, Reverse(r), "%q", s)
		assert.Equal(t, len(s), len(r), "%q", s)
		assert.Equal(t, utf8.RuneCountInString(s), utf8.RuneCountInString(r), "%q", s)
	}

	assert.Equal(t, "b\xffa", Reverse("a\xffb"))
	assert.Equal(t, "\xac\x82\xe2", Reverse("\xac\x82\xe2"))
}

func TestReverse_Examples(t *testing.T) {
	assert.Equal(t, "olleh", Reverse("hello"))
	assert.Equal(t, "", Reverse(""))
	assert.Equal(t, "cba日", Reverse("日abc"))
}

func TestRegisterBuiltins(t *testing.T) {
	reg := registry.New()
	require.NoError(t, RegisterBuiltins(reg))

	err := RegisterBuiltins(reg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, registry.ErrDuplicateName))

	tool, err := reg.Lookup("reverse_tool")
	require.NoError(t, err)
	assert.True(t, tool.Descriptor.Pure)

	res := dispatch.New(reg).Dispatch(context.Background(), dispatch.InvocationRequest{
		Tool:      "reverse_tool",
		Arguments: map[string]any{"text": "hello"},
	})
	require.True(t, res.OK(), "%v", res.Err())
	assert.Equal(t, "olleh", res.Text())
}
