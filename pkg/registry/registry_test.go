package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndGet(t *testing.T) {
	r := New[int]()
	require.NoError(t, r.Register("a", 1))
	require.NoError(t, r.Register("b", 2))

	v, ok := r.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestRegisterDuplicate(t *testing.T) {
	r := New[string]()
	require.NoError(t, r.Register("x", "one"))
	assert.Error(t, r.Register("x", "two"))
	assert.Error(t, r.Register("", "empty"))
}

func TestReplace(t *testing.T) {
	r := New[string]()
	require.NoError(t, r.Register("x", "one"))
	r.Replace("x", "two")
	r.Replace("y", "fresh")

	v, _ := r.Get("x")
	assert.Equal(t, "two", v)
	assert.Equal(t, []string{"x", "y"}, r.Names())
}

func TestRemoveAndLen(t *testing.T) {
	r := New[int]()
	require.NoError(t, r.Register("a", 1))
	assert.Equal(t, 1, r.Len())

	require.NoError(t, r.Remove("a"))
	assert.Equal(t, 0, r.Len())
	assert.Error(t, r.Remove("a"))
}

func TestRegistrationOrder(t *testing.T) {
	r := New[int]()
	require.NoError(t, r.Register("c", 3))
	require.NoError(t, r.Register("a", 1))
	require.NoError(t, r.Register("b", 2))

	assert.Equal(t, []string{"c", "a", "b"}, r.Names())
	assert.Equal(t, []int{3, 1, 2}, r.List())

	require.NoError(t, r.Remove("a"))
	assert.Equal(t, []string{"c", "b"}, r.Names())

	r.Clear()
	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.Names())
}
