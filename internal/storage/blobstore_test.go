package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diogolhc/feup-m.eic-sdle-proj2/internal/identity"
)

func TestWriteReadDelete(t *testing.T) {
	dir := t.TempDir()
	owner, err := identity.Parse("127.0.0.1:8000")
	require.NoError(t, err)

	s, err := Open(dir, owner)
	require.NoError(t, err)

	assert.False(t, s.Exists("foo.json"))

	type payload struct {
		A int `json:"a"`
	}
	require.NoError(t, s.Write(payload{A: 7}, "foo.json"))
	assert.True(t, s.Exists("foo.json"))

	var got payload
	require.NoError(t, s.Read(&got, "foo.json"))
	assert.Equal(t, 7, got.A)

	require.NoError(t, s.Delete("foo.json"))
	assert.False(t, s.Exists("foo.json"))

	// deleting a missing blob is a no-op
	require.NoError(t, s.Delete("foo.json"))
}

func TestWriteNestedPath(t *testing.T) {
	dir := t.TempDir()
	owner, err := identity.Parse("127.0.0.1:8001")
	require.NoError(t, err)
	s, err := Open(dir, owner)
	require.NoError(t, err)

	require.NoError(t, s.Write(map[string]int{"x": 1}, "timelines", "127.0.0.1-8002.json"))
	assert.True(t, s.Exists("timelines", "127.0.0.1-8002.json"))
}
