package clr

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestResolverFindsAssemblyAddedAfterMiss(t *testing.T) {
	near := t.TempDir()
	search := t.TempDir()
	r := newResolver([]string{search}, 8, zaptest.NewLogger(t))

	_, ok := r.probe("Lib", near)
	assert.False(t, ok)

	lib := filepath.Join(search, "Lib.dll")
	require.NoError(t, os.WriteFile(lib, []byte("MZ"), 0o644))
	path, ok := r.probe("Lib", near)
	require.True(t, ok)
	assert.Equal(t, lib, path)


	local := filepath.Join(near, "Lib.exe")
	require.NoError(t, os.WriteFile(local, []byte("MZ"), 0o644))
	path, ok = r.probe("Lib", near)
	require.True(t, ok)
	assert.Equal(t, lib, path, "hits stay cached")

	other := t.TempDir()
	otherLib := filepath.Join(other, "Lib.dll")
	require.NoError(t, os.WriteFile(otherLib, []byte("MZ"), 0o644))
	path, ok = r.probe("Lib", other)
	require.True(t, ok)
	assert.Equal(t, otherLib, path, "the referencing directory is searched first")
}

func TestResolverSkipsDirectories(t *testing.T) {
	search := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(search, "Lib.dll"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(search, "Lib.winmd"), []byte("MZ"), 0o644))
	r := newResolver([]string{search}, 8, zaptest.NewLogger(t))

	path, ok := r.probe("Lib", "")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(search, "Lib.winmd"), path)
}
