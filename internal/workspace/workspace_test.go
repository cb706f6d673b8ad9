package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndDestroy(t *testing.T) {
	m := NewManager(t.TempDir())

	dir, err := m.Create("job-1")
	require.NoError(t, err)
	assert.DirExists(t, dir)
	assert.Equal(t, Prefix+"job-1", filepath.Base(dir))

	require.NoError(t, m.Destroy(dir))
	assert.NoDirExists(t, dir)
}

func TestCreateClearsStaleWorkspace(t *testing.T) {
	m := NewManager(t.TempDir())

	dir, err := m.Create("job-1")
	require.NoError(t, err)
	stale := filepath.Join(dir, "leftover.txt")
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0o640))

	dir2, err := m.Create("job-1")
	require.NoError(t, err)
	assert.Equal(t, dir, dir2)
	assert.NoFileExists(t, stale)
}

func TestDestroyEmptyPathIsNoop(t *testing.T) {
	m := NewManager(t.TempDir())
	assert.NoError(t, m.Destroy(""))
}

func TestCreateSubdir(t *testing.T) {
	m := NewManager(t.TempDir())

	dir, err := m.Create("job-2")
	require.NoError(t, err)

	sub, err := m.CreateSubdir(dir, "app/src/main/res")
	require.NoError(t, err)
	assert.DirExists(t, sub)

	_, err = m.CreateSubdir("", "res")
	assert.Error(t, err)
}

func TestNewManagerDefaultsToTempDir(t *testing.T) {
	m := NewManager("")
	assert.Equal(t, os.TempDir(), m.Root())
}
