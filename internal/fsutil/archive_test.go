package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaynair0405/sub-spm/internal/security"
)

func TestArchive(t *testing.T) {
	t.Parallel()

	for name, fsys := range map[string]FileSystem{
		"memory": NewMemoryFileSystem(),
		"os":     OSFileSystem{},
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			a := NewArchive(fsys, filepath.Join(t.TempDir(), "uploads"))

			require.NoError(t, a.Save("run-1", []byte("Date,Speed,Distance\n")))
			got, err := a.Load("run-1")
			require.NoError(t, err)
			assert.Equal(t, "Date,Speed,Distance\n", string(got))

			require.NoError(t, a.Save("run-1", []byte("replaced")))
			got, err = a.Load("run-1")
			require.NoError(t, err)
			assert.Equal(t, "replaced", string(got))

			require.NoError(t, a.Delete("run-1"))
			_, err = a.Load("run-1")
			assert.ErrorIs(t, err, ErrNotArchived)
			assert.NoError(t, a.Delete("run-1"), "deleting twice is fine")
		})
	}
}

func TestArchive_RejectsEscapingIDs(t *testing.T) {
	t.Parallel()

	mem := NewMemoryFileSystem()
	a := NewArchive(mem, t.TempDir())
	assert.ErrorIs(t, a.Save("../outside", []byte("x")), security.ErrPathEscapes)
	_, err := a.Load("../../etc/passwd")
	assert.ErrorIs(t, err, security.ErrPathEscapes)
	assert.Zero(t, mem.Len())
}

func TestOSFileSystem_WriteFileLeavesNoTemp(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, OSFileSystem{}.WriteFile(filepath.Join(dir, "a.csv"), []byte("x"), 0o600))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a.csv", entries[0].Name())
	info, err := entries[0].Info()
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}
