package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocalStorageSaveAtomicReplacesContent(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, err = store.SaveAtomic("2025/course/index.json", []byte(`[1]`))
	require.NoError(t, err)
	_, err = store.SaveAtomic("2025/course/index.json", []byte(`[2]`))
	require.NoError(t, err)

	data, err := store.Read("2025/course/index.json")
	require.NoError(t, err)
	require.Equal(t, `[2]`, string(data))

	entries, err := os.ReadDir(filepath.Join(store.BaseDir(), "2025/course"))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp files must not be left behind")
}

func TestLocalStorageRejectsEscapingPaths(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, err = store.Save("../outside.pdf", []byte("x"))
	require.Error(t, err)
	require.NoError(t, store.Delete(""))
	require.NoError(t, store.Delete("missing.pdf"))
}

func TestLocalStorageSaveReadDelete(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	rel, err := store.Save("courses/cs101/syllabus.pdf", []byte("%PDF-1.4"))
	require.NoError(t, err)
	require.Equal(t, "courses/cs101/syllabus.pdf", rel)
	require.Equal(t, filepath.Join(store.BaseDir(), "courses/cs101/syllabus.pdf"), store.Path(rel))

	data, err := store.Read(rel)
	require.NoError(t, err)
	require.Equal(t, "%PDF-1.4", string(data))

	require.NoError(t, store.Delete(rel))
	_, err = store.Read(rel)
	require.Error(t, err)
}
