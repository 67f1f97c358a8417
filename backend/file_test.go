package backend

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFilesystemBackend_RoundTrip(t *testing.T) {
	t.Parallel()

	b, err := NewFilesystemBackend(t.TempDir(), nil)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, b.Write(ctx, "/memories/semantic_memory.json", "[]"))

	data, err := b.Read(ctx, "/memories/semantic_memory.json")
	require.NoError(t, err)
	require.Equal(t, "[]", data)

	ok, err := b.Exists(ctx, "/memories/semantic_memory.json")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestFilesystemBackend_MissingFile(t *testing.T) {
	t.Parallel()

	b, err := NewFilesystemBackend(t.TempDir(), nil)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = b.Read(ctx, "/nope.json")
	require.ErrorIs(t, err, ErrNotFound)
	require.True(t, IsNotFound(err))

	ok, err := b.Exists(ctx, "/nope.json")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestFilesystemBackend_CreatesNestedDirs(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	b, err := NewFilesystemBackend(root, nil)
	require.NoError(t, err)

	require.NoError(t, b.Write(context.Background(), "/a/b/c.txt", "deep"))
	data, err := os.ReadFile(filepath.Join(root, "a", "b", "c.txt"))
	require.NoError(t, err)
	require.Equal(t, "deep", string(data))
}

func TestFilesystemBackend_OverwriteIsAtomicRename(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	b, err := NewFilesystemBackend(root, nil)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, b.Write(ctx, "/f.txt", "one"))
	require.NoError(t, b.Write(ctx, "/f.txt", "two"))

	data, err := b.Read(ctx, "/f.txt")
	require.NoError(t, err)
	require.Equal(t, "two", data)

	// No temp file left behind.
	_, err = os.Stat(filepath.Join(root, "f.txt.tmp"))
	require.True(t, os.IsNotExist(err))
}

func TestFilesystemBackend_RejectsEscapes(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	b, err := NewFilesystemBackend(filepath.Join(root, "data"), nil)
	require.NoError(t, err)
	ctx := context.Background()

	// Traversal components are confined inside the root.
	require.NoError(t, b.Write(ctx, "../escape.txt", "x"))
	_, err = os.Stat(filepath.Join(root, "escape.txt"))
	require.True(t, os.IsNotExist(err))

	_, err = b.Read(ctx, "/")
	require.Error(t, err)
}

func TestMapBackend(t *testing.T) {
	t.Parallel()

	b := NewMapBackend()
	ctx := context.Background()

	_, err := b.Read(ctx, "/x")
	require.ErrorIs(t, err, ErrNotFound)
	require.Zero(t, b.Len())

	require.NoError(t, b.Write(ctx, "/x", "v"))
	data, err := b.Read(ctx, "/x")
	require.NoError(t, err)
	require.Equal(t, "v", data)

	ok, err := b.Exists(ctx, "/x")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, b.Len())
}
