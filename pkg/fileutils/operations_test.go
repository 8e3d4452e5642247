package fileutils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMoveFile(t *testing.T) {
	t.Run("moves a file into a directory that does not exist yet", func(t *testing.T) {
		tmpDir := t.TempDir()
		src := filepath.Join(tmpDir, "source.epub")
		require.NoError(t, os.WriteFile(src, []byte("contents"), 0o644))

		dst := filepath.Join(tmpDir, "nested", "deeper", "dest.epub")
		require.NoError(t, MoveFile(src, dst))

		_, err := os.Stat(src)
		assert.True(t, os.IsNotExist(err))

		data, err := os.ReadFile(dst)
		require.NoError(t, err)
		assert.Equal(t, "contents", string(data))
	})
}

func TestGenerateUniqueFilepathIfExists(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "book.epub")

	assert.Equal(t, path, GenerateUniqueFilepathIfExists(path))

	require.NoError(t, os.WriteFile(path, []byte("a"), 0o644))
	assert.Equal(t, filepath.Join(tmpDir, "book (1).epub"), GenerateUniqueFilepathIfExists(path))

	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "book (1).epub"), []byte("b"), 0o644))
	assert.Equal(t, filepath.Join(tmpDir, "book (2).epub"), GenerateUniqueFilepathIfExists(path))
}

func TestHashFile(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "book.epub")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	hash, err := HashFile(path)
	require.NoError(t, err)
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", hash)
}
