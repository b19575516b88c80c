package store

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommitThenExistsAndOpen(t *testing.T) {
	d, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)

	key := Key{AssetID: "vid1", Filename: "Clip_1080p.mp4"}

	ok, err := d.Exists(key)
	require.NoError(t, err)
	assert.False(t, ok)

	temp := filepath.Join(t.TempDir(), "staged.mp4")
	require.NoError(t, os.WriteFile(temp, []byte("merged bytes"), 0o600))

	require.NoError(t, d.Commit(key, temp))
	assert.NoFileExists(t, temp, "commit consumes the staged file")

	ok, err = d.Exists(key)
	require.NoError(t, err)
	assert.True(t, ok)

	rc, info, err := d.Open(key)
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "merged bytes", string(data))
	assert.EqualValues(t, len("merged bytes"), info.Size())
}

func TestCommitOverwritesExisting(t *testing.T) {
	d, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)
	key := Key{AssetID: "vid1", Filename: "a.mp4"}

	for i, content := range []string{"first", "second"} {
		temp := filepath.Join(t.TempDir(), "staged")
		require.NoError(t, os.WriteFile(temp, []byte(content), 0o600))
		require.NoError(t, d.Commit(key, temp), "commit %d", i)
	}

	rc, _, err := d.Open(key)
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}

func TestRemove(t *testing.T) {
	d, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)
	key := Key{AssetID: "vid1", Filename: "a.mp4"}

	temp := filepath.Join(t.TempDir(), "staged")
	require.NoError(t, os.WriteFile(temp, []byte("x"), 0o600))
	require.NoError(t, d.Commit(key, temp))

	require.NoError(t, d.Remove(key))
	ok, err := d.Exists(key)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoDirExists(t, filepath.Join(d.Root(), "vid1"))

	// Removing again is not an error.
	assert.NoError(t, d.Remove(key))
}

func TestOpenRejectsSymlinkEscape(t *testing.T) {
	d, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)

	outside := filepath.Join(t.TempDir(), "secret.mp4")
	require.NoError(t, os.WriteFile(outside, []byte("secret"), 0o600))

	assetDir := filepath.Join(d.Root(), "vid1")
	require.NoError(t, os.MkdirAll(assetDir, 0o750))
	require.NoError(t, os.Symlink(outside, filepath.Join(assetDir, "link.mp4")))

	_, _, err = d.Open(Key{AssetID: "vid1", Filename: "link.mp4"})
	assert.Error(t, err, "symlink pointing outside the store must not be readable")
}

func TestOpenMissingArtifact(t *testing.T) {
	d, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)

	_, _, err = d.Open(Key{AssetID: "vid1", Filename: "missing.mp4"})
	require.Error(t, err)
	assert.True(t, os.IsNotExist(err))
}

func TestPathRejectsTraversal(t *testing.T) {
	d, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)

	bad := []Key{
		{AssetID: "..", Filename: "a.mp4"},
		{AssetID: "vid1", Filename: "../escape.mp4"},
		{AssetID: "a/b", Filename: "c.mp4"},
		{AssetID: "", Filename: "c.mp4"},
		{AssetID: "vid1", Filename: ""},
	}
	for _, key := range bad {
		_, err := d.Path(key)
		assert.Error(t, err, "key %+v must be rejected", key)
	}
}
