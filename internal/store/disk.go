package store

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"
)

// DiskStore keeps artifacts under root/{assetID}/{filename}.
type DiskStore struct {
	root string
}

// NewDiskStore creates the store root if needed.
func NewDiskStore(root string) (*DiskStore, error) {
	if root == "" {
		return nil, fmt.Errorf("store root must not be empty")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve store root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("create store root: %w", err)
	}
	return &DiskStore{root: abs}, nil
}

// Root returns the absolute store root.
func (d *DiskStore) Root() string { return d.root }

func (d *DiskStore) Path(key Key) (string, error) {
	for _, c := range []string{key.AssetID, key.Filename} {
		if c == "" || c == "." || c == ".." || strings.ContainsAny(c, `/\`) {
			return "", fmt.Errorf("invalid artifact key component %q", c)
		}
	}
	return filepath.Join(d.root, key.AssetID, key.Filename), nil
}

func (d *DiskStore) Exists(key Key) (bool, error) {
	path, err := d.Path(key)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

func (d *DiskStore) Open(key Key) (io.ReadCloser, os.FileInfo, error) {
	path, err := d.Path(key)
	if err != nil {
		return nil, nil, err
	}
	if err := d.confine(path); err != nil {
		return nil, nil, err
	}
	f, err := os.Open(path) // #nosec G304 -- path components validated in Path
	if err != nil {
		return nil, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}
	return f, info, nil
}

// Commit copies tempPath into a pending file next to the final location and
// renames it into place, so a crash mid-commit never leaves a partial
// artifact behind the deterministic key.
func (d *DiskStore) Commit(key Key, tempPath string) error {
	path, err := d.Path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}

	src, err := os.Open(tempPath) // #nosec G304 -- staging path owned by this request
	if err != nil {
		return fmt.Errorf("open staged artifact: %w", err)
	}
	defer func() { _ = src.Close() }()

	pending, err := renameio.TempFile(filepath.Dir(path), path)
	if err != nil {
		return fmt.Errorf("prepare pending artifact: %w", err)
	}
	defer func() { _ = pending.Cleanup() }()

	if _, err := io.Copy(pending, src); err != nil {
		return fmt.Errorf("copy artifact: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("commit artifact: %w", err)
	}

	_ = os.Remove(tempPath)
	return nil
}

// confine verifies that path, after resolving symlinks, still lives under
// the store root. A symlink planted inside an asset dir must not let reads
// escape.
func (d *DiskStore) confine(path string) error {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		// Missing files surface as os.IsNotExist for the caller.
		return err
	}
	rootResolved, err := filepath.EvalSymlinks(d.root)
	if err != nil {
		return fmt.Errorf("resolve store root: %w", err)
	}
	rel, err := filepath.Rel(rootResolved, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("artifact path escapes the store root")
	}
	return nil
}

func (d *DiskStore) Remove(key Key) error {
	path, err := d.Path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	// Drop the asset dir when this was its last artifact.
	_ = os.Remove(filepath.Dir(path))
	return nil
}

var _ Store = (*DiskStore)(nil)
