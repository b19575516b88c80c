// Package store holds finished merged artifacts under deterministic keys.
// The key is {assetID}/{filename}; its presence is the pipeline's
// idempotency check, so Commit must be atomic: readers either see the
// complete artifact or nothing.
package store

import (
	"io"
	"os"
)

// Key addresses one merged artifact.
type Key struct {
	AssetID  string
	Filename string
}

// Store is the content-addressable artifact store. A future backing store
// (e.g. object storage) can replace the local disk implementation without
// touching the orchestrator.
type Store interface {
	// Exists reports whether the artifact for key is already committed.
	Exists(key Key) (bool, error)

	// Open returns a reader over the committed artifact and its size.
	Open(key Key) (io.ReadCloser, os.FileInfo, error)

	// Commit atomically promotes tempPath to the artifact location and
	// removes the temp file.
	Commit(key Key, tempPath string) error

	// Remove deletes the committed artifact, used only after a confirmed
	// durable upload.
	Remove(key Key) error

	// Path returns the local filesystem path for key (for hand-off to the
	// durable publisher).
	Path(key Key) (string, error)
}
