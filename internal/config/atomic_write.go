package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// AtomicWrite writes data to path atomically, preserving the existing
// file's permissions (or 0600 for a new file). Platform-specific bodies
// live in atomic_write_unix.go / atomic_write_windows.go; this is the
// shared entry point config.json and the pricing catalog rewrite through.
func AtomicWrite(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	perm := os.FileMode(0o600)
	if info, err := os.Stat(path); err == nil {
		perm = info.Mode().Perm()
	}
	return atomicWriteFile(path, data, perm)
}

// CalculateETag returns a quoted strong ETag for content.
func CalculateETag(content []byte) string {
	sum := sha256.Sum256(content)
	return fmt.Sprintf("%q", hex.EncodeToString(sum[:]))
}
