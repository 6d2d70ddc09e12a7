//go:build !windows

package config

import (
	"os"

	"github.com/google/renameio/v2"
)

// atomicWriteFile writes data to path atomically via a temp file in the
// same directory plus an fsync'd rename, using renameio rather than
// hand-rolling the temp-file dance.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	return renameio.WriteFile(path, data, perm)
}
