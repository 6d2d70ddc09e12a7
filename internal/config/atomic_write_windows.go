//go:build windows

package config

import (
	"os"
	"path/filepath"
	"time"
)

// atomicWriteFile writes data to path atomically. renameio's rename-based
// approach isn't supported on Windows, so this falls back to a manual
// write-then-rename with a small retry loop: Windows can't rename over an
// existing file and concurrent writers can transiently lock the
// destination.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	f, err := os.CreateTemp(dir, base+".tmp-*")
	if err != nil {
		return err
	}
	tempFile := f.Name()
	defer func() { _ = os.Remove(tempFile) }()

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	_ = os.Chmod(tempFile, perm)

	var lastErr error
	for attempt := 0; attempt < 10; attempt++ {
		if err := os.Rename(tempFile, path); err == nil {
			return nil
		} else {
			lastErr = err
		}
		if _, statErr := os.Stat(path); statErr == nil {
			_ = os.Remove(path)
			if err := os.Rename(tempFile, path); err == nil {
				return nil
			} else {
				lastErr = err
			}
		}
		time.Sleep(time.Duration(attempt+1) * 5 * time.Millisecond)
	}
	return lastErr
}
