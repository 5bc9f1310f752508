package storage

import (
	"bytes"
	"fmt"

	"github.com/natefinch/atomic"
)

// atomicWriteFile writes data to path via a temp-file-plus-rename so a
// reader never observes a partially written file.
func atomicWriteFile(path string, data []byte) error {
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("storage: atomic write %q: %w", path, err)
	}
	return nil
}
