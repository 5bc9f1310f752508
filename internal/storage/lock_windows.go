//go:build windows

package storage

import "os"

// tryLockExclusive is a no-op on windows; the directory lock is a
// best-effort guard against a second process on the same machine, not a
// correctness requirement akasha depends on.
func tryLockExclusive(f *os.File) error { return nil }

func unlockFile(f *os.File) {}
