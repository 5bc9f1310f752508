//go:build !windows

package storage

import (
	"os"

	"golang.org/x/sys/unix"
)

// tryLockExclusive takes a non-blocking exclusive advisory lock on f.
func tryLockExclusive(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
}

func unlockFile(f *os.File) {
	unix.Flock(int(f.Fd()), unix.LOCK_UN)
}
