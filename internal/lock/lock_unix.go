//go:build !windows

package lock

import (
	"os"

	"golang.org/x/sys/unix"
)

// tryLock takes an exclusive flock(2) without blocking.
func tryLock(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
}

func unlock(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}
