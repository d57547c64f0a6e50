// SPDX-License-Identifier: MPL-2.0

//go:build windows

package watch

import (
	"errors"
	"syscall"
)

// Win32 codes after which ReadDirectoryChangesW cannot recover: too many
// open files, invalid handle (directory gone), and not enough memory.
var fatalErrnos = []syscall.Errno{syscall.Errno(4), syscall.Errno(6), syscall.Errno(8)}

func isFatalFsnotifyError(err error) bool {
	for _, errno := range fatalErrnos {
		if errors.Is(err, errno) {
			return true
		}
	}
	return false
}
