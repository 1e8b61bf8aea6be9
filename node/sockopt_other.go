//go:build !(linux || darwin || freebsd)

package node

import "syscall"

func reuseControl(_, _ string, _ syscall.RawConn) error {
	return nil
}
