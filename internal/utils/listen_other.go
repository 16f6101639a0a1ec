//go:build !unix

package utils

import "syscall"

func reuseAddrControl(network, address string, c syscall.RawConn) error {
	return nil
}
