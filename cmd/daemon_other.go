//go:build !unix

// cmd/daemon_other.go
package cmd

import "errors"

func daemonize() error {
	return errors.New("background mode is only supported on unix platforms")
}
