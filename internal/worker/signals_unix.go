//go:build unix

package worker

import (
	"os"

	"golang.org/x/sys/unix"
)

// sigAction is what a received signal asks the process to do.
type sigAction int

const (
	actNone sigAction = iota
	// actStop sets shutdown and interrupts the running job (TERM, INT).
	actStop
	// actStopGraceful sets shutdown; the current job finishes first (QUIT).
	actStopGraceful
	// actAbortJob interrupts the running job but keeps reserving (USR1).
	actAbortJob
	// actPause stops taking new jobs (USR2).
	actPause
	// actResume resumes reserving (CONT).
	actResume
)

// lifecycleSignals is the set a supervisor or child listens for.
func lifecycleSignals() []os.Signal {
	return []os.Signal{
		unix.SIGTERM, unix.SIGINT, unix.SIGQUIT,
		unix.SIGUSR1, unix.SIGUSR2, unix.SIGCONT,
	}
}

func classifySignal(sig os.Signal) sigAction {
	switch sig {
	case unix.SIGTERM, unix.SIGINT:
		return actStop
	case unix.SIGQUIT:
		return actStopGraceful
	case unix.SIGUSR1:
		return actAbortJob
	case unix.SIGUSR2:
		return actPause
	case unix.SIGCONT:
		return actResume
	}
	return actNone
}

// forwardSignal is the signal sent to children when the supervisor receives
// sig. TERM and INT both propagate as TERM.
func forwardSignal(sig os.Signal) os.Signal {
	if sig == unix.SIGINT {
		return unix.SIGTERM
	}
	return sig
}

func signalsSupported() bool {
	return true
}
