package worker

import (
	"fmt"
	"strings"

	"github.com/resqd/resq/internal/version"
)

// Procline builds the process title "<PREFIX>resq-<VERSION>: <STATE>". Go
// cannot portably rewrite its own title, so the supervisor keeps the line in
// its state and passes it to each child as a trailing argv element, where
// process listings can see it.
func Procline(prefix, state string) string {
	return fmt.Sprintf("%sresq-%s: %s", prefix, version.Version, state)
}

// ProclinePattern is the substring every procline contains, independent of
// prefix and state.
func ProclinePattern() string {
	return "resq-" + version.Version
}

// Procline states used by the supervisor and children.
func StateStarting() string {
	return "Starting"
}

func StateForked(pids []int, epoch int64) string {
	strs := make([]string, len(pids))
	for i, pid := range pids {
		strs[i] = fmt.Sprintf("%d", pid)
	}
	return fmt.Sprintf("Forked worker children %s at %d", strings.Join(strs, ","), epoch)
}

func StateProcessing(queue string, epoch int64, class string) string {
	return fmt.Sprintf("Processing %s since %d [%s]", queue, epoch, class)
}

func StateWaiting(queueList []string) string {
	return fmt.Sprintf("Waiting for %s", strings.Join(queueList, ","))
}

func StatePaused() string {
	return "Paused"
}
