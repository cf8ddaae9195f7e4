package domain

import (
	"fmt"
)

// Storage key scheme for durable run state. Everything for one run lives
// under run:<id>: so restore and cleanup work by prefix.

func RunPrefix(runID string) string {
	return fmt.Sprintf("run:%s:", runID)
}

func CheckpointKey(runID string) string {
	return fmt.Sprintf("run:%s:checkpoint", runID)
}
