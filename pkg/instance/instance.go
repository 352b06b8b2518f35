// Package instance names the running process for logs and lock owners.
package instance

import (
	"os"
	"strings"
)

const fallbackID = "local"

// ID returns the first non-empty of EDUTRACK_INSTANCE_ID, DYNO and HOSTNAME.
func ID() string {
	for _, key := range []string{"EDUTRACK_INSTANCE_ID", "DYNO", "HOSTNAME"} {
		if id := strings.TrimSpace(os.Getenv(key)); id != "" {
			return id
		}
	}
	return fallbackID
}
