package sessionhost

import (
	"fmt"
	"os"
	"strconv"
)

// writePIDFile records the current process's PID at path so the reconciler
// can later kill(pid, 0)-probe whether the host is still alive (spec §4.8).
func writePIDFile(path string) error {
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0644)
}

func removeFile(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "session-host: remove %s: %v\n", path, err)
	}
}
