package daemon

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// WritePID records the daemon's process id at path
func WritePID(path string, pid int) error {
	return os.WriteFile(path, []byte(strconv.Itoa(pid)), 0644)
}

// ReadPID reads a process id previously written with WritePID
func ReadPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

// RemovePID deletes the pid file
func RemovePID(path string) error {
	return os.Remove(path)
}

// IsProcessRunning reports whether a process with the given pid is alive.
// FindProcess always succeeds on Unix, so signal 0 does the actual probe.
func IsProcessRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}

// CheckExistingDaemon reports whether a daemon recorded in pidFile is still
// alive. A pid file left behind by a dead process is removed.
func CheckExistingDaemon(pidFile string) (bool, int, error) {
	pid, err := ReadPID(pidFile)
	if os.IsNotExist(err) {
		return false, 0, nil
	}
	if err != nil {
		return false, 0, fmt.Errorf("read pid file: %w", err)
	}
	if IsProcessRunning(pid) {
		return true, pid, nil
	}
	RemovePID(pidFile)
	return false, 0, nil
}
