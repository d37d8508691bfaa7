//go:build !windows

package protect

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

// machineIDFiles are probed in order; the first non-empty one wins.
var machineIDFiles = []string{
	"/etc/machine-id",
	"/var/lib/dbus/machine-id",
}

// Default returns the protector for this platform: a KeyProtector whose
// user key lives in keyDir.
func Default(keyDir string) (Protector, error) {
	return OpenUserKey(keyDir)
}

// machineIdentity returns a stable identifier for this machine. systemd and
// dbus machine ids are preferred; otherwise the kernel node name is used.
func machineIdentity() (string, error) {
	for _, path := range machineIDFiles {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if id := strings.TrimSpace(string(data)); id != "" {
			return "machine-id:" + id, nil
		}
	}

	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return "", fmt.Errorf("protect: failed to read machine identity: %w", err)
	}
	node := unix.ByteSliceToString(uts.Nodename[:])
	machine := unix.ByteSliceToString(uts.Machine[:])
	if node == "" {
		return "", fmt.Errorf("protect: empty machine identity")
	}
	return "uname:" + node + "/" + machine, nil
}
