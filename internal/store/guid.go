package store

import (
	"fmt"
	"strings"

	gnet "github.com/shirou/gopsutil/v3/net"
)

// MachineGUID derives the machine identifier the store expects: the primary
// interface's MAC address, uppercased, separators stripped. The value only
// needs to be stable per machine, not secret.
func MachineGUID() (string, error) {
	ifaces, err := gnet.Interfaces()
	if err != nil {
		return "", fmt.Errorf("enumerate interfaces: %w", err)
	}

	for _, iface := range ifaces {
		if iface.HardwareAddr == "" || isLoopback(iface.Flags) {
			continue
		}
		mac := strings.ToUpper(strings.NewReplacer(":", "", "-", "").Replace(iface.HardwareAddr))
		if len(mac) == 12 && mac != "000000000000" {
			return mac, nil
		}
	}
	return "", fmt.Errorf("no usable network interface for machine guid")
}

func isLoopback(flags []string) bool {
	for _, f := range flags {
		if strings.EqualFold(f, "loopback") {
			return true
		}
	}
	return false
}
