package license

import (
	"fmt"
	"net"
	"strings"
	"time"
)

// CheckTimeRange validates that now falls inside a temporal license's
// validity window. Non-temporal licenses always pass. Both failure modes
// carry ILLEGAL_TIME_RANGE but keep distinguishable messages.
func CheckTimeRange(d *LicenseData, now time.Time) error {
	if !d.IsTemporal {
		return nil
	}

	ms := now.UnixMilli()
	if ms < d.MinValidity {
		return NewError(KindIllegalTimeRange, fmt.Sprintf(
			"license for %q is not valid yet (valid from %s)",
			d.Subject, time.UnixMilli(d.MinValidity).UTC().Format(time.RFC3339)))
	}
	if ms > d.MaxValidity {
		return NewError(KindIllegalTimeRange, fmt.Sprintf(
			"license for %q expired at %s",
			d.Subject, time.UnixMilli(d.MaxValidity).UTC().Format(time.RFC3339)))
	}

	return nil
}

// InterfaceLookup resolves a network interface name to its address
// strings. Injectable so host-binding checks are testable without
// depending on the machine's real interfaces.
type InterfaceLookup func(name string) ([]string, error)

// SystemInterfaceLookup resolves interfaces via the local network stack
func SystemInterfaceLookup(name string) ([]string, error) {
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return nil, err
	}

	addrs, err := iface.Addrs()
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		switch a := addr.(type) {
		case *net.IPNet:
			out = append(out, a.IP.String())
		case *net.IPAddr:
			out = append(out, a.IP.String())
		default:
			out = append(out, addr.String())
		}
	}
	return out, nil
}

// CheckHost validates a token's host binding against the local machine.
// Unbound tokens (empty HostInfo) pass trivially; server-issued tokens
// are unbound in practice, so the bound branch is preserved for protocol
// fidelity but rarely exercised.
func CheckHost(d *LicenseData, lookup InterfaceLookup) error {
	if d.HostInfo == "" {
		return nil
	}
	if lookup == nil {
		lookup = SystemInterfaceLookup
	}

	ifaceName, expectedAddr, found := strings.Cut(d.HostInfo, ":")
	if !found {
		return NewError(KindInvalidMachine, fmt.Sprintf("host binding %q is not in interface:address form", d.HostInfo))
	}

	addrs, err := lookup(ifaceName)
	if err != nil {
		return WrapError(KindInvalidMachine, fmt.Sprintf("network interface %q not found on this machine", ifaceName), err)
	}

	for _, addr := range addrs {
		if addr == expectedAddr {
			return nil
		}
	}

	return NewError(KindInvalidMachine, fmt.Sprintf(
		"network interface %q has no address %s", ifaceName, expectedAddr))
}
