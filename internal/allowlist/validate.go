package allowlist

import (
	"fmt"
	"net/netip"
	"strings"

	"github.com/secgate-io/secgate/internal/util"
)

// broadcastV4 is the one address in 240.0.0.0/4 that remains acceptable.
var broadcastV4 = netip.MustParseAddr("255.255.255.255")

// ValidateAddress validates and normalizes an allow-list address. It
// rejects, beyond syntactically malformed input: IPv4 with leading-zero
// octets (parsed ambiguously across libraries), incomplete IPv4, loopback,
// unspecified (0.0.0.0/8, ::), link-local, multicast, and reserved
// (240.0.0.0/4 except the broadcast literal) ranges. An entry pointing at
// a non-routable or shared range would silently defeat the allow-list.
//
// The returned string is the canonical form with any IPv4-mapped IPv6
// prefix stripped.
func ValidateAddress(address string) (string, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return "", fmt.Errorf("%w: empty address", util.ErrInvalidAddress)
	}

	// netip.ParseAddr already rejects leading-zero and short-form IPv4,
	// but check explicitly so the reason is reported precisely.
	if strings.Count(address, ".") > 0 && !strings.Contains(address, ":") {
		octets := strings.Split(address, ".")
		if len(octets) != 4 {
			return "", fmt.Errorf("%w: IPv4 must have exactly 4 octets", util.ErrInvalidAddress)
		}
		for _, octet := range octets {
			if len(octet) > 1 && octet[0] == '0' {
				return "", fmt.Errorf("%w: leading-zero octet", util.ErrInvalidAddress)
			}
		}
	}

	addr, err := netip.ParseAddr(address)
	if err != nil {
		return "", fmt.Errorf("%w: %s", util.ErrInvalidAddress, address)
	}
	addr = addr.Unmap()

	switch {
	case addr.IsLoopback():
		return "", fmt.Errorf("%w: loopback range", util.ErrInvalidAddress)
	case isUnspecifiedRange(addr):
		return "", fmt.Errorf("%w: unspecified range", util.ErrInvalidAddress)
	case addr.IsLinkLocalUnicast():
		return "", fmt.Errorf("%w: link-local range", util.ErrInvalidAddress)
	case addr.IsMulticast():
		return "", fmt.Errorf("%w: multicast range", util.ErrInvalidAddress)
	case isReservedV4(addr):
		return "", fmt.Errorf("%w: reserved range", util.ErrInvalidAddress)
	}

	return addr.String(), nil
}

// isUnspecifiedRange covers 0.0.0.0/8 for IPv4 and :: for IPv6.
func isUnspecifiedRange(addr netip.Addr) bool {
	if addr.Is4() {
		return addr.As4()[0] == 0
	}
	return addr.IsUnspecified()
}

// isReservedV4 covers 240.0.0.0/4 except the broadcast literal.
func isReservedV4(addr netip.Addr) bool {
	if !addr.Is4() {
		return false
	}
	return addr.As4()[0] >= 240 && addr != broadcastV4
}
