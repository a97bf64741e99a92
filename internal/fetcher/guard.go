package fetcher

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"syscall"
)

// errBlockedAddress — адрес назначения запрещён политикой.
var errBlockedAddress = errors.New("адрес назначения запрещён")

// denyPrivateAddresses — net.Dialer.Control, отклоняющий соединения
// с loopback, частными, link-local, multicast и неуказанными адресами.
// Вызывается уже с разрешённым IP, поэтому DNS-имена не обходят проверку.
func denyPrivateAddresses(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("разбор адреса %q: %w", address, err)
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return fmt.Errorf("разбор IP %q: %w", host, err)
	}
	if isBlocked(addr) {
		return fmt.Errorf("%w: %s", errBlockedAddress, addr)
	}
	return nil
}

func isBlocked(addr netip.Addr) bool {
	addr = addr.Unmap()
	return addr.IsLoopback() ||
		addr.IsPrivate() ||
		addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() ||
		addr.IsInterfaceLocalMulticast() ||
		addr.IsMulticast() ||
		addr.IsUnspecified()
}
