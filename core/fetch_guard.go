package core

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"syscall"
	"time"
)

// ErrBlockedAddress is returned when a render-time fetch would connect to an
// address that is not publicly routable.
var ErrBlockedAddress = errors.New("address is not publicly routable")

// 100.64.0.0/10 is carrier-grade NAT space, which netip does not classify.
var sharedAddressSpace = netip.MustParsePrefix("100.64.0.0/10")

// IsPublicAddr reports whether ip is a routable unicast address outside the
// loopback, private, link-local and shared ranges.
func IsPublicAddr(ip netip.Addr) bool {
	ip = ip.Unmap()
	if !ip.IsValid() || !ip.IsGlobalUnicast() {
		return false
	}
	return !ip.IsPrivate() && !sharedAddressSpace.Contains(ip)
}

// NewFetchHTTPClient returns the client used to load logo and image URLs
// named in composition requests. Unless AllowPrivateFetch is set, every
// connection, redirects included, must go to a public address; the check
// runs on the resolved IP so DNS names cannot point around it.
func NewFetchHTTPClient(cfg *Config) *http.Client {
	client := NewHTTPClient(cfg)
	if cfg != nil && cfg.AllowPrivateFetch {
		return client
	}
	transport := client.Transport.(*http.Transport)
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
		Control:   publicOnly,
	}
	transport.DialContext = dialer.DialContext
	// A proxy would be the only address checked.
	transport.Proxy = nil
	return client
}

func publicOnly(_, address string, _ syscall.RawConn) error {
	ap, err := netip.ParseAddrPort(address)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, address)
	}
	if !IsPublicAddr(ap.Addr()) {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, ap.Addr())
	}
	return nil
}
