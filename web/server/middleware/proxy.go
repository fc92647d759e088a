package middleware

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"go4.org/netipx"
)

// TrustedProxies replaces the request's remote address with the client
// address reported in X-Forwarded-For, if the request came from a trusted
// proxy. The header is read from right to left, skipping trusted addresses,
// so that clients can't spoof their address by sending the header
// themselves. If proxies is nil, the header is ignored.
func TrustedProxies(proxies *netipx.IPSet) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if proxies != nil {
				if addr, ok := clientAddr(proxies, r); ok {
					r2 := r.Clone(r.Context())
					r2.RemoteAddr = addr
					r = r2
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func clientAddr(proxies *netipx.IPSet, r *http.Request) (string, bool) {
	remote, err := parseAddr(r.RemoteAddr)
	if err != nil || !proxies.Contains(remote) {
		return "", false
	}

	var hops []string
	for _, h := range r.Header.Values("X-Forwarded-For") {
		hops = append(hops, strings.Split(h, ",")...)
	}

	for i := len(hops) - 1; i >= 0; i-- {
		ip, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
		if err != nil {
			return "", false
		}
		ip = ip.Unmap()
		if !proxies.Contains(ip) {
			return ip.String(), true
		}
	}

	return "", false
}

func parseAddr(hostport string) (netip.Addr, error) {
	host, _, err := net.SplitHostPort(hostport)
	if err != nil {
		host = hostport
	}
	ip, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, err //nolint:wrapcheck // Only used for matching.
	}
	return ip.Unmap(), nil
}

// ParseIPSet builds an IP set from IP addresses, CIDR prefixes and ranges
// (e.g. "10.0.0.1", "10.0.0.0/8", "10.0.0.1-10.0.0.9").
func ParseIPSet(ipAddr ...string) (*netipx.IPSet, error) {
	var b netipx.IPSetBuilder
	for _, ip := range ipAddr {
		ip = strings.TrimSpace(ip)
		// Try a plain address first
		if addr, err := netip.ParseAddr(ip); err == nil {
			b.Add(addr.Unmap())
			continue
		}
		// Try a prefix (CIDR) next
		if cidr, err := netip.ParsePrefix(ip); err == nil {
			b.AddPrefix(cidr.Masked())
			continue
		}
		// Finally try a range
		ipRange, err := netipx.ParseIPRange(ip)
		if err != nil {
			return nil, fmt.Errorf("failed parsing IP address '%s': %w", ip, err)
		}
		b.AddRange(ipRange)
	}

	ipSet, err := b.IPSet()
	if err != nil {
		return nil, fmt.Errorf("failed building IP set: %w", err)
	}

	return ipSet, nil
}
