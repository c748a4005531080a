// Package socket implements non-blocking TCP client/server and UDP
// datagram sockets built directly on raw file descriptors (via
// golang.org/x/sys/unix), queued-write discipline, and the Reactor,
// grounded on original_source/pyims/nio/sockets.py and spec.md §4.B.
//
// Non-goals carried from spec.md: no TLS, no IPv6.
package socket

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// Address is a resolved IPv4 endpoint.
type Address struct {
	IP   string
	Port int
}

func (a Address) String() string { return fmt.Sprintf("%s:%d", a.IP, a.Port) }

func resolveSockaddr(hostPort string) (*unix.SockaddrInet4, Address, error) {
	host, portStr, err := net.SplitHostPort(hostPort)
	if err != nil {
		return nil, Address{}, fmt.Errorf("socket: invalid address %q: %w", hostPort, err)
	}
	ips, err := net.LookupIP(host)
	if err != nil || len(ips) == 0 {
		return nil, Address{}, fmt.Errorf("socket: cannot resolve host %q: %w", host, err)
	}
	var v4 net.IP
	for _, ip := range ips {
		if ip4 := ip.To4(); ip4 != nil {
			v4 = ip4
			break
		}
	}
	if v4 == nil {
		return nil, Address{}, fmt.Errorf("socket: no IPv4 address for %q", host)
	}
	var port int
	if _, err := fmt.Sscanf(portStr, "%d", &port); err != nil {
		return nil, Address{}, fmt.Errorf("socket: invalid port %q: %w", portStr, err)
	}
	sa := &unix.SockaddrInet4{Port: port}
	copy(sa.Addr[:], v4)
	return sa, Address{IP: v4.String(), Port: port}, nil
}

func sockaddrToAddress(sa unix.Sockaddr) Address {
	if in4, ok := sa.(*unix.SockaddrInet4); ok {
		ip := net.IPv4(in4.Addr[0], in4.Addr[1], in4.Addr[2], in4.Addr[3])
		return Address{IP: ip.String(), Port: in4.Port}
	}
	return Address{}
}
