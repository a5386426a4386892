// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package trace

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
	"golang.org/x/sys/unix"
)

// errNoFd is returned by Fd when the underlying net.PacketConn does not
// expose a file descriptor (e.g. a test double).
var errNoFd = errors.New("connection does not expose a file descriptor")

// probeSocket is the minimal surface the engine needs from either a raw
// ICMP socket or an unprivileged ICMP datagram socket, letting hopController
// and pinger stay oblivious to which one they were handed.
type probeSocket struct {
	conn             net.PacketConn
	family           AddrFamily
	filterIdentifier bool

	v4 *ipv4.PacketConn
	v6 *ipv6.PacketConn
}

// openSocket opens a raw ICMP socket for family, falling back to an
// unprivileged ICMP datagram socket on EPERM (§4.2, §7). The returned
// filterIdentifier flag tells the codec whether the kernel owns the
// identifier field: on a raw socket the engine's own identifier survives
// the round trip; on a datagram socket the kernel rewrites it, so the codec
// must not filter on it.
func openSocket(ctx context.Context, family AddrFamily) (*probeSocket, bool, error) {
	rawNetwork, unprivNetwork := socketNetworks(family)

	conn, err := net.ListenPacket(rawNetwork, unspecifiedAddr(family))
	if err == nil {
		s, wrapErr := wrapConn(conn, family)
		if wrapErr != nil {
			conn.Close()
			return nil, false, wrapErr
		}
		return s, true, nil
	}
	if !errors.Is(err, unix.EPERM) && !errors.Is(err, syscall.EPERM) {
		return nil, false, wrapSyscallError(ctx, err)
	}

	conn, err = net.ListenPacket(unprivNetwork, unspecifiedAddr(family))
	if err != nil {
		return nil, false, wrapSyscallError(ctx, err)
	}
	s, wrapErr := wrapConn(conn, family)
	if wrapErr != nil {
		conn.Close()
		return nil, false, wrapErr
	}
	return s, false, nil
}

func socketNetworks(family AddrFamily) (raw, unprivileged string) {
	if family == FamilyV6 {
		return "ip6:ipv6-icmp", "udp6"
	}
	return "ip4:icmp", "udp4"
}

func unspecifiedAddr(family AddrFamily) string {
	if family == FamilyV6 {
		return "::"
	}
	return "0.0.0.0"
}

func wrapConn(conn net.PacketConn, family AddrFamily) (*probeSocket, error) {
	s := &probeSocket{conn: conn, family: family}
	if family == FamilyV6 {
		s.v6 = ipv6.NewPacketConn(conn)
	} else {
		s.v4 = ipv4.NewPacketConn(conn)
	}
	return s, nil
}

// SetHopLimit sets the outgoing TTL (IPv4) or hop limit (IPv6) used by the
// next WriteTo call, wrapping whichever of raw or unprivileged conn was
// opened identically (§4.2 / §4.3).
func (s *probeSocket) SetHopLimit(hops int) error {
	if s.family == FamilyV6 {
		return s.v6.SetHopLimit(hops)
	}
	return s.v4.SetTTL(hops)
}

func (s *probeSocket) WriteTo(b []byte, addr net.Addr) error {
	_, err := s.conn.WriteTo(b, addr)
	return err
}

func (s *probeSocket) ReadFrom(ctx context.Context, b []byte) (int, net.Addr, error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = s.conn.SetReadDeadline(deadline)
	} else {
		_ = s.conn.SetReadDeadline(time.Time{})
	}
	n, addr, err := s.conn.ReadFrom(b)
	if err != nil {
		return 0, nil, wrapSyscallError(ctx, err)
	}
	return n, addr, nil
}

func (s *probeSocket) Close() error {
	return s.conn.Close()
}

// Fd returns the socket's file descriptor, for registering with a Reactor.
// The probeSocket must be kept alive for as long as the descriptor is in
// use, since Go's runtime-managed net.Conn closes it on garbage collection.
func (s *probeSocket) Fd() (uintptr, error) {
	sc, ok := s.conn.(syscall.Conn)
	if !ok {
		return 0, errNoFd
	}
	rc, err := sc.SyscallConn()
	if err != nil {
		return 0, fmt.Errorf("get raw connection: %w", err)
	}

	var fd uintptr
	if err := rc.Control(func(f uintptr) { fd = f }); err != nil {
		return 0, fmt.Errorf("control raw connection: %w", err)
	}
	return fd, nil
}

// ReadDatagram performs a single, direct read, intended for use from a
// Reactor readable callback where the descriptor is already known to have
// data pending and the read will not block.
func (s *probeSocket) ReadDatagram(buf []byte) (int, net.Addr, error) {
	return s.conn.ReadFrom(buf)
}

// isUnreachable reports whether err corresponds to a network-reachability
// failure reported synchronously by the kernel (as opposed to an ICMP
// Destination Unreachable received asynchronously, which the codec
// classifies separately).
func isUnreachable(err error) bool {
	return errors.Is(err, unix.ENETUNREACH) ||
		errors.Is(err, unix.EHOSTUNREACH) ||
		errors.Is(err, unix.ECONNREFUSED)
}

// isTimeout reports whether err is a syscall-level timeout, distinct from
// the engine's own per-hop timeout, which is driven by the Reactor's timer
// rather than by a blocking read timing out.
func isTimeout(err error) bool {
	if errors.Is(err, unix.ETIMEDOUT) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// errUnsupportedFamily is returned by callers that receive an AddrFamily
// value outside the two defined constants.
var errUnsupportedFamily = fmt.Errorf("%w: unsupported address family", ErrInvalidConfiguration)
