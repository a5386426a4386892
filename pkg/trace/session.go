// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package trace

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net"
	"sync"
	"time"

	oteltrace "go.opentelemetry.io/otel/trace"
)

// randomIdentifier returns a random 16-bit session identifier, per §3's
// "random 16-bit unsigned integer assigned at construction."
func randomIdentifier() uint16 {
	return uint16(rand.N(65536)) // #nosec G404 -- not security-sensitive, just disambiguates concurrent sessions
}

// SessionState is one position in the Idle/Resolving/Running/terminal state
// machine of §4.4.
type SessionState int

const (
	StateIdle SessionState = iota
	StateResolving
	StateRunning
	StateFinished
	StateFailed
	StateStopped
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateResolving:
		return "resolving"
	case StateRunning:
		return "running"
	case StateFinished:
		return "finished"
	case StateFailed:
		return "failed"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Session runs one traceroute to completion against a single resolved
// address, owning the socket, the probe table, the hop controller, and the
// statistics accumulated along the way.
type Session struct {
	hostname string
	cfg      SessionConfig
	resolver Resolver
	reactor  Reactor
	observer Observer

	mu         sync.Mutex
	state      SessionState
	sock       *probeSocket
	hc         *hopController
	hops       []HopResult
	targetAddr net.Addr
	family     AddrFamily
	startedAt  time.Time

	// identifier is stamped into every outbound probe's ICMP Identifier
	// field. It defaults to a random value; override with SetIdentifier
	// before Start to pin it (tests, or callers coordinating identifiers
	// across sessions themselves).
	identifier uint16

	// openSocket is overridable in tests to avoid depending on raw-socket
	// privileges or real network I/O.
	openSocket func(ctx context.Context, family AddrFamily) (*probeSocket, bool, error)
}

// NewSession constructs a Session for hostname. cfg is validated immediately.
// The session identifier is assigned randomly; call SetIdentifier before
// Start to override it.
func NewSession(hostname string, cfg SessionConfig, resolver Resolver, reactor Reactor, observer Observer) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if hostname == "" {
		return nil, fmt.Errorf("%w: hostname must not be empty", ErrInvalidHostname)
	}

	return &Session{
		hostname:   hostname,
		cfg:        cfg,
		resolver:   resolver,
		reactor:    reactor,
		observer:   observer,
		state:      StateIdle,
		identifier: randomIdentifier(),
		openSocket: openSocket,
	}, nil
}

// SetIdentifier overrides the session's randomly assigned ICMP identifier.
// It has no effect once Start has been called.
func (s *Session) SetIdentifier(id uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identifier = id
}

// IsRunning reports whether the session is resolving or actively probing.
func (s *Session) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateResolving || s.state == StateRunning
}

// State returns the current state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start resolves the hostname and, once an address is bound, begins probing
// hop 1. It returns ErrAlreadyRunning if called while Resolving or Running.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateResolving || s.state == StateRunning {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.state = StateResolving
	s.hops = nil
	s.startedAt = time.Now()
	s.mu.Unlock()

	addrs, err := s.resolver.Resolve(ctx, s.hostname, s.cfg.AddressStyle)
	if err != nil {
		s.fail(fmt.Errorf("%w: %w", ErrResolutionFailed, err))
		return nil
	}

	target, family, err := chooseAddress(addrs, s.cfg.AddressStyle)
	if err != nil {
		s.fail(err)
		return nil
	}

	sock, isRaw, err := s.openSocket(ctx, family)
	if err != nil {
		s.fail(err)
		return nil
	}

	s.mu.Lock()
	identifier := s.identifier
	s.mu.Unlock()
	table := newProbeTable()
	stats := newStatisticsAccumulator()
	tracer := oteltrace.SpanFromContext(ctx).TracerProvider().Tracer("github.com/hoptrace/hoptrace/pkg/trace")
	hc := newHopController(ctx, tracer, s.cfg, newCodec(family, identifier, isRaw), table, stats, s.observer, s.reactor)
	hc.sendProbe = func(wire []byte) error { return sock.WriteTo(wire, target) }
	hc.setTTL = sock.SetHopLimit
	hc.onHop = s.handleHopResult
	hc.onFinish = s.finish
	hc.onFatal = s.fail

	s.mu.Lock()
	s.sock = sock
	s.hc = hc
	s.targetAddr = target
	s.family = family
	s.state = StateRunning
	s.mu.Unlock()

	s.observer.OnStarted(target.String())

	if err := s.registerReadable(); err != nil {
		s.fail(err)
		return nil
	}

	hc.EnterHop(1)
	return nil
}

func (s *Session) registerReadable() error {
	fd, err := s.sock.Fd()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSystem, err)
	}
	return s.reactor.RegisterReadable(fd, s.handleReadable)
}

func (s *Session) handleReadable() {
	s.mu.Lock()
	sock := s.sock
	hc := s.hc
	running := s.state == StateRunning
	s.mu.Unlock()
	if !running || sock == nil {
		return
	}

	buf := make([]byte, 1500)
	n, from, err := sock.ReadDatagram(buf)
	if err != nil {
		return
	}

	cls := hc.codec.Classify(buf[:n])
	switch cls.Kind {
	case EchoReply, TimeExceeded, Unreachable:
		hc.HandleClassification(cls, from)
	}
}

func (s *Session) handleHopResult(r HopResult) {
	s.mu.Lock()
	s.hops = append(s.hops, r)
	s.mu.Unlock()
	s.observer.OnHopCompleted(r)
}

// finish implements the Running -> Finished transition, emitting exactly
// one terminal SessionResult.
func (s *Session) finish(reachedTarget bool) {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return
	}
	s.state = StateFinished
	result := SessionResult{
		TargetHostname: s.hostname,
		TargetAddress:  s.targetAddr.String(),
		MaxHops:        s.cfg.MaxHops,
		ActualHops:     lastHopNumber(s.hops),
		TotalTime:      time.Since(s.startedAt),
		Hops:           s.hops,
		ReachedTarget:  reachedTarget,
		Statistics:     s.hc.stats.Snapshot(),
	}
	sock := s.sock
	s.mu.Unlock()

	if sock != nil {
		_ = sock.Close()
	}
	s.observer.OnFinished(result)
}

// fail implements any -> Failed transition. isRecoverable errors (already
// running / not running) are ignored here: no state change and no OnFailed
// event.
func (s *Session) fail(err error) {
	if isRecoverable(err) {
		return
	}

	s.mu.Lock()
	if s.state == StateFailed || s.state == StateStopped {
		s.mu.Unlock()
		return
	}
	s.state = StateFailed
	sock := s.sock
	s.mu.Unlock()

	if sock != nil {
		_ = sock.Close()
	}
	s.observer.OnFailed(err)
}

// Stop is always safe to call. It releases the socket, cancels the per-hop
// timer, clears the probe table, and emits a terminal SessionResult exactly
// once, even if Stop is called multiple times or after the session has
// already finished on its own.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.state != StateRunning && s.state != StateResolving {
		s.mu.Unlock()
		return
	}
	s.state = StateStopped
	hops := s.hops
	sock := s.sock
	hc := s.hc
	target := s.targetAddr
	hostname := s.hostname
	cfg := s.cfg
	startedAt := s.startedAt
	s.mu.Unlock()

	if hc != nil {
		hc.cancelTimer()
		hc.table.Sweep(time.Now())
	}
	if sock != nil {
		_ = sock.Close()
	}

	result := SessionResult{
		TargetHostname: hostname,
		MaxHops:        cfg.MaxHops,
		ActualHops:     lastHopNumber(hops),
		TotalTime:      time.Since(startedAt),
		Hops:           hops,
		ReachedTarget:  false,
	}
	if target != nil {
		result.TargetAddress = target.String()
	}
	if hc != nil {
		result.Statistics = hc.stats.Snapshot()
	}
	s.observer.OnFinished(result)
}

func lastHopNumber(hops []HopResult) uint8 {
	if len(hops) == 0 {
		return 0
	}
	return hops[len(hops)-1].HopNumber
}

// chooseAddress selects the first resolved address compatible with style,
// reporting its address family.
func chooseAddress(addrs []net.Addr, style AddressStyle) (net.Addr, AddrFamily, error) {
	for _, addr := range addrs {
		ip := addrIP(addr)
		if ip == nil {
			continue
		}
		family := FamilyV4
		if ip.To4() == nil {
			family = FamilyV6
		}
		if style.accepts(family) {
			return addr, family, nil
		}
	}
	return nil, 0, ErrResolutionFailed
}

func addrIP(addr net.Addr) net.IP {
	switch a := addr.(type) {
	case *net.IPAddr:
		return a.IP
	case *net.UDPAddr:
		return a.IP
	case *net.TCPAddr:
		return a.IP
	default:
		return nil
	}
}
