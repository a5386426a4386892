// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package trace

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"
)

// defaultLatencyHistoryCapacity is the number of most-recent RTTs
// ContinuousPinger retains, per §4.5.
const defaultLatencyHistoryCapacity = 100

// PingObserver receives the events a ContinuousPinger produces. Unlike
// Observer it carries no per-hop or session-lifecycle concepts, since a
// ContinuousPinger never advances a TTL.
type PingObserver interface {
	// OnReply fires for every matched Echo Reply.
	OnReply(sequence uint16, rtt time.Duration)
	// OnTimeout fires when a single probe's deadline elapses unanswered.
	OnTimeout(sequence uint16)
	// OnUnexpected fires for a structurally valid but non-Echo-Reply ICMP
	// message, carrying the codec's best-effort human description.
	OnUnexpected(description string)
	// OnStatistics fires after every reply or timeout.
	OnStatistics(stats Statistics)
}

// ContinuousPinger repeatedly (or once) sends Echo Requests to a single
// resolved address without varying the TTL, per §4.5.
type ContinuousPinger struct {
	hostname string
	style    AddressStyle
	resolver Resolver
	reactor  Reactor
	observer PingObserver

	mu              sync.Mutex
	sock            *probeSocket
	codec           *codec
	table           *probeTable
	stats           *statisticsAccumulator
	target          net.Addr
	nextSequence    uint16
	continuousTimer TimerHandle
	continuousArmed bool
	continuousOn    bool
	singleInFlight  bool
	pendingSingle   chan time.Duration
	latencyHistory  []time.Duration

	// identifier is stamped into every outbound probe's ICMP Identifier
	// field. It defaults to a random value; override with SetIdentifier
	// before the first Ping/PingOnce call.
	identifier uint16

	openSocket func(ctx context.Context, family AddrFamily) (*probeSocket, bool, error)
}

// NewContinuousPinger constructs a pinger for hostname, resolved with style.
// The session identifier is assigned randomly; call SetIdentifier before the
// first Ping/PingOnce call to override it.
func NewContinuousPinger(hostname string, style AddressStyle, resolver Resolver, reactor Reactor, observer PingObserver) *ContinuousPinger {
	return &ContinuousPinger{
		hostname:   hostname,
		style:      style,
		resolver:   resolver,
		reactor:    reactor,
		observer:   observer,
		table:      newProbeTable(),
		stats:      newStatisticsAccumulator(),
		identifier: randomIdentifier(),
		openSocket: openSocket,
	}
}

// SetIdentifier overrides the pinger's randomly assigned ICMP identifier. It
// has no effect once the socket has already been bound.
func (p *ContinuousPinger) SetIdentifier(id uint16) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.identifier = id
}

// ensureBound resolves and opens the socket exactly once, reused across Ping
// and PingOnce calls.
func (p *ContinuousPinger) ensureBound(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sock != nil {
		return nil
	}

	addrs, err := p.resolver.Resolve(ctx, p.hostname, p.style)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrResolutionFailed, err)
	}
	target, family, err := chooseAddress(addrs, p.style)
	if err != nil {
		return err
	}

	sock, isRaw, err := p.openSocket(ctx, family)
	if err != nil {
		return err
	}

	p.sock = sock
	p.codec = newCodec(family, p.identifier, isRaw)
	p.target = target

	fd, err := sock.Fd()
	if err == nil {
		_ = p.reactor.RegisterReadable(fd, p.handleReadable)
	}
	return nil
}

// Ping starts continuous emission, one Echo Request every interval. An
// interval of 0 binds the socket and read loop without arming a periodic
// timer, so nothing is emitted; PingOnce still returns ErrContinuousRunning
// until Stop is called.
func (p *ContinuousPinger) Ping(ctx context.Context, interval time.Duration) error {
	p.mu.Lock()
	if p.continuousOn {
		p.mu.Unlock()
		return ErrContinuousRunning
	}
	p.continuousOn = true
	p.mu.Unlock()

	if err := p.ensureBound(ctx); err != nil {
		p.mu.Lock()
		p.continuousOn = false
		p.mu.Unlock()
		return err
	}

	if interval > 0 {
		p.armContinuousTimer(interval)
	}
	return nil
}

func (p *ContinuousPinger) armContinuousTimer(interval time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.continuousTimer = p.reactor.ScheduleTimer(interval, func() {
		p.emit()
		p.armContinuousTimer(interval)
	})
	p.continuousArmed = true
}

// emit sends a single Echo Request using the next sequence number.
func (p *ContinuousPinger) emit() {
	p.mu.Lock()
	if p.sock == nil {
		p.mu.Unlock()
		return
	}
	seq := p.nextSequence
	p.nextSequence++
	codec := p.codec
	sock := p.sock
	target := p.target
	p.mu.Unlock()

	wire, err := codec.BuildProbe(seq, 0, 0)
	if err != nil {
		return
	}
	sentAt := time.Now()
	if err := sock.WriteTo(wire, target); err != nil {
		return
	}

	p.mu.Lock()
	p.table.Record(ProbeRecord{Sequence: seq, SentAt: sentAt})
	p.stats.recordSent()
	stats := p.stats.Snapshot()
	p.mu.Unlock()
	p.observer.OnStatistics(stats)
}

// PingOnce sends a single Echo Request and blocks until it is answered,
// timeout elapses, or ctx is cancelled.
func (p *ContinuousPinger) PingOnce(ctx context.Context, timeout time.Duration) (time.Duration, error) {
	p.mu.Lock()
	if p.continuousOn {
		p.mu.Unlock()
		return 0, ErrContinuousRunning
	}
	if p.singleInFlight {
		p.mu.Unlock()
		return 0, ErrAlreadyInProgress
	}
	p.singleInFlight = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.singleInFlight = false
		p.mu.Unlock()
	}()

	if err := p.ensureBound(ctx); err != nil {
		return 0, err
	}

	p.mu.Lock()
	seq := p.nextSequence
	p.nextSequence++
	codec := p.codec
	sock := p.sock
	target := p.target
	p.mu.Unlock()

	wire, err := codec.BuildProbe(seq, 0, 0)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrSystem, err)
	}

	sentAt := time.Now()
	result := make(chan time.Duration, 1)
	p.mu.Lock()
	p.table.Record(ProbeRecord{Sequence: seq, SentAt: sentAt})
	p.pendingSingle = result
	p.mu.Unlock()

	if err := sock.WriteTo(wire, target); err != nil {
		return 0, wrapSyscallError(ctx, err)
	}
	p.mu.Lock()
	p.stats.recordSent()
	p.mu.Unlock()

	deadlineCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case rtt := <-result:
		return rtt, nil
	case <-deadlineCtx.Done():
		p.mu.Lock()
		p.table.Take(seq)
		p.pendingSingle = nil
		p.stats.recordTimeout()
		stats := p.stats.Snapshot()
		p.mu.Unlock()
		p.observer.OnTimeout(seq)
		p.observer.OnStatistics(stats)
		return 0, ErrTimeout
	}
}

// handleReadable is registered with the Reactor and processes one inbound
// datagram per invocation.
func (p *ContinuousPinger) handleReadable() {
	p.mu.Lock()
	sock := p.sock
	codec := p.codec
	p.mu.Unlock()
	if sock == nil {
		return
	}

	buf := make([]byte, 1500)
	n, _, err := sock.ReadDatagram(buf)
	if err != nil {
		return
	}

	cls := codec.Classify(buf[:n])
	switch cls.Kind {
	case EchoReply:
		p.handleReply(cls.Sequence)
	case TimeExceeded, Unreachable:
		p.mu.Lock()
		p.table.Take(cls.Sequence)
		p.mu.Unlock()
		p.observer.OnUnexpected(cls.Describe(codec.family))
	}
}

func (p *ContinuousPinger) handleReply(seq uint16) {
	record, ok := p.table.Take(seq)
	if !ok {
		return
	}
	rtt := time.Since(record.SentAt)

	p.mu.Lock()
	p.stats.recordReply(rtt)
	p.latencyHistory = append(p.latencyHistory, rtt)
	if len(p.latencyHistory) > defaultLatencyHistoryCapacity {
		p.latencyHistory = p.latencyHistory[len(p.latencyHistory)-defaultLatencyHistoryCapacity:]
	}
	stats := p.stats.Snapshot()
	pending := p.pendingSingle
	p.pendingSingle = nil
	p.mu.Unlock()

	if pending != nil {
		pending <- rtt
	}
	p.observer.OnReply(seq, rtt)
	p.observer.OnStatistics(stats)
}

// LatencyHistory returns a copy of the most recent RTTs, oldest first.
func (p *ContinuousPinger) LatencyHistory() []time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]time.Duration, len(p.latencyHistory))
	copy(out, p.latencyHistory)
	return out
}

// Stop idempotently tears down continuous emission and releases the socket.
func (p *ContinuousPinger) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.continuousArmed {
		p.reactor.CancelTimer(p.continuousTimer)
		p.continuousArmed = false
	}
	p.continuousOn = false
	if p.sock != nil {
		_ = p.sock.Close()
		p.sock = nil
	}
}
