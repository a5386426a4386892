// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package trace

import (
	"context"
	"net"
	"time"
)

// TimerHandle identifies a timer scheduled through a Reactor, opaque to the
// engine beyond being passed back to CancelTimer.
type TimerHandle uint64

// Reactor is the single-goroutine scheduling primitive the engine runs on.
// Every Observer callback, timer firing, and socket-readable callback for a
// given Session is dispatched serially through one Reactor (§5).
//
//go:generate go tool moq -out reactor_moq_test.go . Reactor
type Reactor interface {
	// RegisterReadable arranges for callback to run, on the reactor
	// goroutine, whenever fd has data available to read. It returns an
	// error if the descriptor cannot be watched.
	RegisterReadable(fd uintptr, callback func()) error
	// ScheduleTimer arranges for callback to run, on the reactor goroutine,
	// after delay elapses.
	ScheduleTimer(delay time.Duration, callback func()) TimerHandle
	// CancelTimer prevents a previously scheduled timer from firing, if it
	// has not already fired.
	CancelTimer(handle TimerHandle)
}

// Resolver resolves a hostname into candidate addresses. The core chooses
// the first entry compatible with style (§6).
//
//go:generate go tool moq -out resolver_moq_test.go . Resolver
type Resolver interface {
	Resolve(ctx context.Context, hostname string, style AddressStyle) ([]net.Addr, error)
}

// Observer receives every externally visible event a Session or
// ContinuousPinger produces. All methods fire on the reactor goroutine;
// implementations MUST NOT block or re-enter the session (§5).
//
//go:generate go tool moq -out observer_moq_test.go . Observer
type Observer interface {
	// OnStarted reports that the session has a bound socket for address.
	OnStarted(address string)
	// OnFailed reports a terminal failure; no further events follow.
	OnFailed(err error)
	// OnProbeSent is an informational event fired after each probe send.
	OnProbeSent(hop uint8, sequence uint16)
	// OnResponse is an informational event fired for every matched reply.
	OnResponse(hop uint8, rtt time.Duration)
	// OnHopTimeout is an informational event fired when a hop's deadline
	// elapses with at least one outstanding probe.
	OnHopTimeout(hop uint8)
	// OnHopCompleted is the authoritative per-hop result.
	OnHopCompleted(result HopResult)
	// OnStatistics fires after ProbesSent, ResponsesReceived, or Timeouts changes.
	OnStatistics(stats Statistics)
	// OnFinished reports terminal success.
	OnFinished(result SessionResult)
}
