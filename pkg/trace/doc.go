// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

// Package trace implements an ICMP Echo based traceroute and continuous-ping
// engine. Given a resolved address, a Session sends Echo Request probes with
// progressively larger TTL/hop-limit values and correlates the ICMP Time
// Exceeded and Echo Reply messages that come back to the probes that
// provoked them.
//
// The package deliberately does not perform DNS resolution or own an event
// loop: callers supply a Resolver that turns a hostname into candidate
// addresses and a Reactor that notifies the Session when its socket is
// readable or a timer has fired. This keeps the engine runnable against a
// fake Reactor/Resolver pair in tests, and lets a caller share one reactor
// across many concurrent sessions.
//
// Key features:
//   - Pure-Go ICMPv4/ICMPv6 Echo codec, including the RFC 1071 checksum and
//     the outer/inner IP header detection needed to read raw and
//     unprivileged-datagram ICMP sockets interchangeably
//   - A bounded probe table that survives unbounded packet loss without
//     leaking memory
//   - "Fast" per-hop progression: the first reply for a hop advances the
//     trace without waiting out remaining probes for that hop
//   - A ContinuousPinger sharing the same codec and probe table for
//     fixed-TTL, periodic pings
//   - Built-in OpenTelemetry spans per hop and Prometheus collectors for
//     sent/received/timeout counters and RTT
//
// Typical usage:
//
//	sess, err := trace.NewSession("example.com", trace.DefaultConfig(), resolver.New(cfg), react, observer)
//	if err != nil { ... }
//	if err := sess.Start(ctx); err != nil { ... }
//	// observer.OnHopCompleted / OnFinished report progress and the result
package trace
