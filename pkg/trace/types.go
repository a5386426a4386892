// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package trace

import (
	"encoding/json"
	"fmt"
	"net"
	"time"
)

// AddrFamily selects between the IPv4 and IPv6 wire formats and socket
// options used by the codec and the socket layer.
type AddrFamily int

const (
	// FamilyV4 selects ICMPv4 Echo (type 8/0) and IP_TTL.
	FamilyV4 AddrFamily = iota
	// FamilyV6 selects ICMPv6 Echo (type 128/129) and IPV6_UNICAST_HOPS.
	FamilyV6
)

func (f AddrFamily) String() string {
	switch f {
	case FamilyV4:
		return "ipv4"
	case FamilyV6:
		return "ipv6"
	default:
		return "unknown"
	}
}

// AddressStyle constrains which address families the Resolver may return.
type AddressStyle string

const (
	// StyleAny accepts either an IPv4 or an IPv6 address, preferring
	// whichever the Resolver returns first.
	StyleAny AddressStyle = "any"
	// StyleV4Only rejects IPv6 results.
	StyleV4Only AddressStyle = "v4only"
	// StyleV6Only rejects IPv4 results.
	StyleV6Only AddressStyle = "v6only"
)

func (s AddressStyle) isValid() bool {
	switch s {
	case StyleAny, StyleV4Only, StyleV6Only:
		return true
	default:
		return false
	}
}

// accepts reports whether an address of the given family satisfies this style.
func (s AddressStyle) accepts(f AddrFamily) bool {
	switch s {
	case StyleV4Only:
		return f == FamilyV4
	case StyleV6Only:
		return f == FamilyV6
	default:
		return true
	}
}

const (
	minMaxHops       = 1
	maxMaxHops       = 255
	defaultMaxHops   = 30
	maxPerHopTimeout = 60 * time.Second
	defaultTimeout   = 5 * time.Second
	minProbesPerHop  = 1
	maxProbesPerHop  = 10
	defaultProbes    = 3
	defaultGap       = 10 * time.Millisecond
)

// SessionConfig configures a Session's traceroute behavior.
type SessionConfig struct {
	// MaxHops is the largest TTL/hop-limit the session will try, in [1,255].
	MaxHops uint8 `json:"maxHops" yaml:"maxHops" mapstructure:"maxHops"`
	// PerHopTimeout bounds how long a hop waits for any reply, in (0, 60s].
	PerHopTimeout time.Duration `json:"perHopTimeout" yaml:"perHopTimeout" mapstructure:"perHopTimeout"`
	// ProbesPerHop is how many Echo Requests are sent per hop, in [1,10].
	ProbesPerHop uint8 `json:"probesPerHop" yaml:"probesPerHop" mapstructure:"probesPerHop"`
	// InterProbeGap is the fixed delay between probes within a hop.
	InterProbeGap time.Duration `json:"interProbeGap" yaml:"interProbeGap" mapstructure:"interProbeGap"`
	// AddressStyle constrains the resolved address family.
	AddressStyle AddressStyle `json:"addressStyle" yaml:"addressStyle" mapstructure:"addressStyle"`
}

// DefaultConfig returns the recommended SessionConfig defaults: 30 max
// hops, a 5s per-hop timeout, 3 probes per hop, a 10ms inter-probe gap, and
// no address family preference.
func DefaultConfig() SessionConfig {
	return SessionConfig{
		MaxHops:       defaultMaxHops,
		PerHopTimeout: defaultTimeout,
		ProbesPerHop:  defaultProbes,
		InterProbeGap: defaultGap,
		AddressStyle:  StyleAny,
	}
}

// Validate checks the configuration against the bounds in §6, returning a
// ConfigError (wrapping ErrInvalidConfiguration) for the first violation.
func (c SessionConfig) Validate() error {
	if c.MaxHops < minMaxHops {
		return ConfigError{Field: "maxHops", Reason: "must be at least 1"}
	}
	if c.PerHopTimeout <= 0 {
		return ConfigError{Field: "perHopTimeout", Reason: "must be greater than 0"}
	}
	if c.PerHopTimeout > maxPerHopTimeout {
		return ConfigError{Field: "perHopTimeout", Reason: "must be at most 60s"}
	}
	if c.ProbesPerHop < minProbesPerHop || c.ProbesPerHop > maxProbesPerHop {
		return ConfigError{Field: "probesPerHop", Reason: "must be between 1 and 10"}
	}
	if c.AddressStyle != "" && !c.AddressStyle.isValid() {
		return ConfigError{Field: "addressStyle", Reason: "must be any, v4only or v6only"}
	}
	return nil
}

// ProbeRecord is the bookkeeping kept for one outstanding probe.
type ProbeRecord struct {
	Sequence   uint16
	Hop        uint8
	ProbeIndex uint8
	SentAt     time.Time
}

// HopResult is emitted exactly once per reply, or once per set of timed-out
// probes for a hop. It is never mutated after emission.
type HopResult struct {
	HopNumber     uint8
	Router        net.Addr
	RTT           time.Duration
	IsDestination bool
	IsTimeout     bool
	Sequence      uint16
	ProbeIndex    uint8
	ObservedAt    time.Time
}

func (h HopResult) routerString() string {
	if h.Router == nil {
		return "*"
	}
	return h.Router.String()
}

func (h HopResult) String() string {
	switch {
	case h.IsTimeout:
		return fmt.Sprintf("%-3d  *  (timeout after %s)", h.HopNumber, h.RTT)
	case h.IsDestination:
		return fmt.Sprintf("%-3d  %s  %s  (reached)", h.HopNumber, h.routerString(), h.RTT)
	default:
		return fmt.Sprintf("%-3d  %s  %s", h.HopNumber, h.routerString(), h.RTT)
	}
}

// MarshalJSON renders HopResult with a textual router address and duration,
// presenting latency and the router address as strings for readability.
func (h HopResult) MarshalJSON() ([]byte, error) {
	type alias struct {
		Router        string `json:"router"`
		RTT           string `json:"rtt"`
		HopNumber     uint8  `json:"hopNumber"`
		IsDestination bool   `json:"isDestination"`
		IsTimeout     bool   `json:"isTimeout"`
		Sequence      uint16 `json:"sequence"`
		ProbeIndex    uint8  `json:"probeIndex"`
		ObservedAt    string `json:"observedAt"`
	}
	return json.Marshal(alias{
		Router:        h.routerString(),
		RTT:           h.RTT.String(),
		HopNumber:     h.HopNumber,
		IsDestination: h.IsDestination,
		IsTimeout:     h.IsTimeout,
		Sequence:      h.Sequence,
		ProbeIndex:    h.ProbeIndex,
		ObservedAt:    h.ObservedAt.Format(time.RFC3339Nano),
	})
}

// SessionResult is the terminal outcome of a traceroute.
type SessionResult struct {
	TargetHostname string
	TargetAddress  string
	MaxHops        uint8
	ActualHops     uint8
	TotalTime      time.Duration
	Hops           []HopResult
	ReachedTarget  bool
	Statistics     Statistics
}
