// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package trace

import "time"

// multiObserver fans every Observer event out to a fixed set of delegates,
// in order, so a Session can drive a console reporter and a metrics
// reporter from the same set of callbacks without either knowing about the
// other.
type multiObserver struct {
	delegates []Observer
}

// NewMultiObserver combines delegates into a single Observer.
func NewMultiObserver(delegates ...Observer) Observer {
	return &multiObserver{delegates: delegates}
}

func (m *multiObserver) OnStarted(address string) {
	for _, d := range m.delegates {
		d.OnStarted(address)
	}
}

func (m *multiObserver) OnFailed(err error) {
	for _, d := range m.delegates {
		d.OnFailed(err)
	}
}

func (m *multiObserver) OnProbeSent(hop uint8, sequence uint16) {
	for _, d := range m.delegates {
		d.OnProbeSent(hop, sequence)
	}
}

func (m *multiObserver) OnResponse(hop uint8, rtt time.Duration) {
	for _, d := range m.delegates {
		d.OnResponse(hop, rtt)
	}
}

func (m *multiObserver) OnHopTimeout(hop uint8) {
	for _, d := range m.delegates {
		d.OnHopTimeout(hop)
	}
}

func (m *multiObserver) OnHopCompleted(result HopResult) {
	for _, d := range m.delegates {
		d.OnHopCompleted(result)
	}
}

func (m *multiObserver) OnStatistics(stats Statistics) {
	for _, d := range m.delegates {
		d.OnStatistics(stats)
	}
}

func (m *multiObserver) OnFinished(result SessionResult) {
	for _, d := range m.delegates {
		d.OnFinished(result)
	}
}

// multiPingObserver is NewMultiObserver's counterpart for PingObserver.
type multiPingObserver struct {
	delegates []PingObserver
}

// NewMultiPingObserver combines delegates into a single PingObserver.
func NewMultiPingObserver(delegates ...PingObserver) PingObserver {
	return &multiPingObserver{delegates: delegates}
}

func (m *multiPingObserver) OnReply(sequence uint16, rtt time.Duration) {
	for _, d := range m.delegates {
		d.OnReply(sequence, rtt)
	}
}

func (m *multiPingObserver) OnTimeout(sequence uint16) {
	for _, d := range m.delegates {
		d.OnTimeout(sequence)
	}
}

func (m *multiPingObserver) OnUnexpected(description string) {
	for _, d := range m.delegates {
		d.OnUnexpected(description)
	}
}

func (m *multiPingObserver) OnStatistics(stats Statistics) {
	for _, d := range m.delegates {
		d.OnStatistics(stats)
	}
}
