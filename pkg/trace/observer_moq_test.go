// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

// Code generated by moq would normally live here; this hand-written mock
// records every event in exported slices instead of moq's *Func fields.

package trace

import (
	"sync"
	"time"
)

var _ Observer = (*ObserverMock)(nil)

// ObserverMock records every event it receives, in arrival order, for
// assertions in hopController/Session/ContinuousPinger tests.
type ObserverMock struct {
	mu sync.Mutex

	StartedAddresses []string
	FailedErrors     []error
	ProbesSent       []struct {
		Hop      uint8
		Sequence uint16
	}
	Responses []struct {
		Hop uint8
		RTT time.Duration
	}
	HopTimeouts  []uint8
	HopResults   []HopResult
	Statistics   []Statistics
	FinishedWith []SessionResult
}

func (m *ObserverMock) OnStarted(address string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StartedAddresses = append(m.StartedAddresses, address)
}

func (m *ObserverMock) OnFailed(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FailedErrors = append(m.FailedErrors, err)
}

func (m *ObserverMock) OnProbeSent(hop uint8, sequence uint16) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ProbesSent = append(m.ProbesSent, struct {
		Hop      uint8
		Sequence uint16
	}{hop, sequence})
}

func (m *ObserverMock) OnResponse(hop uint8, rtt time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Responses = append(m.Responses, struct {
		Hop uint8
		RTT time.Duration
	}{hop, rtt})
}

func (m *ObserverMock) OnHopTimeout(hop uint8) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.HopTimeouts = append(m.HopTimeouts, hop)
}

func (m *ObserverMock) OnHopCompleted(result HopResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.HopResults = append(m.HopResults, result)
}

func (m *ObserverMock) OnStatistics(stats Statistics) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Statistics = append(m.Statistics, stats)
}

func (m *ObserverMock) OnFinished(result SessionResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FinishedWith = append(m.FinishedWith, result)
}
