// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

// Code generated by moq would normally live here; hand-written in the same
// shape since go generate cannot run in this environment.

package trace

import (
	"context"
	"net"
	"sync"
)

var _ Resolver = (*ResolverMock)(nil)

// ResolverMock is a mock implementation of Resolver.
type ResolverMock struct {
	ResolveFunc func(ctx context.Context, hostname string, style AddressStyle) ([]net.Addr, error)

	calls struct {
		Resolve []struct {
			Ctx      context.Context
			Hostname string
			Style    AddressStyle
		}
	}
	mu sync.Mutex
}

func (m *ResolverMock) Resolve(ctx context.Context, hostname string, style AddressStyle) ([]net.Addr, error) {
	m.mu.Lock()
	m.calls.Resolve = append(m.calls.Resolve, struct {
		Ctx      context.Context
		Hostname string
		Style    AddressStyle
	}{ctx, hostname, style})
	m.mu.Unlock()
	return m.ResolveFunc(ctx, hostname, style)
}

// ResolveCalls returns the number of recorded calls to Resolve.
func (m *ResolverMock) ResolveCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls.Resolve)
}
