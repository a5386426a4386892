// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

// Package resolver provides the production trace.Resolver implementation,
// backed by net.DefaultResolver with retried lookups exactly as
// internal/helper.Retry wraps other flaky effectors in the engine.
package resolver

import (
	"context"
	"fmt"
	"net"

	"github.com/hoptrace/hoptrace/internal/helper"
	"github.com/hoptrace/hoptrace/internal/logger"
	"github.com/hoptrace/hoptrace/pkg/trace"
)

// DNSResolver resolves hostnames via the standard library resolver, retrying
// transient failures with exponential backoff.
type DNSResolver struct {
	resolver *net.Resolver
	retry    helper.RetryConfig
}

// New constructs a DNSResolver. A zero RetryConfig disables retries: the
// first failure is returned immediately.
func New(retry helper.RetryConfig) *DNSResolver {
	return &DNSResolver{resolver: net.DefaultResolver, retry: retry}
}

var _ trace.Resolver = (*DNSResolver)(nil)

// Resolve looks up hostname and returns every address compatible with style,
// in the order net.Resolver.LookupIPAddr returned them.
func (d *DNSResolver) Resolve(ctx context.Context, hostname string, style trace.AddressStyle) ([]net.Addr, error) {
	var ips []net.IPAddr
	effector := func(ctx context.Context) error {
		log := logger.FromContext(ctx)
		result, err := d.resolver.LookupIPAddr(ctx, hostname)
		if err != nil {
			return err
		}
		log.DebugContext(ctx, "resolved hostname", "hostname", hostname, "count", len(result))
		ips = result
		return nil
	}

	if err := helper.Retry(effector, d.retry)(ctx); err != nil {
		return nil, fmt.Errorf("lookup %q: %w", hostname, err)
	}

	addrs := make([]net.Addr, 0, len(ips))
	for _, ip := range ips {
		if filterByStyle(ip.IP, style) {
			addrs = append(addrs, &net.IPAddr{IP: ip.IP, Zone: ip.Zone})
		}
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("no address for %q compatible with style %q", hostname, style)
	}
	return addrs, nil
}

func filterByStyle(ip net.IP, style trace.AddressStyle) bool {
	isV4 := ip.To4() != nil
	switch style {
	case trace.StyleV4Only:
		return isV4
	case trace.StyleV6Only:
		return !isV4
	default:
		return true
	}
}
