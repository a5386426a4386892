// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/hoptrace/hoptrace/internal/logger"
	"github.com/hoptrace/hoptrace/pkg/telemetry"
	"github.com/hoptrace/hoptrace/pkg/trace"
)

var metricsAddr string

// addTelemetryFlag registers the --metrics-addr flag shared by trace and ping.
func addTelemetryFlag(cmd *cobra.Command) {
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "if set, serve Prometheus metrics on this address (e.g. :9090)")
}

// startTelemetry initializes tracing and, if metricsAddr is set, starts a
// /metrics HTTP server and registers a per-target Metrics collector set.
// The returned Observer should be composed into the Session/ContinuousPinger
// observer via trace.NewMultiObserver; the returned cleanup func must run
// before the process exits.
func startTelemetry(ctx context.Context, version, target string) (trace.Observer, func(), error) {
	m, cleanup, err := startTelemetryCore(ctx, version, target)
	if err != nil {
		return nil, nil, err
	}
	return m.NewObserver(target), cleanup, nil
}

// startPingTelemetry is startTelemetry's counterpart for ContinuousPinger,
// which is driven by a PingObserver rather than an Observer.
func startPingTelemetry(ctx context.Context, version, target string) (trace.PingObserver, func(), error) {
	m, cleanup, err := startTelemetryCore(ctx, version, target)
	if err != nil {
		return nil, nil, err
	}
	return m.NewPingObserver(target), cleanup, nil
}

func startTelemetryCore(ctx context.Context, version, target string) (*trace.Metrics, func(), error) {
	log := logger.FromContext(ctx)
	mgr := telemetry.New()

	if err := mgr.InitTracing(ctx, version); err != nil {
		log.WarnContext(ctx, "tracing disabled", "error", err)
	}

	m := trace.NewMetrics()
	var server *http.Server
	if metricsAddr != "" {
		mgr.GetRegistry().MustRegister(m.GetCollectors()...)
		mux := http.NewServeMux()
		mux.Handle("/metrics", mgr.Handler())
		server = &http.Server{Addr: metricsAddr, Handler: mux}
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.ErrorContext(ctx, "metrics server stopped", "error", err)
			}
		}()
		log.InfoContext(ctx, "serving metrics", "addr", metricsAddr)
	}

	cleanup := func() {
		if server != nil {
			_ = server.Close()
			m.Remove(target)
		}
		_ = mgr.Shutdown(ctx)
	}
	return m, cleanup, nil
}
