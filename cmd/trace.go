// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hoptrace/hoptrace/internal/helper"
	"github.com/hoptrace/hoptrace/internal/logger"
	"github.com/hoptrace/hoptrace/pkg"
	"github.com/hoptrace/hoptrace/pkg/reactor"
	"github.com/hoptrace/hoptrace/pkg/resolver"
	"github.com/hoptrace/hoptrace/pkg/trace"
)

// NewCmdTrace creates the "trace" subcommand, running one Session to
// completion against a single target and printing each hop as it arrives.
func NewCmdTrace() *cobra.Command {
	cfg := trace.DefaultConfig()
	var style string

	cmd := &cobra.Command{
		Use:   "trace <host>",
		Short: "Discover the network path to a host, hop by hop",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.AddressStyle = trace.AddressStyle(viper.GetString("trace.addressStyle"))
			if style != "" {
				cfg.AddressStyle = trace.AddressStyle(style)
			}
			return runTrace(cmd.Context(), args[0], cfg)
		},
	}

	cmd.Flags().Uint8Var(&cfg.MaxHops, "max-hops", cfg.MaxHops, "largest TTL to try")
	cmd.Flags().DurationVar(&cfg.PerHopTimeout, "per-hop-timeout", cfg.PerHopTimeout, "how long a hop waits for any reply")
	cmd.Flags().Uint8Var(&cfg.ProbesPerHop, "probes", cfg.ProbesPerHop, "probes sent per hop")
	cmd.Flags().DurationVar(&cfg.InterProbeGap, "inter-probe-gap", cfg.InterProbeGap, "delay between probes within a hop")
	cmd.Flags().StringVar(&style, "address-style", "", "any, v4only, or v6only")
	addTelemetryFlag(cmd)

	return cmd
}

func runTrace(ctx context.Context, hostname string, cfg trace.SessionConfig) error {
	ctx, cancel := logger.NewContextWithLogger(ctx)
	defer cancel()
	log := logger.FromContext(ctx)

	react, err := reactor.New()
	if err != nil {
		return fmt.Errorf("start reactor: %w", err)
	}
	runCtx, stopReactor := context.WithCancel(ctx)
	defer stopReactor()
	go func() {
		if err := react.Run(runCtx); err != nil {
			log.DebugContext(ctx, "reactor stopped", "error", err)
		}
	}()

	dns := resolver.New(helper.RetryConfig{Count: 2, Delay: 200 * time.Millisecond})
	done := make(chan struct{})
	console := &consoleTraceObserver{done: done}

	metricsObserver, cleanupTelemetry, err := startTelemetry(ctx, pkg.Version, hostname)
	if err != nil {
		return err
	}
	defer cleanupTelemetry()
	observer := trace.NewMultiObserver(console, metricsObserver)

	sess, err := trace.NewSession(hostname, cfg, dns, react, observer)
	if err != nil {
		return err
	}

	if err := sess.Start(ctx); err != nil {
		return err
	}

	select {
	case <-done:
	case <-ctx.Done():
		sess.Stop()
	}
	return nil
}

type consoleTraceObserver struct {
	done chan struct{}
}

func (o *consoleTraceObserver) OnStarted(address string) {
	fmt.Fprintf(os.Stdout, "tracing to %s\n", address)
}

func (o *consoleTraceObserver) OnFailed(err error) {
	fmt.Fprintf(os.Stderr, "trace failed: %v\n", err)
	close(o.done)
}

func (o *consoleTraceObserver) OnProbeSent(uint8, uint16)       {}
func (o *consoleTraceObserver) OnResponse(uint8, time.Duration) {}
func (o *consoleTraceObserver) OnHopTimeout(uint8)              {}

func (o *consoleTraceObserver) OnHopCompleted(result trace.HopResult) {
	fmt.Fprintln(os.Stdout, result.String())
}

func (o *consoleTraceObserver) OnStatistics(trace.Statistics) {}

func (o *consoleTraceObserver) OnFinished(result trace.SessionResult) {
	fmt.Fprintf(os.Stdout, "done in %s, reached target: %v\n", result.TotalTime, result.ReachedTarget)
	close(o.done)
}
