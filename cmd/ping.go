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

	"github.com/hoptrace/hoptrace/internal/helper"
	"github.com/hoptrace/hoptrace/internal/logger"
	"github.com/hoptrace/hoptrace/pkg"
	"github.com/hoptrace/hoptrace/pkg/reactor"
	"github.com/hoptrace/hoptrace/pkg/resolver"
	"github.com/hoptrace/hoptrace/pkg/trace"
)

// NewCmdPing creates the "ping" subcommand: either a fixed number of
// individually-timed probes (--count > 0) or a continuous stream until
// interrupted.
func NewCmdPing() *cobra.Command {
	var count int
	var interval time.Duration
	var timeout time.Duration
	var style string

	cmd := &cobra.Command{
		Use:   "ping <host>",
		Short: "Send ICMP Echo Requests to a single resolved address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPing(cmd.Context(), args[0], trace.AddressStyle(style), count, interval, timeout)
		},
	}

	cmd.Flags().IntVar(&count, "count", 4, "number of probes to send (0 for continuous)")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "delay between probes")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Second, "per-probe reply deadline")
	cmd.Flags().StringVar(&style, "address-style", string(trace.StyleAny), "any, v4only, or v6only")
	addTelemetryFlag(cmd)

	return cmd
}

func runPing(ctx context.Context, hostname string, style trace.AddressStyle, count int, interval, timeout time.Duration) error {
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
	console := &consolePingObserver{}

	metricsObserver, cleanupTelemetry, err := startPingTelemetry(ctx, pkg.Version, hostname)
	if err != nil {
		return err
	}
	defer cleanupTelemetry()
	observer := trace.NewMultiPingObserver(console, metricsObserver)

	pinger := trace.NewContinuousPinger(hostname, style, dns, react, observer)
	defer pinger.Stop()

	if count > 0 {
		for i := 0; i < count; i++ {
			rtt, err := pinger.PingOnce(ctx, timeout)
			if err != nil {
				fmt.Fprintf(os.Stdout, "request %d: %v\n", i, err)
			} else {
				fmt.Fprintf(os.Stdout, "request %d: rtt=%s\n", i, rtt)
			}
			if i < count-1 {
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(interval):
				}
			}
		}
		return nil
	}

	if err := pinger.Ping(ctx, interval); err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}

type consolePingObserver struct{}

func (o *consolePingObserver) OnReply(sequence uint16, rtt time.Duration) {
	fmt.Fprintf(os.Stdout, "seq=%d rtt=%s\n", sequence, rtt)
}

func (o *consolePingObserver) OnTimeout(sequence uint16) {
	fmt.Fprintf(os.Stdout, "seq=%d timeout\n", sequence)
}

func (o *consolePingObserver) OnUnexpected(description string) {
	fmt.Fprintf(os.Stdout, "unexpected: %s\n", description)
}

func (o *consolePingObserver) OnStatistics(trace.Statistics) {}
