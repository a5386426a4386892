// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package trace

import (
	"context"
	"net"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hoptrace/hoptrace/internal/logger"
)

// hopController drives one hop at a time: sending ProbesPerHop Echo
// Requests at the current TTL/hop limit, arming a single timeout, and
// deciding whether a classified reply advances, finishes, or is dropped.
// It owns no I/O of its own; sendProbe, setTTL, onHop, onFinish, and onFatal
// are injected by Session so hopController stays free of socket concerns.
//
// Each hop is wrapped in its own OpenTelemetry span, opened in EnterHop and
// closed wherever the hop concludes: a matched reply, a timeout, or a fatal
// error.
type hopController struct {
	cfg      SessionConfig
	codec    *codec
	table    *probeTable
	stats    *statisticsAccumulator
	observer Observer
	reactor  Reactor

	ctx        context.Context
	otelTracer trace.Tracer

	sendProbe func(wire []byte) error
	setTTL    func(hops int) error
	onHop     func(HopResult)
	onFinish  func(reachedTarget bool)
	onFatal   func(error)

	currentHop   uint8
	nextSequence uint16
	hopStartedAt time.Time
	hopSpan      trace.Span
	timer        TimerHandle
	timerArmed   bool
}

func newHopController(ctx context.Context, tracer trace.Tracer, cfg SessionConfig, c *codec, table *probeTable, stats *statisticsAccumulator, observer Observer, reactor Reactor) *hopController {
	return &hopController{
		cfg:        cfg,
		codec:      c,
		table:      table,
		stats:      stats,
		observer:   observer,
		reactor:    reactor,
		ctx:        ctx,
		otelTracer: tracer,
	}
}

// endHopSpan closes the span opened for the hop currently in flight, if any,
// recording status before it is replaced or the controller finishes.
func (hc *hopController) endHopSpan(err error) {
	if hc.hopSpan == nil {
		return
	}
	if err != nil {
		hc.hopSpan.RecordError(err)
		hc.hopSpan.SetStatus(codes.Error, err.Error())
	}
	hc.hopSpan.End()
	hc.hopSpan = nil
}

// EnterHop implements §4.3 "Enter hop h": sets TTL, sends ProbesPerHop
// probes with the configured inter-probe gap, and arms the per-hop timer.
// If h exceeds MaxHops the session finishes without having reached the
// target.
func (hc *hopController) EnterHop(h uint8) {
	if h > hc.cfg.MaxHops {
		hc.onFinish(false)
		return
	}

	hc.currentHop = h
	hc.hopStartedAt = time.Now()

	_, hc.hopSpan = hc.otelTracer.Start(hc.ctx, "hop", trace.WithAttributes(
		attribute.Int("hoptrace.hop.number", int(h)),
	))

	if err := hc.setTTL(int(h)); err != nil {
		hc.endHopSpan(err)
		hc.onFatal(err)
		return
	}

	sent := 0
	for probeIndex := uint8(0); probeIndex < hc.cfg.ProbesPerHop; probeIndex++ {
		seq := hc.nextSequence
		hc.nextSequence++

		wire, err := hc.codec.BuildProbe(seq, h, probeIndex)
		if err != nil {
			continue
		}

		sentAt := time.Now()
		if err := hc.sendProbe(wire); err != nil {
			logger.FromContext(hc.ctx).WarnContext(hc.ctx, "probe send failed", "hop", h, "sequence", seq, "error", err)
			continue
		}

		hc.table.Record(ProbeRecord{Sequence: seq, Hop: h, ProbeIndex: probeIndex, SentAt: sentAt})
		hc.stats.recordSent()
		hc.observer.OnStatistics(hc.stats.Snapshot())
		hc.observer.OnProbeSent(h, seq)
		sent++

		if hc.cfg.InterProbeGap > 0 {
			time.Sleep(hc.cfg.InterProbeGap)
		}
	}

	if sent == 0 {
		hc.endHopSpan(ErrNetwork)
		hc.onFatal(ErrNetwork)
		return
	}

	hc.hopSpan.AddEvent("probes sent", trace.WithAttributes(attribute.Int("hoptrace.probes.sent", sent)))

	hc.armTimer(h)
}

func (hc *hopController) armTimer(h uint8) {
	hc.timer = hc.reactor.ScheduleTimer(hc.cfg.PerHopTimeout, func() {
		hc.onTimerFire(h)
	})
	hc.timerArmed = true
}

func (hc *hopController) cancelTimer() {
	if hc.timerArmed {
		hc.reactor.CancelTimer(hc.timer)
		hc.timerArmed = false
	}
}

// HandleClassification implements §4.3 "On classified reply for hop h'".
// Only EchoReply, TimeExceeded, and Unreachable classifications carry a
// sequence worth matching; Other and Malformed are dropped by the caller
// before this is reached.
func (hc *hopController) HandleClassification(cls Classification, from net.Addr) {
	record, ok := hc.table.Take(cls.Sequence)
	if !ok {
		return
	}

	// The open question on late replies after advancement (§9) is resolved
	// in favor of property 3 (non-decreasing hop numbers): once the
	// controller has moved past a hop, further matches for it are dropped.
	if record.Hop != hc.currentHop {
		return
	}

	now := time.Now()
	rtt := now.Sub(record.SentAt)

	if hc.hopSpan != nil && from != nil {
		hc.hopSpan.SetAttributes(attribute.Stringer("hoptrace.hop.router", from))
	}

	switch cls.Kind {
	case EchoReply:
		hc.stats.recordReply(rtt)
		hc.observer.OnStatistics(hc.stats.Snapshot())
		hc.observer.OnResponse(record.Hop, rtt)
		hc.cancelTimer()
		hc.endHopSpan(nil)
		hc.onHop(HopResult{
			HopNumber:     record.Hop,
			Router:        from,
			RTT:           rtt,
			IsDestination: true,
			Sequence:      cls.Sequence,
			ProbeIndex:    record.ProbeIndex,
			ObservedAt:    now,
		})
		hc.onFinish(true)

	case TimeExceeded:
		hc.stats.recordReply(rtt)
		hc.observer.OnStatistics(hc.stats.Snapshot())
		hc.observer.OnResponse(record.Hop, rtt)
		hc.cancelTimer()
		hc.endHopSpan(nil)
		hc.onHop(HopResult{
			HopNumber:  record.Hop,
			Router:     from,
			RTT:        rtt,
			Sequence:   cls.Sequence,
			ProbeIndex: record.ProbeIndex,
			ObservedAt: now,
		})
		hc.EnterHop(record.Hop + 1)

	case Unreachable:
		hc.stats.recordUnreachable()
		hc.observer.OnStatistics(hc.stats.Snapshot())
		hc.observer.OnResponse(record.Hop, rtt)
		hc.cancelTimer()
		hc.endHopSpan(ErrNetwork)
		hc.onHop(HopResult{
			HopNumber:  record.Hop,
			Router:     from,
			RTT:        rtt,
			Sequence:   cls.Sequence,
			ProbeIndex: record.ProbeIndex,
			ObservedAt: now,
		})
		hc.EnterHop(record.Hop + 1)
	}
}

// onTimerFire implements §4.3 "On timer fire for hop h".
func (hc *hopController) onTimerFire(h uint8) {
	if h != hc.currentHop {
		return
	}
	hc.timerArmed = false

	outstanding := hc.table.CollectForHop(h)
	hc.table.Sweep(time.Now().Add(-2 * hc.cfg.PerHopTimeout))
	if len(outstanding) > 0 {
		first := outstanding[0]
		hc.stats.recordTimeout()
		hc.observer.OnStatistics(hc.stats.Snapshot())
		hc.observer.OnHopTimeout(h)
		hc.endHopSpan(ErrTimeout)
		hc.onHop(HopResult{
			HopNumber:  h,
			RTT:        time.Since(first.SentAt),
			IsTimeout:  true,
			Sequence:   first.Sequence,
			ProbeIndex: first.ProbeIndex,
			ObservedAt: time.Now(),
		})
	}

	hc.endHopSpan(nil)
	hc.EnterHop(h + 1)
}
