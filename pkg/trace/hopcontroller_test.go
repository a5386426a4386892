// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package trace

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
)

type hopControllerHarness struct {
	hc       *hopController
	reactor  *fakeReactor
	observer *ObserverMock

	sentWire  [][]byte
	ttlCalls  []int
	hopEvents []HopResult
	finished  []bool
	fatal     []error
}

func newHopControllerHarness(cfg SessionConfig) *hopControllerHarness {
	h := &hopControllerHarness{
		reactor:  newFakeReactor(),
		observer: &ObserverMock{},
	}
	hc := newHopController(context.Background(), noop.NewTracerProvider().Tracer("test"), cfg, newCodec(FamilyV4, 0x1234, true), newProbeTable(), newStatisticsAccumulator(), h.observer, h.reactor)
	hc.sendProbe = func(wire []byte) error {
		h.sentWire = append(h.sentWire, wire)
		return nil
	}
	hc.setTTL = func(hops int) error {
		h.ttlCalls = append(h.ttlCalls, hops)
		return nil
	}
	hc.onHop = func(r HopResult) {
		h.hopEvents = append(h.hopEvents, r)
	}
	hc.onFinish = func(reached bool) {
		h.finished = append(h.finished, reached)
	}
	hc.onFatal = func(err error) {
		h.fatal = append(h.fatal, err)
	}
	h.hc = hc
	return h
}

func baseTestConfig() SessionConfig {
	return SessionConfig{
		MaxHops:       5,
		PerHopTimeout: time.Second,
		ProbesPerHop:  2,
		InterProbeGap: 0,
		AddressStyle:  StyleAny,
	}
}

func TestHopController_EnterHop_SendsProbesAndArmsTimer(t *testing.T) {
	h := newHopControllerHarness(baseTestConfig())
	h.hc.EnterHop(1)

	assert.Equal(t, []int{1}, h.ttlCalls)
	assert.Len(t, h.sentWire, 2)
	assert.Equal(t, 2, h.hc.table.Len())
	assert.True(t, h.hc.timerArmed)
	assert.Len(t, h.observer.ProbesSent, 2)
}

func TestHopController_EnterHop_ExceedsMaxHops(t *testing.T) {
	h := newHopControllerHarness(baseTestConfig())
	h.hc.currentHop = 5
	h.hc.EnterHop(6)

	assert.Equal(t, []bool{false}, h.finished)
	assert.Empty(t, h.sentWire)
}

func TestHopController_EchoReply_FinishesSession(t *testing.T) {
	h := newHopControllerHarness(baseTestConfig())
	h.hc.EnterHop(3)
	rec, ok := h.hc.table.records[0]
	require.True(t, ok)

	from := &net.IPAddr{IP: net.ParseIP("93.184.216.34")}
	h.hc.HandleClassification(Classification{Kind: EchoReply, Sequence: rec.Sequence}, from)

	require.Len(t, h.hopEvents, 1)
	assert.True(t, h.hopEvents[0].IsDestination)
	assert.Equal(t, uint8(3), h.hopEvents[0].HopNumber)
	assert.Equal(t, []bool{true}, h.finished)
	assert.True(t, h.reactor.IsCancelled(h.hc.timer))
}

func TestHopController_TimeExceeded_AdvancesHop(t *testing.T) {
	h := newHopControllerHarness(baseTestConfig())
	h.hc.EnterHop(1)
	rec := h.hc.table.records[0]

	from := &net.IPAddr{IP: net.ParseIP("10.0.0.1")}
	h.hc.HandleClassification(Classification{Kind: TimeExceeded, Sequence: rec.Sequence}, from)

	require.Len(t, h.hopEvents, 1)
	assert.False(t, h.hopEvents[0].IsDestination)
	assert.Equal(t, uint8(2), h.hc.currentHop, "controller advanced to the next hop")
	assert.Equal(t, []int{1, 2}, h.ttlCalls)
}

func TestHopController_Unreachable_AdvancesHop(t *testing.T) {
	h := newHopControllerHarness(baseTestConfig())
	h.hc.EnterHop(1)
	rec := h.hc.table.records[0]

	h.hc.HandleClassification(Classification{Kind: Unreachable, Sequence: rec.Sequence, Code: 1}, nil)

	require.Len(t, h.hopEvents, 1)
	assert.Equal(t, uint8(2), h.hc.currentHop)
}

func TestHopController_LateReplyAfterAdvance_IsDropped(t *testing.T) {
	h := newHopControllerHarness(baseTestConfig())
	h.hc.EnterHop(1)

	var seqs []uint16
	for seq := range h.hc.table.records {
		seqs = append(seqs, seq)
	}
	require.Len(t, seqs, 2)

	// Advance past hop 1 using the first probe's reply.
	h.hc.HandleClassification(Classification{Kind: TimeExceeded, Sequence: seqs[0]}, nil)
	require.Equal(t, uint8(2), h.hc.currentHop)
	eventsAfterAdvance := len(h.hopEvents)

	// The remaining hop-1 probe is still outstanding; it was never removed
	// by CollectForHop, so a late reply for it still matches a record, but
	// that record's hop no longer equals currentHop.
	h.hc.HandleClassification(Classification{Kind: TimeExceeded, Sequence: seqs[1]}, nil)

	assert.Len(t, h.hopEvents, eventsAfterAdvance, "late reply for an already-advanced hop produces no event")
}

func TestHopController_UnmatchedSequence_IsDropped(t *testing.T) {
	h := newHopControllerHarness(baseTestConfig())
	h.hc.EnterHop(1)
	h.hc.HandleClassification(Classification{Kind: EchoReply, Sequence: 0xFFFF}, nil)

	assert.Empty(t, h.hopEvents)
	assert.Empty(t, h.finished)
}

func TestHopController_TimerFire_WithOutstandingProbes_EmitsTimeout(t *testing.T) {
	h := newHopControllerHarness(baseTestConfig())
	h.hc.EnterHop(1)

	h.hc.onTimerFire(1)

	require.Len(t, h.hopEvents, 1)
	assert.True(t, h.hopEvents[0].IsTimeout)
	assert.Equal(t, uint8(1), h.hopEvents[0].HopNumber)
	assert.Equal(t, uint8(2), h.hc.currentHop)
	assert.Len(t, h.observer.HopTimeouts, 1)
}

func TestHopController_TimerFire_AllProbesAlreadyAnswered_NoTimeoutEvent(t *testing.T) {
	cfg := baseTestConfig()
	cfg.ProbesPerHop = 1
	h := newHopControllerHarness(cfg)
	h.hc.EnterHop(1)
	rec := h.hc.table.records[0]

	h.hc.HandleClassification(Classification{Kind: TimeExceeded, Sequence: rec.Sequence}, nil)
	eventsBeforeTimer := len(h.hopEvents)

	// The stale timer for hop 1 fires after the controller already advanced.
	h.hc.onTimerFire(1)

	assert.Len(t, h.hopEvents, eventsBeforeTimer, "a timer for a hop that already advanced is ignored")
}

func TestHopController_AllProbesFailToSend_IsFatal(t *testing.T) {
	h := newHopControllerHarness(baseTestConfig())
	h.hc.sendProbe = func([]byte) error { return assertErrBoom }
	h.hc.EnterHop(1)

	assert.Len(t, h.fatal, 1)
}

var assertErrBoom = &net.OpError{Op: "write", Err: net.UnknownNetworkError("boom")}
