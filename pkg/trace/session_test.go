// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package trace

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// loopbackPair opens two UDP loopback sockets: the first stands in for the
// session's probe socket, the second for the "remote" peer the test drives
// directly, writing crafted ICMP-shaped bytes and reading what the session
// sends.
func loopbackPair(t *testing.T) (sessionConn, peerConn net.PacketConn) {
	t.Helper()
	a, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	b, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return a, b
}

func newTestSession(t *testing.T, cfg SessionConfig) (*Session, *fakeReactor, *ObserverMock, net.PacketConn) {
	t.Helper()
	sessionConn, peerConn := loopbackPair(t)

	resolver := &ResolverMock{
		ResolveFunc: func(ctx context.Context, hostname string, style AddressStyle) ([]net.Addr, error) {
			return []net.Addr{peerConn.LocalAddr()}, nil
		},
	}
	reactor := newFakeReactor()
	observer := &ObserverMock{}

	sess, err := NewSession("example.test", cfg, resolver, reactor, observer)
	require.NoError(t, err)
	sess.openSocket = func(ctx context.Context, family AddrFamily) (*probeSocket, bool, error) {
		s, err := wrapConn(sessionConn, family)
		return s, true, err
	}

	return sess, reactor, observer, peerConn
}

func TestSession_Start_SendsFirstHopProbes(t *testing.T) {
	cfg := baseTestConfig()
	cfg.ProbesPerHop = 1
	cfg.InterProbeGap = 0
	sess, _, observer, peer := newTestSession(t, cfg)

	require.NoError(t, sess.Start(context.Background()))
	assert.Equal(t, StateRunning, sess.State())
	require.Len(t, observer.StartedAddresses, 1)

	buf := make([]byte, 128)
	require.NoError(t, peer.SetReadDeadline(time.Now().Add(time.Second)))
	n, _, err := peer.ReadFrom(buf)
	require.NoError(t, err)
	assert.Equal(t, uint16(0), internetChecksum(buf[:n]))
}

func TestSession_EchoReply_FinishesWithResult(t *testing.T) {
	cfg := baseTestConfig()
	cfg.ProbesPerHop = 1
	sess, reactor, observer, peer := newTestSession(t, cfg)

	require.NoError(t, sess.Start(context.Background()))

	buf := make([]byte, 128)
	require.NoError(t, peer.SetReadDeadline(time.Now().Add(time.Second)))
	n, from, err := peer.ReadFrom(buf)
	require.NoError(t, err)

	sess.mu.Lock()
	identifier := sess.hc.codec.identifier
	sess.mu.Unlock()
	echo := newCodec(FamilyV4, identifier, true)
	reply, err := echo.BuildEcho(seqFromProbe(buf[:n]), 0, make([]byte, 16))
	require.NoError(t, err)
	reply[0] = 0 // echo reply
	_, err = peer.WriteTo(reply, from)
	require.NoError(t, err)

	require.NoError(t, sess.sock.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	fd, ferr := sess.sock.Fd()
	require.NoError(t, ferr)
	reactor.FireReadable(fd)

	require.Len(t, observer.FinishedWith, 1)
	assert.True(t, observer.FinishedWith[0].ReachedTarget)
	assert.Equal(t, StateFinished, sess.State())
}

func TestSession_Start_Twice_ReturnsAlreadyRunning(t *testing.T) {
	cfg := baseTestConfig()
	sess, _, _, _ := newTestSession(t, cfg)
	require.NoError(t, sess.Start(context.Background()))

	err := sess.Start(context.Background())
	assert.True(t, errors.Is(err, ErrAlreadyRunning))
}

func TestSession_Stop_IsIdempotentAndEmitsOnce(t *testing.T) {
	cfg := baseTestConfig()
	sess, _, observer, _ := newTestSession(t, cfg)
	require.NoError(t, sess.Start(context.Background()))

	sess.Stop()
	sess.Stop()

	assert.Len(t, observer.FinishedWith, 1)
	assert.Equal(t, StateStopped, sess.State())
}

func TestSession_ResolutionFailure_EmitsOnFailed(t *testing.T) {
	cfg := baseTestConfig()
	reactor := newFakeReactor()
	observer := &ObserverMock{}
	resolver := &ResolverMock{
		ResolveFunc: func(ctx context.Context, hostname string, style AddressStyle) ([]net.Addr, error) {
			return nil, errors.New("no such host")
		},
	}

	sess, err := NewSession("nowhere.invalid", cfg, resolver, reactor, observer)
	require.NoError(t, err)

	require.NoError(t, sess.Start(context.Background()))
	require.Len(t, observer.FailedErrors, 1)
	assert.True(t, errors.Is(observer.FailedErrors[0], ErrResolutionFailed))
	assert.Equal(t, StateFailed, sess.State())
}

func TestNewSession_RejectsInvalidConfig(t *testing.T) {
	cfg := baseTestConfig()
	cfg.MaxHops = 0
	_, err := NewSession("example.test", cfg, &ResolverMock{}, newFakeReactor(), &ObserverMock{})
	assert.True(t, errors.Is(err, ErrInvalidConfiguration))
}

// seqFromProbe extracts the sequence number the session encoded in an
// outgoing Echo Request, mirroring how the codec lays out the header.
func seqFromProbe(wire []byte) uint16 {
	return uint16(wire[6])<<8 | uint16(wire[7])
}
