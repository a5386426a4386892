// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package reactor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestEpoll_ScheduleTimer_FiresCallback(t *testing.T) {
	e, err := New()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go func() { _ = e.Run(ctx) }()

	fired := make(chan struct{})
	e.ScheduleTimer(10*time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timer never fired")
	}
}

func TestEpoll_CancelTimer_PreventsFire(t *testing.T) {
	e, err := New()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	go func() { _ = e.Run(ctx) }()

	fired := make(chan struct{})
	handle := e.ScheduleTimer(50*time.Millisecond, func() { close(fired) })
	e.CancelTimer(handle)

	select {
	case <-fired:
		t.Fatal("cancelled timer fired")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestEpoll_RegisterReadable_FiresOnData(t *testing.T) {
	fds := make([]int, 2)
	require.NoError(t, unix.Pipe(fds))
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	e, err := New()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go func() { _ = e.Run(ctx) }()

	readable := make(chan struct{})
	require.NoError(t, e.RegisterReadable(uintptr(fds[0]), func() {
		buf := make([]byte, 8)
		_, _ = unix.Read(fds[0], buf)
		close(readable)
	}))

	_, err = unix.Write(fds[1], []byte("x"))
	require.NoError(t, err)

	select {
	case <-readable:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("readable callback never fired")
	}
}

func TestEpoll_Run_StopsOnContextCancel(t *testing.T) {
	e, err := New()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	cancel()

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
