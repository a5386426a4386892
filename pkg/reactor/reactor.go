// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

// Package reactor provides the production trace.Reactor implementation: one
// goroutine polling every registered descriptor with epoll and running every
// timer and readable callback serially, so a Session's Observer never needs
// to guard against concurrent callbacks.
package reactor

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/hoptrace/hoptrace/internal/logger"
	"github.com/hoptrace/hoptrace/pkg/trace"
)

// pollTimeout bounds how long a single EpollWait call blocks, so a newly
// armed timer or a context cancellation is never starved behind an
// indefinite wait with no registered descriptors.
const pollTimeout = 100 * time.Millisecond

// Epoll is a single-goroutine trace.Reactor backed by Linux epoll.
type Epoll struct {
	fd int

	mu        sync.Mutex
	readables map[uintptr]func()
	timers    timerHeap
	nextID    trace.TimerHandle
	cancelled map[trace.TimerHandle]bool
}

var _ trace.Reactor = (*Epoll)(nil)

// New creates an Epoll reactor. Call Run to start its dispatch loop.
func New() (*Epoll, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll_create1: %w", err)
	}
	return &Epoll{
		fd:        fd,
		readables: make(map[uintptr]func()),
		cancelled: make(map[trace.TimerHandle]bool),
	}, nil
}

// RegisterReadable arranges for callback to run whenever fd has data
// available. It is safe to call before or after Run starts.
func (e *Epoll) RegisterReadable(fd uintptr, callback func()) error {
	e.mu.Lock()
	e.readables[fd] = callback
	e.mu.Unlock()

	event := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	if err := unix.EpollCtl(e.fd, unix.EPOLL_CTL_ADD, int(fd), &event); err != nil {
		return fmt.Errorf("epoll_ctl add: %w", err)
	}
	return nil
}

// ScheduleTimer arranges for callback to run once delay has elapsed.
func (e *Epoll) ScheduleTimer(delay time.Duration, callback func()) trace.TimerHandle {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	id := e.nextID
	heap.Push(&e.timers, &timerEntry{id: id, fireAt: time.Now().Add(delay), callback: callback})
	return id
}

// CancelTimer prevents handle's callback from running, if it has not fired.
func (e *Epoll) CancelTimer(handle trace.TimerHandle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelled[handle] = true
}

// Run drives the dispatch loop until ctx is cancelled. Every timer and
// readable callback is invoked from this goroutine, one at a time, in the
// order their triggering events are observed (§5).
func (e *Epoll) Run(ctx context.Context) error {
	log := logger.FromContext(ctx)
	defer unix.Close(e.fd)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if fired := e.fireDueTimers(); fired > 0 {
			continue
		}

		events := make([]unix.EpollEvent, 16)
		n, err := unix.EpollWait(e.fd, events, int(e.nextTimeout().Milliseconds()))
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			log.ErrorContext(ctx, "epoll_wait failed", "error", err)
			return fmt.Errorf("epoll_wait: %w", err)
		}

		for i := 0; i < n; i++ {
			fd := uintptr(events[i].Fd)
			e.mu.Lock()
			cb := e.readables[fd]
			e.mu.Unlock()
			if cb != nil {
				cb()
			}
		}
	}
}

// nextTimeout returns how long Run should block in EpollWait: until the
// earliest pending timer fires, capped by pollTimeout.
func (e *Epoll) nextTimeout() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.timers.Len() == 0 {
		return pollTimeout
	}
	until := time.Until(e.timers[0].fireAt)
	if until < 0 {
		return 0
	}
	if until > pollTimeout {
		return pollTimeout
	}
	return until
}

// fireDueTimers runs every timer whose deadline has passed, returning how
// many ran.
func (e *Epoll) fireDueTimers() int {
	now := time.Now()
	var due []*timerEntry

	e.mu.Lock()
	for e.timers.Len() > 0 && !e.timers[0].fireAt.After(now) {
		entry := heap.Pop(&e.timers).(*timerEntry)
		if !e.cancelled[entry.id] {
			due = append(due, entry)
		}
		delete(e.cancelled, entry.id)
	}
	e.mu.Unlock()

	for _, entry := range due {
		entry.callback()
	}
	return len(due)
}

type timerEntry struct {
	id       trace.TimerHandle
	fireAt   time.Time
	callback func()
}

type timerHeap []*timerEntry

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].fireAt.Before(h[j].fireAt) }
func (h timerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *timerHeap) Push(x interface{}) { *h = append(*h, x.(*timerEntry)) }
func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	entry := old[n-1]
	*h = old[:n-1]
	return entry
}
