// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package trace

import (
	"sync"
	"time"
)

var _ Reactor = (*fakeReactor)(nil)

// fakeReactor is a deterministic stand-in for a real Reactor: timers never
// fire on their own. Tests fire them explicitly via FireTimer so hop
// timeout and fast-progression behavior can be exercised without sleeping.
type fakeReactor struct {
	mu        sync.Mutex
	nextID    TimerHandle
	timers    map[TimerHandle]func()
	cancelled map[TimerHandle]bool
	readables map[uintptr]func()
}

func newFakeReactor() *fakeReactor {
	return &fakeReactor{
		timers:    make(map[TimerHandle]func()),
		cancelled: make(map[TimerHandle]bool),
		readables: make(map[uintptr]func()),
	}
}

func (r *fakeReactor) RegisterReadable(fd uintptr, callback func()) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.readables[fd] = callback
	return nil
}

func (r *fakeReactor) ScheduleTimer(_ time.Duration, callback func()) TimerHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	id := r.nextID
	r.timers[id] = callback
	return id
}

func (r *fakeReactor) CancelTimer(handle TimerHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelled[handle] = true
}

// FireTimer invokes the callback registered under handle, unless it was
// cancelled or never scheduled.
func (r *fakeReactor) FireTimer(handle TimerHandle) {
	r.mu.Lock()
	cb, ok := r.timers[handle]
	cancelled := r.cancelled[handle]
	r.mu.Unlock()
	if ok && !cancelled {
		cb()
	}
}

// LastTimer returns the most recently scheduled timer's handle.
func (r *fakeReactor) LastTimer() TimerHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.nextID
}

// FireReadable invokes the callback registered for fd, if any.
func (r *fakeReactor) FireReadable(fd uintptr) {
	r.mu.Lock()
	cb, ok := r.readables[fd]
	r.mu.Unlock()
	if ok {
		cb()
	}
}

// IsCancelled reports whether handle was cancelled.
func (r *fakeReactor) IsCancelled(handle TimerHandle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelled[handle]
}
