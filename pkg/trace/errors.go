// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package trace

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for the flat, tagged error taxonomy. Callers should use
// errors.Is against these rather than comparing error strings.
var (
	// ErrInvalidHostname is returned when the Resolver reports unusable input.
	ErrInvalidHostname = errors.New("invalid hostname")
	// ErrResolutionFailed is returned when the Resolver returned no address
	// compatible with the configured AddressStyle.
	ErrResolutionFailed = errors.New("resolution failed")
	// ErrNetwork is returned for ENETUNREACH/EHOSTUNREACH and analogous
	// socket errors.
	ErrNetwork = errors.New("network error")
	// ErrTimeout is returned for ETIMEDOUT reported directly by a syscall,
	// distinct from a per-hop timeout, which is recovered locally.
	ErrTimeout = errors.New("timeout")
	// ErrSystem wraps any other syscall errno encountered while opening or
	// operating on the socket.
	ErrSystem = errors.New("system error")
	// ErrInvalidConfiguration is returned when SessionConfig.Validate fails.
	ErrInvalidConfiguration = errors.New("invalid configuration")
	// ErrAlreadyRunning is returned by Start when the session is already
	// Resolving or Running.
	ErrAlreadyRunning = errors.New("session already running")
	// ErrNotRunning is returned by operations that require a running session.
	ErrNotRunning = errors.New("session not running")

	// ErrContinuousRunning is returned by PingOnce while a continuous Ping is active.
	ErrContinuousRunning = errors.New("continuous ping already running")
	// ErrAlreadyInProgress is returned by PingOnce when a single probe is already outstanding.
	ErrAlreadyInProgress = errors.New("ping already in progress")
)

// isRecoverable reports whether err is one of the two caller-recoverable
// signals that never represent a session failure: being asked to start an
// already-running session, or to stop one that is not running.
func isRecoverable(err error) bool {
	return errors.Is(err, ErrAlreadyRunning) || errors.Is(err, ErrNotRunning)
}

// ConfigError reports a single invalid SessionConfig field.
// It wraps ErrInvalidConfiguration so callers can match with errors.Is.
type ConfigError struct {
	Field  string
	Reason string
}

func (e ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration field %q: %s", e.Field, e.Reason)
}

func (e ConfigError) Unwrap() error {
	return ErrInvalidConfiguration
}

// wrapSyscallError classifies a raw socket error into the taxonomy of §7,
// wrapping it with %w so the original errno remains inspectable.
func wrapSyscallError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return err
	case isUnreachable(err):
		return fmt.Errorf("%w: %w", ErrNetwork, err)
	case isTimeout(err):
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	default:
		return fmt.Errorf("%w: %w", ErrSystem, err)
	}
}
