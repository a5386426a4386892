// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package helper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetry_SucceedsEventually(t *testing.T) {
	calls := 0
	effector := func(_ context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}

	err := Retry(effector, RetryConfig{Count: 3, Delay: time.Millisecond})(t.Context())
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_GivesUpAfterCount(t *testing.T) {
	calls := 0
	wantErr := errors.New("permanent")
	effector := func(_ context.Context) error {
		calls++
		return wantErr
	}

	err := Retry(effector, RetryConfig{Count: 2, Delay: time.Millisecond})(t.Context())
	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, 3, calls)
}

func TestRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	calls := 0
	effector := func(_ context.Context) error {
		calls++
		return errors.New("transient")
	}

	err := Retry(effector, RetryConfig{Count: 5, Delay: time.Second})(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestGetExpBackoff(t *testing.T) {
	tests := []struct {
		iteration int
		want      time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
	}

	for _, tt := range tests {
		got := getExpBackoff(time.Second, tt.iteration)
		assert.Equal(t, tt.want, got)
	}
}
