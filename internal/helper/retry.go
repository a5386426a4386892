// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

// Package helper provides small utilities shared by the core engine and its
// companion adapters.
package helper

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/hoptrace/hoptrace/internal/logger"
)

// RetryConfig configures exponential-backoff retries for an Effector.
type RetryConfig struct {
	Count int           `yaml:"count" json:"count" mapstructure:"count"`
	Delay time.Duration `yaml:"delay" json:"delay" mapstructure:"delay"`
}

// Effector is the function retried by Retry.
type Effector func(context.Context) error

// Retry wraps effector so that it is retried with exponential backoff up to
// rc.Count additional times after its first failure.
func Retry(effector Effector, rc RetryConfig) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		log := logger.FromContext(ctx)
		for r := 1; ; r++ {
			err := effector(ctx)
			if err == nil || r > rc.Count {
				return err
			}

			delay := getExpBackoff(rc.Delay, r)
			log.WarnContext(ctx, fmt.Sprintf("Effector call failed, retrying in %v", delay), "error", err)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
}

// getExpBackoff calculates the exponential delay for a given iteration.
// The first iteration (iteration <= 1) uses the initial delay unchanged.
func getExpBackoff(initialDelay time.Duration, iteration int) time.Duration {
	if iteration <= 1 {
		return initialDelay
	}
	return time.Duration(math.Pow(2, float64(iteration-1))) * initialDelay
}
