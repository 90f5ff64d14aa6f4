/*
Copyright 2025 Zipsea Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package zipsea

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerOpensAfterConsecutiveBadRuns(t *testing.T) {
	cb := NewCircuitBreaker(3, 10*time.Minute)

	cb.RecordRun(60, 100)
	cb.RecordRun(60, 100)
	assert.False(t, cb.IsOpen())
	assert.NoError(t, cb.Allow())

	cb.RecordRun(60, 100)
	assert.True(t, cb.IsOpen())

	err := cb.Allow()
	require.Error(t, err)
	open, ok := err.(*ErrCircuitOpen)
	require.True(t, ok)
	assert.Greater(t, open.RetryAfter, time.Duration(0))
}

func TestBreakerHealthyRunResetsStreak(t *testing.T) {
	cb := NewCircuitBreaker(3, 10*time.Minute)

	cb.RecordRun(60, 100)
	cb.RecordRun(60, 100)
	cb.RecordRun(2, 100)
	cb.RecordRun(60, 100)
	cb.RecordRun(60, 100)
	assert.False(t, cb.IsOpen())

	cb.RecordRun(60, 100)
	assert.True(t, cb.IsOpen())
}

func TestBreakerIgnoresSmallRuns(t *testing.T) {
	cb := NewCircuitBreaker(1, 10*time.Minute)

	// 100% failure on a tiny batch is not evidence of an outage.
	cb.RecordRun(5, 5)
	cb.RecordRun(10, 10)
	assert.False(t, cb.IsOpen())

	cb.RecordRun(11, 11)
	assert.True(t, cb.IsOpen())
}

func TestBreakerExactlyHalfIsHealthy(t *testing.T) {
	cb := NewCircuitBreaker(1, 10*time.Minute)
	cb.RecordRun(50, 100)
	assert.False(t, cb.IsOpen())
}

func TestBreakerClosesAfterCooldown(t *testing.T) {
	cb := NewCircuitBreaker(1, 10*time.Minute)
	current := time.Now()
	cb.now = func() time.Time { return current }

	cb.RecordRun(60, 100)
	require.True(t, cb.IsOpen())
	require.Error(t, cb.Allow())

	current = current.Add(10*time.Minute + time.Second)
	assert.NoError(t, cb.Allow())
	assert.False(t, cb.IsOpen())
}

func TestBreakerManualReset(t *testing.T) {
	cb := NewCircuitBreaker(1, time.Hour)
	cb.RecordRun(60, 100)
	require.True(t, cb.IsOpen())

	cb.Reset()
	assert.False(t, cb.IsOpen())
	assert.NoError(t, cb.Allow())
}
