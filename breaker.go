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
	"fmt"
	"sync"
	"time"

	"github.com/heyitswin/zipsea-sub001/config"
	"github.com/sirupsen/logrus"
)

// ErrCircuitOpen is returned when a bulk run is refused because the
// upstream has been failing. RetryAfter is the remaining cooldown.
type ErrCircuitOpen struct {
	RetryAfter time.Duration
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open, retry after %s", e.RetryAfter.Round(time.Second))
}

// CircuitBreaker tracks whole-run health of the upstream FTP server.
// A run counts against the breaker only when it was big enough to be
// meaningful and more than half of it failed; missing files are not
// failures for this purpose, callers exclude them before calling
// RecordRun.
type CircuitBreaker struct {
	failureThreshold int
	cooldown         time.Duration

	mu       sync.Mutex
	failures int
	open     bool
	openedAt time.Time

	now func() time.Time
}

// minMeaningfulRun is the smallest batch whose failure rate is trusted.
const minMeaningfulRun = 10

// NewCircuitBreaker builds a breaker that opens after threshold
// consecutive bad runs and auto-resets after cooldown.
func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	if threshold < 1 {
		threshold = 1
	}
	return &CircuitBreaker{
		failureThreshold: threshold,
		cooldown:         cooldown,
		now:              time.Now,
	}
}

// NewCircuitBreakerFromConfig wires the breaker from the loaded
// configuration.
func NewCircuitBreakerFromConfig(cnf config.BreakerConfig) *CircuitBreaker {
	return NewCircuitBreaker(cnf.FailureThreshold, time.Duration(cnf.CooldownSec)*time.Second)
}

// Allow reports whether a bulk run may start. When the cooldown has
// elapsed the breaker closes itself and the run proceeds.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if !cb.open {
		return nil
	}
	elapsed := cb.now().Sub(cb.openedAt)
	if elapsed >= cb.cooldown {
		logrus.Info("circuit breaker cooldown elapsed, closing")
		cb.open = false
		cb.failures = 0
		return nil
	}
	return &ErrCircuitOpen{RetryAfter: cb.cooldown - elapsed}
}

// RecordRun feeds the outcome of a completed bulk run into the breaker.
// failed counts corrupted files and connection failures; total is every
// attempted download.
func (cb *CircuitBreaker) RecordRun(failed, total int) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if total > minMeaningfulRun && failed*2 > total {
		cb.failures++
		logrus.WithFields(logrus.Fields{
			"failed": failed,
			"total":  total,
			"streak": cb.failures,
		}).Warn("bulk run failure rate above half")
		if cb.failures >= cb.failureThreshold && !cb.open {
			cb.open = true
			cb.openedAt = cb.now()
			logrus.WithField("cooldown", cb.cooldown).Error("circuit breaker opened")
		}
		return
	}
	cb.failures = 0
}

// IsOpen reports the current state without side effects.
func (cb *CircuitBreaker) IsOpen() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.open
}

// Reset closes the breaker immediately. Exposed to operators through
// the admin endpoint.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.open = false
	cb.failures = 0
	logrus.Info("circuit breaker reset manually")
}
