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
	"context"

	"github.com/heyitswin/zipsea-sub001/config"
	"github.com/heyitswin/zipsea-sub001/database"
	"github.com/heyitswin/zipsea-sub001/internal/cache"
	"github.com/heyitswin/zipsea-sub001/model"
	"github.com/sirupsen/logrus"
)

// Zipsea is the main struct for the pricing ingestion service. It owns
// the FTP pool, the circuit breaker, the queue and the orchestrator,
// all wired once at startup and shared across webhook runs.
type Zipsea struct {
	queue        *Queue
	datasource   database.IDataSource
	pool         *FTPPool
	breaker      *CircuitBreaker
	orchestrator *Orchestrator
}

// NewZipsea initializes the service with the provided datasource. It
// fetches the configuration and wires the cache, pool, breaker,
// downloader, processor and orchestrator.
func NewZipsea(db database.IDataSource) (*Zipsea, error) {
	configuration, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	cch, err := cache.NewCache()
	if err != nil {
		return nil, err
	}

	pool := NewFTPPoolFromConfig(configuration.Traveltek)
	breaker := NewCircuitBreakerFromConfig(configuration.Breaker)
	downloader := NewBulkDownloader(pool, breaker)
	processor := NewIngestionProcessor(db, cch)
	orchestrator := NewOrchestrator(db, downloader, processor, configuration.Webhook)

	return &Zipsea{
		queue:        NewQueue(configuration),
		datasource:   db,
		pool:         pool,
		breaker:      breaker,
		orchestrator: orchestrator,
	}, nil
}

// EnqueueWebhookEvent accepts an inbound webhook and queues it for the
// worker process. Called by the API layer.
func (z *Zipsea) EnqueueWebhookEvent(event model.WebhookEvent) error {
	return z.queue.QueueWebhookEvent(event)
}

// ProcessWebhookEvent runs one queued webhook event through the
// orchestrator. Called by the worker's task handler.
func (z *Zipsea) ProcessWebhookEvent(ctx context.Context, event model.WebhookEvent) (*model.OrchestrationReport, error) {
	return z.orchestrator.Handle(ctx, event)
}

// ResetCircuitBreaker closes the breaker on operator request.
func (z *Zipsea) ResetCircuitBreaker() {
	z.breaker.Reset()
}

// BreakerOpen reports the breaker state for health responses.
func (z *Zipsea) BreakerOpen() bool {
	return z.breaker.IsOpen()
}

// Shutdown releases pooled FTP connections.
func (z *Zipsea) Shutdown() {
	z.pool.CloseAll()
	logrus.Info("zipsea shut down")
}
