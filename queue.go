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
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/heyitswin/zipsea-sub001/config"
	redis_db "github.com/heyitswin/zipsea-sub001/internal/redis-db"
	"github.com/heyitswin/zipsea-sub001/model"
	"github.com/hibiken/asynq"
)

// Queue represents the task queue webhook events are pushed onto.
type Queue struct {
	Client    *asynq.Client
	Inspector *asynq.Inspector
}

// WebhookEventPayload is the task payload for a queued webhook event.
type WebhookEventPayload struct {
	Data model.WebhookEvent
}

// NewQueue initializes a new Queue instance with the provided configuration.
func NewQueue(conf *config.Configuration) *Queue {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns)
	if err != nil {
		log.Fatalf("Error parsing Redis URL: %v", err)
	}

	queueOptions := asynq.RedisClientOpt{Addr: redisOption.Addr, Password: redisOption.Password, DB: redisOption.DB}
	client := asynq.NewClient(queueOptions)
	inspector := asynq.NewInspector(queueOptions)
	return &Queue{
		Client:    client,
		Inspector: inspector,
	}
}

// QueueWebhookEvent enqueues a webhook event for asynchronous processing.
// A deterministic per-line task id inside a one-minute window collapses
// the enqueue side of the supplier's retry storms; the orchestrator's
// dedup window catches the rest.
func (q *Queue) QueueWebhookEvent(event model.WebhookEvent) error {
	cfg, err := config.Fetch()
	if err != nil {
		return err
	}

	payload, err := json.Marshal(WebhookEventPayload{Data: event})
	if err != nil {
		return err
	}
	taskOptions := []asynq.Option{
		asynq.TaskID(webhookTaskID(event)),
		asynq.Queue(cfg.Queue.WebhookQueue),
		asynq.Retention(24 * time.Hour),
	}
	task := asynq.NewTask(cfg.Queue.WebhookQueue, payload, taskOptions...)
	info, err := q.Client.Enqueue(task)
	if err != nil {
		log.Println(err, info)
		return err
	}
	log.Printf(" [*] Successfully enqueued webhook event for line %d", event.LineID)
	return nil
}

func webhookTaskID(event model.WebhookEvent) string {
	return fmt.Sprintf("webhook_%d_%d", event.LineID, event.ReceivedAt.Unix()/60)
}
