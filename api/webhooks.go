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

package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	model2 "github.com/heyitswin/zipsea-sub001/api/model"
)

// ReceiveTraveltekWebhook accepts the supplier's line-level pricing
// notification and queues it. The supplier retries on anything but a
// fast 2xx, so the handler never does real work inline.
func (a Api) ReceiveTraveltekWebhook(c *gin.Context) {
	var payload model2.TraveltekWebhook
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := payload.ValidateTraveltekWebhook(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	event := payload.ToWebhookEvent()
	event.ReceivedAt = time.Now()
	if err := a.zipsea.EnqueueWebhookEvent(event); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"status": "queued",
		"lineid": event.LineID,
	})
}

// ResetCircuitBreaker closes the downloader's breaker on operator
// request, letting the next webhook run proceed without waiting out the
// cooldown.
func (a Api) ResetCircuitBreaker(c *gin.Context) {
	a.zipsea.ResetCircuitBreaker()
	c.JSON(http.StatusOK, gin.H{"status": "circuit breaker reset"})
}
