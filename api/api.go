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

	"github.com/gin-gonic/gin"
	zipsea "github.com/heyitswin/zipsea-sub001"
	"github.com/heyitswin/zipsea-sub001/api/middleware"
	"github.com/heyitswin/zipsea-sub001/config"
)

type Api struct {
	zipsea *zipsea.Zipsea
	router *gin.Engine
}

func (a Api) Router() *gin.Engine {
	router := a.router
	router.POST("/api/webhooks/traveltek", a.ReceiveTraveltekWebhook)
	router.POST("/api/admin/circuit-breaker/reset", a.ResetCircuitBreaker)
	return a.router
}

func NewAPI(z *zipsea.Zipsea) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}
	r := gin.Default()
	r.Use(middleware.RateLimitMiddleware(conf))

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":               "server running...",
			"circuit_breaker_open": z.BreakerOpen(),
		})
	})

	return &Api{zipsea: z, router: r}
}
