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

package main

import (
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/heyitswin/zipsea-sub001/api"
	"github.com/heyitswin/zipsea-sub001/config"
	"github.com/posthog/posthog-go"
	"github.com/spf13/cobra"
)

func initializeRouter(z *zipseaInstance) *gin.Engine {
	return api.NewAPI(z.zipsea).Router()
}

// sendHeartbeat maintains a periodic liveness ping to PostHog so a stale
// deployment shows up on the ops dashboard.
func sendHeartbeat(client posthog.Client, heartbeatID string) {
	ticker := time.NewTicker(5 * time.Minute)
	go func() {
		for range ticker.C {
			if err := client.Enqueue(posthog.Capture{
				DistinctId: heartbeatID,
				Event:      "server_heartbeat",
				Properties: map[string]interface{}{
					"timestamp": time.Now().UTC(),
				},
			}); err != nil {
				log.Printf("Failed to send heartbeat: %v", err)
			}
		}
	}()
}

func initializePostHog(cfg *config.Configuration) posthog.Client {
	if cfg.PostHogKey == "" {
		return nil
	}
	client, err := posthog.NewWithConfig(cfg.PostHogKey,
		posthog.Config{Endpoint: "https://us.i.posthog.com"})
	if err != nil {
		log.Printf("PostHog initialization error: %v", err)
		return nil
	}
	heartbeatID := uuid.New().String()
	sendHeartbeat(client, heartbeatID)
	return client
}

func startServer(router *gin.Engine, cfg config.ServerConfig) error {
	log.Printf("Starting server on http://localhost:%s", cfg.Port)
	return router.Run(":" + cfg.Port)
}

// serverCommands returns the Cobra command responsible for starting the
// webhook API server.
func serverCommands(z *zipseaInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "start zipsea server",
		Run: func(cmd *cobra.Command, args []string) {
			router := initializeRouter(z)

			cfg, err := config.Fetch()
			if err != nil {
				log.Fatal(err)
			}

			phClient := initializePostHog(cfg)
			if phClient != nil {
				defer phClient.Close()
			}

			defer z.zipsea.Shutdown()
			if err := startServer(router, cfg.Server); err != nil {
				log.Fatal(err)
			}
		},
	}

	return cmd
}
