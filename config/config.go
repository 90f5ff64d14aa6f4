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

package config

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"
	"sync/atomic"

	"github.com/kelseyhightower/envconfig"

	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_PORT = "3001"
)

var ConfigStore atomic.Value

type ServerConfig struct {
	Port string `json:"port" envconfig:"ZIPSEA_SERVER_PORT"`
}

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"DATABASE_URL"`
}

type RedisConfig struct {
	Dns string `json:"dns" envconfig:"REDIS_URL"`
}

// TraveltekConfig holds the credentials and tuning knobs for the supplier
// FTP origin. The env variable names match the ones the hosting platform
// already carries for this integration.
type TraveltekConfig struct {
	FTPHost     string `json:"ftp_host" envconfig:"TRAVELTEK_FTP_HOST"`
	FTPUser     string `json:"ftp_user" envconfig:"TRAVELTEK_FTP_USER"`
	FTPPassword string `json:"ftp_password" envconfig:"TRAVELTEK_FTP_PASSWORD"`

	// PoolSize caps concurrent FTP connections against the origin.
	PoolSize int `json:"pool_size" envconfig:"TRAVELTEK_FTP_POOL_SIZE"`
	// AcquireTimeoutSec bounds how long a caller waits for a pooled connection.
	AcquireTimeoutSec int `json:"acquire_timeout_sec" envconfig:"TRAVELTEK_FTP_ACQUIRE_TIMEOUT_SEC"`
	// DownloadTimeoutSec bounds a single file transfer.
	DownloadTimeoutSec int `json:"download_timeout_sec" envconfig:"TRAVELTEK_FTP_DOWNLOAD_TIMEOUT_SEC"`
}

type WebhookConfig struct {
	// DedupWindowSec is how long repeat events for the same line are ignored.
	DedupWindowSec int `json:"dedup_window_sec" envconfig:"ZIPSEA_WEBHOOK_DEDUP_WINDOW_SEC"`
	// MegaBatchSize caps cruises per downloader invocation.
	MegaBatchSize int `json:"mega_batch_size" envconfig:"ZIPSEA_WEBHOOK_MEGA_BATCH_SIZE"`
	// RunTimeoutSec bounds a whole-line orchestration.
	RunTimeoutSec int `json:"run_timeout_sec" envconfig:"ZIPSEA_WEBHOOK_RUN_TIMEOUT_SEC"`
	// HorizonDays bounds the future-sailing candidate query.
	HorizonDays int `json:"horizon_days" envconfig:"ZIPSEA_WEBHOOK_HORIZON_DAYS"`
}

type BreakerConfig struct {
	// FailureThreshold is the consecutive bad-run count that opens the breaker.
	FailureThreshold int `json:"failure_threshold" envconfig:"ZIPSEA_BREAKER_FAILURE_THRESHOLD"`
	// CooldownSec is how long the breaker stays open before a reset.
	CooldownSec int `json:"cooldown_sec" envconfig:"ZIPSEA_BREAKER_COOLDOWN_SEC"`
}

type QueueConfig struct {
	WebhookQueue   string `json:"webhook_queue" envconfig:"ZIPSEA_QUEUE_WEBHOOK"`
	MonitoringPort string `json:"monitoring_port" envconfig:"ZIPSEA_QUEUE_MONITORING_PORT"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url" envconfig:"SLACK_WEBHOOK_URL"`
}

type Notification struct {
	Slack SlackWebhook `json:"slack"`
}

type RateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"ZIPSEA_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"ZIPSEA_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"ZIPSEA_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
}

type Configuration struct {
	ProjectName  string           `json:"project_name" envconfig:"ZIPSEA_PROJECT_NAME"`
	Server       ServerConfig     `json:"server"`
	DataSource   DataSourceConfig `json:"data_source"`
	Redis        RedisConfig      `json:"redis"`
	Traveltek    TraveltekConfig  `json:"traveltek"`
	Webhook      WebhookConfig    `json:"webhook"`
	Breaker      BreakerConfig    `json:"breaker"`
	Queue        QueueConfig      `json:"queue"`
	Notification Notification     `json:"notification"`
	RateLimit    RateLimitConfig  `json:"rate_limit"`
	PostHogKey   string           `json:"posthog_key" envconfig:"POSTHOG_API_KEY"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}

	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("zipsea", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return err
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called zipsea.json with your config ❌")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "Zipsea Server"
	}

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	// Trim white spaces from fields
	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)
	cnf.Traveltek.FTPHost = strings.TrimSpace(cnf.Traveltek.FTPHost)

	// Set default value for Port if it's empty
	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	if cnf.Traveltek.FTPHost == "" {
		cnf.Traveltek.FTPHost = "ftpeu1prod.traveltek.net"
	}
	if cnf.Traveltek.PoolSize <= 0 {
		cnf.Traveltek.PoolSize = 3
	}
	if cnf.Traveltek.AcquireTimeoutSec <= 0 {
		cnf.Traveltek.AcquireTimeoutSec = 30
	}
	if cnf.Traveltek.DownloadTimeoutSec <= 0 {
		cnf.Traveltek.DownloadTimeoutSec = 45
	}

	if cnf.Webhook.DedupWindowSec <= 0 {
		cnf.Webhook.DedupWindowSec = 300
	}
	if cnf.Webhook.MegaBatchSize <= 0 {
		cnf.Webhook.MegaBatchSize = 500
	}
	if cnf.Webhook.RunTimeoutSec <= 0 {
		cnf.Webhook.RunTimeoutSec = 600
	}
	if cnf.Webhook.HorizonDays <= 0 {
		cnf.Webhook.HorizonDays = 730
	}

	if cnf.Breaker.FailureThreshold <= 0 {
		cnf.Breaker.FailureThreshold = 3
	}
	if cnf.Breaker.CooldownSec <= 0 {
		cnf.Breaker.CooldownSec = 600
	}

	if cnf.Queue.WebhookQueue == "" {
		cnf.Queue.WebhookQueue = "webhook:traveltek"
	}
	if cnf.Queue.MonitoringPort == "" {
		cnf.Queue.MonitoringPort = "5003"
	}

	// Rate limiting is disabled by default (when both RPS and Burst are nil)
	if cnf.RateLimit.RequestsPerSecond != nil && cnf.RateLimit.Burst == nil {
		defaultBurst := 2 * int(*cnf.RateLimit.RequestsPerSecond)
		cnf.RateLimit.Burst = &defaultBurst
		log.Printf("Warning: Rate limit burst not specified. Setting default value: %d", defaultBurst)
	}
	if cnf.RateLimit.RequestsPerSecond == nil && cnf.RateLimit.Burst != nil {
		defaultRPS := float64(*cnf.RateLimit.Burst) / 2
		cnf.RateLimit.RequestsPerSecond = &defaultRPS
		log.Printf("Warning: Rate limit RPS not specified. Setting default value: %.2f", defaultRPS)
	}
	if cnf.RateLimit.CleanupIntervalSec == nil {
		defaultCleanup := 10800 // 3 hours in seconds
		cnf.RateLimit.CleanupIntervalSec = &defaultCleanup
	}

	return nil
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
