/*
Copyright 2024 Blnk Finance Authors.

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
	"fmt"
	"log"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/sirupsen/logrus"

	"github.com/jerry-enebeli/rwa/model"
)

const (
	DEFAULT_PORT          = "5011"
	DEFAULT_SANDBOX_PORT  = "5012"
	DEFAULT_WEBHOOK_QUEUE = "rwa_webhook_queue"
)

var ConfigStore atomic.Value

type ServerConfig struct {
	SSL       bool   `json:"ssl" envconfig:"RWA_SERVER_SSL"`
	Secure    bool   `json:"secure" envconfig:"RWA_SERVER_SECURE"`
	SecretKey string `json:"secret_key" envconfig:"RWA_SERVER_SECRET_KEY"`
	Domain    string `json:"domain" envconfig:"RWA_SERVER_SSL_DOMAIN"`
	Email     string `json:"ssl_email" envconfig:"RWA_SERVER_SSL_EMAIL"`
	Port      string `json:"port" envconfig:"RWA_SERVER_PORT"`
}

type RedisConfig struct {
	Dns           string `json:"dns" envconfig:"RWA_REDIS_DNS"`
	SkipTLSVerify bool   `json:"skip_tls_verify" envconfig:"RWA_REDIS_SKIP_TLS_VERIFY"`
}

// ServicesConfig points at the external ledger, marketplace, loan book and
// history services. Any URL left empty falls back to BaseURL.
type ServicesConfig struct {
	BaseURL        string `json:"base_url" envconfig:"RWA_SERVICES_BASE_URL"`
	LedgerURL      string `json:"ledger_url" envconfig:"RWA_SERVICES_LEDGER_URL"`
	MarketplaceURL string `json:"marketplace_url" envconfig:"RWA_SERVICES_MARKETPLACE_URL"`
	LoansURL       string `json:"loans_url" envconfig:"RWA_SERVICES_LOANS_URL"`
	HistoryURL     string `json:"history_url" envconfig:"RWA_SERVICES_HISTORY_URL"`
	AuthToken      string `json:"auth_token" envconfig:"RWA_SERVICES_AUTH_TOKEN"`
}

type OrchestratorConfig struct {
	CallTimeoutSec     int  `json:"call_timeout_sec" envconfig:"RWA_CALL_TIMEOUT_SEC"`
	ReadRetryWindowMs  int  `json:"read_retry_window_ms" envconfig:"RWA_READ_RETRY_WINDOW_MS"`
	LockTTLSec         int  `json:"lock_ttl_sec" envconfig:"RWA_LOCK_TTL_SEC"`
	WaitForLock        bool `json:"wait_for_lock" envconfig:"RWA_WAIT_FOR_LOCK"`
	LockWaitTimeoutSec int  `json:"lock_wait_timeout_sec" envconfig:"RWA_LOCK_WAIT_TIMEOUT_SEC"`
	SessionTTLSec      int  `json:"session_ttl_sec" envconfig:"RWA_SESSION_TTL_SEC"`
	StaleViewSec       int  `json:"stale_view_sec" envconfig:"RWA_STALE_VIEW_SEC"`
	SessionLocalCache  bool `json:"session_local_cache" envconfig:"RWA_SESSION_LOCAL_CACHE"`
}

func (o OrchestratorConfig) CallTimeout() time.Duration {
	return time.Duration(o.CallTimeoutSec) * time.Second
}

func (o OrchestratorConfig) ReadRetryWindow() time.Duration {
	return time.Duration(o.ReadRetryWindowMs) * time.Millisecond
}

func (o OrchestratorConfig) LockTTL() time.Duration {
	return time.Duration(o.LockTTLSec) * time.Second
}

func (o OrchestratorConfig) LockWaitTimeout() time.Duration {
	return time.Duration(o.LockWaitTimeoutSec) * time.Second
}

func (o OrchestratorConfig) SessionTTL() time.Duration {
	return time.Duration(o.SessionTTLSec) * time.Second
}

func (o OrchestratorConfig) StaleView() time.Duration {
	return time.Duration(o.StaleViewSec) * time.Second
}

type QueueConfig struct {
	WebhookQueue   string `json:"webhook_queue" envconfig:"RWA_WEBHOOK_QUEUE"`
	MonitoringPort string `json:"monitoring_port" envconfig:"RWA_QUEUE_MONITORING_PORT"`
}

type SandboxConfig struct {
	Port string `json:"port" envconfig:"RWA_SANDBOX_PORT"`
}

type RateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"RWA_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"RWA_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"RWA_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url" envconfig:"RWA_SLACK_WEBHOOK_URL"`
}

type WebhookConfig struct {
	Url     string            `json:"url" envconfig:"RWA_WEBHOOK_URL"`
	Headers map[string]string `json:"headers"`
}

type Notification struct {
	Slack   SlackWebhook  `json:"slack"`
	Webhook WebhookConfig `json:"webhook"`
}

type Configuration struct {
	ProjectName     string               `json:"project_name" envconfig:"RWA_PROJECT_NAME"`
	EnableTelemetry bool                 `json:"enable_telemetry" envconfig:"RWA_ENABLE_TELEMETRY"`
	Server          ServerConfig         `json:"server"`
	Redis           RedisConfig          `json:"redis"`
	Services        ServicesConfig       `json:"services"`
	Orchestrator    OrchestratorConfig   `json:"orchestrator"`
	Currencies      []model.CurrencyInfo `json:"currencies"`
	Queue           QueueConfig          `json:"queue"`
	Sandbox         SandboxConfig        `json:"sandbox"`
	Notification    Notification         `json:"notification"`
	RateLimit       RateLimitConfig      `json:"rate_limit"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer f.Close()
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}

	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("rwa", &cnf)
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
		return nil, errors.New("config not loaded from file. Create a json file called rwa.json with your config ❌")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "RWA Platform"
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	// Trim white spaces from fields
	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)
	cnf.Services.BaseURL = strings.TrimRight(strings.TrimSpace(cnf.Services.BaseURL), "/")

	if err := cnf.Services.addDefaults(); err != nil {
		return err
	}

	// Set default value for Port if it's empty
	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}
	if cnf.Sandbox.Port == "" {
		cnf.Sandbox.Port = DEFAULT_SANDBOX_PORT
	}
	if cnf.Queue.WebhookQueue == "" {
		cnf.Queue.WebhookQueue = DEFAULT_WEBHOOK_QUEUE
	}
	if cnf.Queue.MonitoringPort == "" {
		cnf.Queue.MonitoringPort = "5014"
	}

	cnf.Orchestrator.addDefaults()

	if err := cnf.validateCurrencies(); err != nil {
		return err
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

	// Set default cleanup interval if not specified
	if cnf.RateLimit.CleanupIntervalSec == nil {
		defaultCleanup := 10800 // 3 hours in seconds
		cnf.RateLimit.CleanupIntervalSec = &defaultCleanup
	}

	return nil
}

func (s *ServicesConfig) addDefaults() error {
	urls := []*string{&s.LedgerURL, &s.MarketplaceURL, &s.LoansURL, &s.HistoryURL}
	for _, u := range urls {
		*u = strings.TrimRight(strings.TrimSpace(*u), "/")
		if *u == "" {
			*u = s.BaseURL
		}
		if *u == "" {
			log.Println("Error: Services base URL is empty and a service URL is missing.")
			return errors.New("services base URL is required")
		}
	}
	return nil
}

func (o *OrchestratorConfig) addDefaults() {
	if o.CallTimeoutSec <= 0 {
		o.CallTimeoutSec = 10
	}
	if o.ReadRetryWindowMs <= 0 {
		o.ReadRetryWindowMs = 3000
	}
	if o.LockTTLSec <= 0 {
		o.LockTTLSec = 120
	}
	if o.LockWaitTimeoutSec <= 0 {
		o.LockWaitTimeoutSec = 30
	}
	if o.SessionTTLSec <= 0 {
		o.SessionTTLSec = 86400
	}
	if o.StaleViewSec <= 0 {
		o.StaleViewSec = 30
	}
}

// validateCurrencies keeps exactly two distinct currencies: the first entry
// is currency A and the second currency B.
func (cnf *Configuration) validateCurrencies() error {
	if len(cnf.Currencies) == 0 {
		cnf.Currencies = model.DefaultCurrencies()
		return nil
	}
	if len(cnf.Currencies) != 2 {
		return fmt.Errorf("exactly two currencies are supported, got %d", len(cnf.Currencies))
	}
	for i := range cnf.Currencies {
		c := &cnf.Currencies[i]
		c.Tag = model.Currency(strings.TrimSpace(string(c.Tag)))
		if c.Tag == "" {
			return errors.New("currency tag is required")
		}
		if c.Precision < 0 || c.Precision > 18 {
			return fmt.Errorf("currency %s precision must be between 0 and 18", c.Tag)
		}
	}
	if cnf.Currencies[0].Matches(string(cnf.Currencies[1].Tag)) {
		return fmt.Errorf("currency %s is configured twice", cnf.Currencies[0].Tag)
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
