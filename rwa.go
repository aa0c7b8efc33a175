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

package rwa

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/jerry-enebeli/rwa/backend"
	"github.com/jerry-enebeli/rwa/config"
	"github.com/jerry-enebeli/rwa/internal/cache"
	"github.com/jerry-enebeli/rwa/internal/notification"
	redis_db "github.com/jerry-enebeli/rwa/internal/redis-db"
	"github.com/jerry-enebeli/rwa/model"
)

// Platform represents the main struct of the RWA platform. It owns no
// balances, tokens or loans; it orchestrates the services that do.
type Platform struct {
	conf        *config.Configuration
	backends    *backend.Backends
	router      *CurrencyRouter
	guard       BalanceGuard
	coordinator *SettlementCoordinator
	refresher   *ViewRefresher
	sessions    *SessionStore
	gate        *identityGate
	queue       *Queue
	escalate    notification.WebhookSender
	tracer      trace.Tracer
}

// NewPlatform wires the orchestration core onto backends.
//
// Parameters:
// - cfg *config.Configuration: The loaded configuration.
// - backends *backend.Backends: The ledger, marketplace, loan book and history services.
// - redisClient redis.UniversalClient: Holds identity locks and sessions.
// - queue *Queue: Webhook queue; nil disables webhooks.
//
// Returns:
// - *Platform: A pointer to the newly created Platform instance.
// - error: An error if a dependency is missing.
func NewPlatform(cfg *config.Configuration, backends *backend.Backends, redisClient redis.UniversalClient, queue *Queue) (*Platform, error) {
	if cfg == nil {
		return nil, errors.New("configuration is required")
	}
	if backends == nil || backends.Ledger == nil || backends.Marketplace == nil || backends.Loans == nil || backends.History == nil {
		return nil, errors.New("all four backends are required")
	}
	if redisClient == nil {
		return nil, errors.New("redis client is required")
	}

	p := &Platform{
		conf:        cfg,
		backends:    backends,
		router:      NewCurrencyRouter(backends.Ledger, cfg.Currencies),
		coordinator: NewSettlementCoordinator(),
		refresher:   NewViewRefresher(backends, cfg.Currencies, cfg.Orchestrator.ReadRetryWindow()),
		sessions:    NewSessionStore(cache.NewCache(redisClient, cfg.Orchestrator.SessionLocalCache), cfg.Orchestrator.SessionTTL()),
		gate:        newIdentityGate(redisClient, cfg.Orchestrator),
		queue:       queue,
		tracer:      otel.Tracer("rwa.platform"),
	}

	if queue != nil {
		p.escalate = func(event string, payload interface{}) error {
			return queue.SendWebhook(context.Background(), NewWebhook{Event: event, Payload: payload})
		}
	}
	return p, nil
}

// NewPlatformFromConfig connects to redis and the HTTP services named in the
// fetched configuration.
func NewPlatformFromConfig() (*Platform, *redis_db.Redis, error) {
	cfg, err := config.Fetch()
	if err != nil {
		return nil, nil, err
	}
	redisClient, err := redis_db.NewRedisClient(redis_db.SplitDNS(cfg.Redis.Dns), cfg.Redis.SkipTLSVerify)
	if err != nil {
		return nil, nil, err
	}
	queue, err := NewQueue(cfg)
	if err != nil {
		_ = redisClient.Close()
		return nil, nil, err
	}
	p, err := NewPlatform(cfg, backend.NewHTTPBackends(cfg.Services, cfg.Orchestrator.CallTimeout()), redisClient.Client(), queue)
	if err != nil {
		_ = queue.Close()
		_ = redisClient.Close()
		return nil, nil, err
	}
	return p, redisClient, nil
}

// Currencies returns the supported currencies, currency A first.
func (p *Platform) Currencies() []model.CurrencyInfo {
	return p.router.Currencies()
}

// Close releases the webhook queue.
func (p *Platform) Close() error {
	if p.queue == nil {
		return nil
	}
	return p.queue.Close()
}
