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
	"encoding/json"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"github.com/jerry-enebeli/rwa/config"
	redis_db "github.com/jerry-enebeli/rwa/internal/redis-db"
)

// Queue enqueues background tasks, currently webhook deliveries.
type Queue struct {
	Client    *asynq.Client
	Inspector *asynq.Inspector
	name      string
}

// RedisClientOpt builds the asynq connection options from the redis config.
// Only the first address of a cluster DNS is used.
func RedisClientOpt(conf *config.Configuration) (asynq.RedisClientOpt, error) {
	addresses := redis_db.SplitDNS(conf.Redis.Dns)
	dns := conf.Redis.Dns
	if len(addresses) > 0 {
		dns = addresses[0]
	}
	redisOption, err := redis_db.ParseRedisURL(dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}
	return asynq.RedisClientOpt{
		Addr:      redisOption.Addr,
		Password:  redisOption.Password,
		DB:        redisOption.DB,
		TLSConfig: redisOption.TLSConfig,
	}, nil
}

// NewQueue initializes a Queue on the configured redis and webhook queue.
//
// Parameters:
// - conf *config.Configuration: The configuration for the queue.
//
// Returns:
// - *Queue: A pointer to the newly created Queue instance.
// - error: An error if the redis address cannot be parsed.
func NewQueue(conf *config.Configuration) (*Queue, error) {
	queueOptions, err := RedisClientOpt(conf)
	if err != nil {
		return nil, err
	}
	name := conf.Queue.WebhookQueue
	if name == "" {
		name = config.DEFAULT_WEBHOOK_QUEUE
	}
	return &Queue{
		Client:    asynq.NewClient(queueOptions),
		Inspector: asynq.NewInspector(queueOptions),
		name:      name,
	}, nil
}

// Name is the queue (and task type) webhook tasks are enqueued on.
func (q *Queue) Name() string {
	return q.name
}

// enqueueWebhook puts a webhook delivery on the queue. Deliveries are
// retried by the worker with asynq's default backoff.
func (q *Queue) enqueueWebhook(ctx context.Context, webhook NewWebhook) error {
	payload, err := json.Marshal(webhook)
	if err != nil {
		return err
	}
	taskOptions := []asynq.Option{
		asynq.Queue(q.name),
		asynq.MaxRetry(10),
		asynq.Timeout(30 * time.Second),
	}
	task := asynq.NewTask(q.name, payload, taskOptions...)
	info, err := q.Client.EnqueueContext(ctx, task)
	if err != nil {
		log.Println(err, info)
		return err
	}
	return nil
}

func (q *Queue) Close() error {
	if err := q.Inspector.Close(); err != nil {
		return err
	}
	return q.Client.Close()
}
