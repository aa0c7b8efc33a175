/*
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
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/jerry-enebeli/rwa/config"
	"github.com/jerry-enebeli/rwa/internal/apierror"
	"github.com/jerry-enebeli/rwa/internal/notification"
	"github.com/jerry-enebeli/rwa/internal/request"
	"github.com/jerry-enebeli/rwa/model"
)

const (
	EventActionSettled            = "action.settled"
	EventActionRejected           = "action.rejected"
	EventActionCompensationFailed = notification.EventCompensationFailed
)

// NewWebhook represents the structure of a webhook notification.
// It includes an event type and associated payload data.
type NewWebhook struct {
	Event   string      `json:"event"` // The event type that triggered the webhook.
	Payload interface{} `json:"data"`  // The data associated with the event.
}

// RejectedAction is the payload of action.rejected.
type RejectedAction struct {
	Action    string            `json:"action"`
	Identity  string            `json:"identity"`
	Reference string            `json:"reference"`
	Error     apierror.APIError `json:"error"`
}

// getEventFromError maps the outcome of an action to its webhook event.
func getEventFromError(err error) string {
	switch {
	case err == nil:
		return EventActionSettled
	case apierror.IsCode(err, apierror.ErrCompensationFailed):
		return EventActionCompensationFailed
	default:
		return EventActionRejected
	}
}

// SendWebhook enqueues a webhook notification task. Nothing is enqueued when
// no webhook URL is configured.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - newWebhook NewWebhook: The webhook notification data to enqueue.
//
// Returns:
// - error: An error if the task could not be enqueued.
func (q *Queue) SendWebhook(ctx context.Context, newWebhook NewWebhook) error {
	conf, err := config.Fetch()
	if err != nil {
		return err
	}
	if conf.Notification.Webhook.Url == "" {
		return nil
	}
	return q.enqueueWebhook(ctx, newWebhook)
}

// processHTTP posts data to the configured webhook URL with the configured headers.
func processHTTP(ctx context.Context, data NewWebhook) error {
	conf, err := config.Fetch()
	if err != nil {
		log.Println("Error fetching config:", err)
		return err
	}

	client := request.NewClient(conf.Notification.Webhook.Url, "", 10*time.Second).
		WithHeaders(conf.Notification.Webhook.Headers)

	if err := client.Do(ctx, http.MethodPost, "", data, nil); err != nil {
		log.Println("Error sending webhook:", err)
		return err
	}

	log.Println("Webhook notification sent successfully:", data.Event)
	return nil
}

// ProcessWebhook processes a webhook notification task from the queue.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - task *asynq.Task: The task containing the webhook notification data.
//
// Returns:
// - error: An error if the webhook processing fails, so asynq retries it.
func ProcessWebhook(ctx context.Context, task *asynq.Task) error {
	conf, err := config.Fetch()
	if err != nil {
		return err
	}

	if conf.Notification.Webhook.Url == "" {
		return nil
	}
	var payload NewWebhook
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		log.Printf("Error unmarshaling task payload: %v", err)
		return err
	}
	log.Printf("Processing webhook: %+v\n", payload.Event)
	return processHTTP(ctx, payload)
}

// notifyOutcome sends the webhook for a finished action and escalates a
// failed compensation. Failures here are logged and never change the
// action's result.
func (p *Platform) notifyOutcome(ctx context.Context, action, identity, reference string, result *model.ActionResult, actionErr error) {
	ctx = context.WithoutCancel(ctx)
	event := getEventFromError(actionErr)

	if event == EventActionCompensationFailed {
		apiErr := apierror.As(actionErr, apierror.ErrCompensationFailed)
		err := notification.EscalateCompensationFailure(ctx, notification.Escalation{
			Action:    action,
			Identity:  identity,
			Reference: reference,
			Error:     apiErr.Message,
			Report:    apiErr.Details,
		}, p.escalate)
		if err != nil {
			logrus.WithError(err).WithField("reference", reference).Error("compensation escalation failed")
		}
		return
	}

	if p.queue == nil {
		return
	}

	var payload interface{} = result
	if actionErr != nil {
		payload = RejectedAction{
			Action:    action,
			Identity:  identity,
			Reference: reference,
			Error:     apierror.As(actionErr, apierror.ErrActionRejected),
		}
	}
	if err := p.queue.SendWebhook(ctx, NewWebhook{Event: event, Payload: payload}); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"event":     event,
			"reference": reference,
		}).Error("failed to enqueue webhook")
	}
}
