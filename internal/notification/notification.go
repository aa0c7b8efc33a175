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

package notification

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jerry-enebeli/rwa/config"
	"github.com/jerry-enebeli/rwa/internal/request"
)

const EventCompensationFailed = "action.compensation_failed"

// WebhookSender delivers an event to the configured webhook. The platform
// passes its own so this package does not import it.
type WebhookSender func(event string, payload interface{}) error

// Escalation describes an action whose compensation failed. Balances seen by
// the user and those held by the ledger may now differ.
type Escalation struct {
	Action    string      `json:"action"`
	Identity  string      `json:"identity"`
	Reference string      `json:"reference"`
	Error     string      `json:"error"`
	Report    interface{} `json:"report,omitempty"`
	Time      time.Time   `json:"time"`
}

type slackText struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

type slackBlock struct {
	Type   string      `json:"type"`
	Text   *slackText  `json:"text,omitempty"`
	Fields []slackText `json:"fields,omitempty"`
}

type slackMessage struct {
	Blocks []slackBlock `json:"blocks"`
}

func field(name string, value interface{}) slackText {
	return slackText{Type: "mrkdwn", Text: fmt.Sprintf("*%s:*\n%v", name, value)}
}

// SlackNotification posts a header and a list of fields to webhookURL.
func SlackNotification(ctx context.Context, webhookURL, title string, fields ...slackText) error {
	msg := slackMessage{Blocks: []slackBlock{
		{Type: "header", Text: &slackText{Type: "plain_text", Text: title, Emoji: true}},
	}}
	for _, f := range fields {
		msg.Blocks = append(msg.Blocks, slackBlock{Type: "section", Fields: []slackText{f}})
	}
	return request.NewClient(webhookURL, "", 10*time.Second).Do(ctx, http.MethodPost, "", msg, nil)
}

// NotifyError logs systemError and forwards it to Slack when configured.
// It does not block the caller.
func NotifyError(systemError error) {
	go func(systemError error) {
		logrus.Error(systemError)

		conf, err := config.Fetch()
		if err != nil {
			logrus.Error(err)
			return
		}
		if conf.Notification.Slack.WebhookUrl == "" {
			return
		}
		err = SlackNotification(context.Background(), conf.Notification.Slack.WebhookUrl, "Error From RWA Platform 🐞",
			field("Error", systemError.Error()),
			field("Time", time.Now().Format(time.RFC822)),
		)
		if err != nil {
			logrus.WithError(err).Error("slack notification failed")
		}
	}(systemError)
}

// EscalateCompensationFailure reports e to Slack and, when sender is not nil,
// to the webhook. Both are attempted; the first error is returned.
func EscalateCompensationFailure(ctx context.Context, e Escalation, sender WebhookSender) error {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	logrus.WithFields(logrus.Fields{
		"action":    e.Action,
		"identity":  e.Identity,
		"reference": e.Reference,
	}).Error("compensation failed, balances may be inconsistent: ", e.Error)

	var firstErr error
	conf, err := config.Fetch()
	if err == nil && conf.Notification.Slack.WebhookUrl != "" {
		err = SlackNotification(ctx, conf.Notification.Slack.WebhookUrl, "Compensation Failed 🚨",
			field("Action", e.Action),
			field("Identity", e.Identity),
			field("Reference", e.Reference),
			field("Error", e.Error),
			field("Time", e.Time.Format(time.RFC822)),
		)
		if err != nil {
			firstErr = err
		}
	}

	if sender != nil {
		if err := sender(EventCompensationFailed, e); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
