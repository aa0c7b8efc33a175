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

package request

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// ResponseError is a non-2xx answer from a remote service. Code and Message
// come from the {code, error} body when the service sent one.
type ResponseError struct {
	Method  string
	URL     string
	Status  int
	Code    string
	Message string
}

func (e *ResponseError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Code != "" {
		return fmt.Sprintf("%s %s: %d %s: %s", e.Method, e.URL, e.Status, e.Code, msg)
	}
	return fmt.Sprintf("%s %s: %d: %s", e.Method, e.URL, e.Status, msg)
}

// Client issues JSON requests against one service. Every call is bounded by
// the client timeout on top of the caller's context.
type Client struct {
	http      *http.Client
	baseURL   string
	authToken string
	headers   map[string]string
	timeout   time.Duration
}

func NewClient(baseURL, authToken string, timeout time.Duration) *Client {
	return &Client{
		http:      &http.Client{},
		baseURL:   strings.TrimRight(baseURL, "/"),
		authToken: authToken,
		timeout:   timeout,
	}
}

// WithHTTPClient swaps the underlying client, mostly for tests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.http = hc
	return c
}

// WithHeaders adds headers to every request sent by c.
func (c *Client) WithHeaders(headers map[string]string) *Client {
	c.headers = headers
	return c
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// ToJsonReq serializes payload into a request body.
func ToJsonReq(payload interface{}) (*bytes.Buffer, error) {
	c, e := json.Marshal(payload)
	if e != nil {
		return nil, e
	}
	return bytes.NewBuffer(c), nil
}

// Do sends body (if any) as JSON and decodes a successful response into out
// (if any). Transport failures keep the context error reachable through
// errors.Is so callers can tell a deadline from an unreachable host.
func (c *Client) Do(ctx context.Context, method, path string, body, out interface{}) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var reader io.Reader
	if body != nil {
		buf, err := ToJsonReq(body)
		if err != nil {
			return errors.Wrap(err, "encoding request body")
		}
		reader = buf
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return errors.Wrapf(err, "building %s %s", method, url)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return errors.Wrapf(ctxErr, "%s %s", method, url)
		}
		return errors.Wrapf(err, "%s %s", method, url)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respErr := &ResponseError{Method: method, URL: url, Status: resp.StatusCode}
		var payload struct {
			Code    string `json:"code"`
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		if json.Unmarshal(raw, &payload) == nil {
			respErr.Code = payload.Code
			respErr.Message = payload.Error
			if respErr.Message == "" {
				respErr.Message = payload.Message
			}
		} else {
			respErr.Message = strings.TrimSpace(string(raw))
		}
		return respErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return errors.Wrapf(ctxErr, "%s %s", method, url)
		}
		return errors.Wrapf(err, "decoding %s %s response", method, url)
	}
	return nil
}
