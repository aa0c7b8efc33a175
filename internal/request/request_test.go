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

package request_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jerry-enebeli/rwa/internal/request"
)

func TestToJsonReq_Success(t *testing.T) {
	payload := map[string]string{
		"key": "value",
	}

	reqBuffer, err := request.ToJsonReq(payload)
	assert.NoError(t, err)

	expectedJSON, _ := json.Marshal(payload)
	assert.Equal(t, expectedJSON, reqBuffer.Bytes())
}

func TestToJsonReq_Fail(t *testing.T) {
	payload := map[string]interface{}{
		"key": make(chan int), // invalid data type for JSON encoding
	}

	reqBuffer, err := request.ToJsonReq(payload)
	assert.Error(t, err)
	assert.Nil(t, reqBuffer)
}

func TestDo_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "/accounts/alice/balances/ICP/debit", r.URL.Path)

		var body map[string]int64
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, int64(40), body["amount"])

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"balance":60}`))
	}))
	defer server.Close()

	client := request.NewClient(server.URL+"/", "secret", time.Second)
	var out struct {
		Balance int64 `json:"balance"`
	}
	err := client.Do(context.Background(), http.MethodPost, "/accounts/alice/balances/ICP/debit", map[string]int64{"amount": 40}, &out)
	require.NoError(t, err)
	assert.Equal(t, int64(60), out.Balance)
}

func TestDo_ResponseError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":"INSUFFICIENT_FUNDS","error":"balance 10 is below 40"}`))
	}))
	defer server.Close()

	client := request.NewClient(server.URL, "", time.Second)
	err := client.Do(context.Background(), http.MethodPost, "/debit", nil, nil)

	var respErr *request.ResponseError
	require.True(t, errors.As(err, &respErr))
	assert.Equal(t, http.StatusBadRequest, respErr.Status)
	assert.Equal(t, "INSUFFICIENT_FUNDS", respErr.Code)
	assert.Equal(t, "balance 10 is below 40", respErr.Message)
}

func TestDo_PlainTextError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer server.Close()

	client := request.NewClient(server.URL, "", time.Second)
	err := client.Do(context.Background(), http.MethodGet, "/listings", nil, nil)

	var respErr *request.ResponseError
	require.True(t, errors.As(err, &respErr))
	assert.Equal(t, http.StatusBadGateway, respErr.Status)
	assert.Equal(t, "bad gateway", respErr.Message)
}

func TestDo_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := request.NewClient(server.URL, "", 50*time.Millisecond)
	err := client.Do(context.Background(), http.MethodGet, "/slow", nil, nil)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestDo_TransportError(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodGet, "http://ledger.local/history/alice",
		httpmock.NewErrorResponder(errors.New("connection refused")))

	client := request.NewClient("http://ledger.local", "", time.Second)
	err := client.Do(context.Background(), http.MethodGet, "/history/alice", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.False(t, errors.Is(err, context.DeadlineExceeded))

	var respErr *request.ResponseError
	assert.False(t, errors.As(err, &respErr))
}
