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

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/caddyserver/certmagic"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/posthog/posthog-go"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jerry-enebeli/rwa"
	"github.com/jerry-enebeli/rwa/api"
	"github.com/jerry-enebeli/rwa/config"
	"github.com/jerry-enebeli/rwa/internal/notification"
	trace "github.com/jerry-enebeli/rwa/internal/traces"
)

/*
serveTLS starts an HTTPS server with certificates managed by CertMagic.
If no domain is specified, the server will default to running on localhost.
*/
func serveTLS(r http.Handler, conf config.ServerConfig) error {
	certmagic.DefaultACME.Agreed = true
	certmagic.DefaultACME.Email = conf.Email
	cfg := certmagic.NewDefault()
	cfg.Storage = &certmagic.FileStorage{Path: "rwa/certmagic"}

	domains := []string{conf.Domain}
	if conf.Domain == "" {
		log.Println("No domain specified, defaulting to localhost")
		domains = []string{"localhost"}
	}

	if err := cfg.ManageSync(context.Background(), domains); err != nil {
		return err
	}

	server := &http.Server{
		Addr:      ":" + conf.Port,
		Handler:   r,
		TLSConfig: cfg.TLSConfig(),
	}

	log.Printf("Starting HTTPS server on %s\n", conf.Port)
	if err := server.ListenAndServeTLS("", ""); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTPS server: %w", err)
	}
	return nil
}

// sendHeartbeat reports service liveness to PostHog every five minutes.
func sendHeartbeat(client posthog.Client, heartbeatID, service string) {
	ticker := time.NewTicker(5 * time.Minute)
	go func() {
		for now := range ticker.C {
			err := client.Enqueue(posthog.Capture{
				DistinctId: heartbeatID,
				Event:      "rwa_heartbeat",
				Properties: posthog.NewProperties().
					Set("service", service).
					Set("timestamp", now.UTC()),
			})
			if err != nil {
				logrus.WithError(err).Warn("failed to send heartbeat")
			}
		}
	}()
}

func initializePostHog(service string) posthog.Client {
	client, err := posthog.NewWithConfig("phc_XbsHF5iBSnPiTA96gl7xygazrwBa0r2Ut4vEHoBHNiG",
		posthog.Config{Endpoint: "https://us.i.posthog.com"})
	if err != nil {
		logrus.WithError(err).Warn("posthog disabled")
		return nil
	}
	sendHeartbeat(client, uuid.New().String(), service)
	return client
}

func startServer(router *gin.Engine, cfg config.ServerConfig) error {
	if cfg.SSL {
		return serveTLS(router, cfg)
	}
	log.Printf("Starting server on http://localhost:%s", cfg.Port)
	return router.Run(":" + cfg.Port)
}

// initializeObservability starts tracing and the PostHog heartbeat for
// service when telemetry is enabled. The returned shutdown is never nil.
func initializeObservability(ctx context.Context, cfg *config.Configuration, service string) (posthog.Client, func(context.Context) error, error) {
	if !cfg.EnableTelemetry {
		return nil, func(context.Context) error { return nil }, nil
	}

	shutdown, err := trace.SetupOTelSDK(ctx, service)
	if err != nil {
		return nil, nil, fmt.Errorf("error setting up OTel SDK: %v", err)
	}
	return initializePostHog(service), shutdown, nil
}

// serverCommands returns the start command: it connects the platform to
// redis and the configured services and serves the HTTP API.
func serverCommands(r *rwaInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "start the rwa api server",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()

			phClient, shutdown, err := initializeObservability(ctx, r.cnf, "rwa-api")
			if err != nil {
				log.Fatal(err)
			}
			defer func() {
				if err := shutdown(ctx); err != nil {
					log.Printf("Error during shutdown: %v", err)
				}
			}()
			if phClient != nil {
				defer phClient.Close()
			}

			platform, redisClient, err := rwa.NewPlatformFromConfig()
			if err != nil {
				notification.NotifyError(err)
				log.Fatal(err)
			}
			defer func() {
				_ = platform.Close()
				_ = redisClient.Close()
			}()

			logrus.WithField("currencies", len(platform.Currencies())).Info("platform ready")
			if err := startServer(api.NewAPI(platform).Router(), r.cnf.Server); err != nil {
				log.Fatal(err)
			}
		},
	}

	return cmd
}
