// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"log/slog"
	"net/http"
	"time"
)

// serviceOptions collects the optional configuration shared by the session
// service constructors.
type serviceOptions struct {
	logger *slog.Logger

	// Vertex AI backend only.
	apiClient       APIClient
	httpClient      *http.Client
	pollInterval    time.Duration
	maxPollAttempts int
}

// ServiceOption is a functional option for configuring a session service.
type ServiceOption func(*serviceOptions)

// WithLogger sets a custom logger for the service.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(o *serviceOptions) {
		o.logger = logger
	}
}

// WithAPIClient sets the API client used by the Vertex AI backend. Mostly
// useful for tests.
func WithAPIClient(client APIClient) ServiceOption {
	return func(o *serviceOptions) {
		o.apiClient = client
	}
}

// WithHTTPClient sets the HTTP client used by the Vertex AI backend's default
// API client.
func WithHTTPClient(client *http.Client) ServiceOption {
	return func(o *serviceOptions) {
		o.httpClient = client
	}
}

// WithPollInterval sets the interval between long-running-operation polls.
func WithPollInterval(interval time.Duration) ServiceOption {
	return func(o *serviceOptions) {
		o.pollInterval = interval
	}
}

// WithMaxPollAttempts sets the polling budget for long-running operations.
func WithMaxPollAttempts(attempts int) ServiceOption {
	return func(o *serviceOptions) {
		o.maxPollAttempts = attempts
	}
}

func applyOptions(opts []ServiceOption) *serviceOptions {
	o := &serviceOptions{
		logger:          slog.Default(),
		pollInterval:    1 * time.Second,
		maxPollAttempts: 5,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
