// Copyright 2026 The Authgate Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Config holds metrics configuration
type Config struct {
	Enabled bool
}

// Meter wraps OpenTelemetry meter
type Meter struct {
	meter metric.Meter
}

// New creates a new meter instance
func New(ctx context.Context, cfg Config, serviceName string) (*Meter, error) {
	if !cfg.Enabled {
		return &Meter{
			meter: otel.Meter("noop"),
		}, nil
	}

	return &Meter{
		meter: otel.Meter(serviceName),
	}, nil
}

// LoginCounters bundles the authentication counters exposed by the
// service.
type LoginCounters struct {
	Success  metric.Int64Counter
	Failure  metric.Int64Counter
	Lockouts metric.Int64Counter
}

// NewLoginCounters creates the authentication counters
func (m *Meter) NewLoginCounters() (*LoginCounters, error) {
	success, err := m.meter.Int64Counter("auth.login.success",
		metric.WithDescription("Successful logins"))
	if err != nil {
		return nil, fmt.Errorf("failed to create counter: %w", err)
	}
	failure, err := m.meter.Int64Counter("auth.login.failure",
		metric.WithDescription("Failed login attempts"))
	if err != nil {
		return nil, fmt.Errorf("failed to create counter: %w", err)
	}
	lockouts, err := m.meter.Int64Counter("auth.lockouts",
		metric.WithDescription("Accounts locked after repeated failures"))
	if err != nil {
		return nil, fmt.Errorf("failed to create counter: %w", err)
	}
	return &LoginCounters{Success: success, Failure: failure, Lockouts: lockouts}, nil
}

// RequestDuration creates the HTTP request duration histogram
func (m *Meter) RequestDuration() (metric.Float64Histogram, error) {
	histogram, err := m.meter.Float64Histogram(
		"http.server.duration",
		metric.WithDescription("HTTP request duration"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create histogram: %w", err)
	}
	return histogram, nil
}
