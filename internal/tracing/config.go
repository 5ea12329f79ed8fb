// Copyright 2025 Tom Barlow
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

package tracing

import (
	"github.com/tombee/chord/internal/config"
)

// Config holds observability configuration.
type Config struct {
	// Enabled controls whether spans are exported.
	Enabled bool

	// ServiceName identifies this service in traces.
	ServiceName string

	// ServiceVersion is the application version.
	ServiceVersion string

	// Exporter is one of none, console, otlp_http.
	Exporter string

	// Endpoint is the OTLP collector host:port.
	Endpoint string

	// Insecure disables TLS towards the collector.
	Insecure bool

	// SampleRatio is the fraction of root spans sampled (0.0 - 1.0).
	SampleRatio float64
}

// FromConfig maps the tracing section of the runtime configuration.
func FromConfig(cfg config.TracingConfig, version string) Config {
	return Config{
		Enabled:        cfg.Enabled,
		ServiceName:    cfg.ServiceName,
		ServiceVersion: version,
		Exporter:       cfg.Exporter,
		Endpoint:       cfg.Endpoint,
		Insecure:       cfg.Insecure,
		SampleRatio:    cfg.SampleRatio,
	}
}
