// Copyright 2018-2024 CERN
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
//
// In applying this license, CERN does not waive the privileges and immunities
// granted to it by virtue of its status as an Intergovernmental Organization
// or submit itself to any jurisdiction.

// Package prometheus exposes the process and upload counters for scraping.
package prometheus

import (
	"net/http"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/roadmetrics/collector/pkg/rhttp/global"
	"github.com/rs/zerolog"
)

func init() {
	global.Register("prometheus", New)
}

type config struct {
	Prefix string `mapstructure:"prefix"`
}

type svc struct {
	prefix  string
	handler http.Handler
}

// New returns the prometheus scrape endpoint.
func New(m map[string]interface{}, log *zerolog.Logger) (global.Service, error) {
	conf := &config{}
	if err := mapstructure.Decode(m, conf); err != nil {
		return nil, errors.Wrap(err, "prometheus: error decoding conf")
	}
	if conf.Prefix == "" {
		conf.Prefix = "metrics"
	}
	return &svc{prefix: conf.Prefix, handler: promhttp.Handler()}, nil
}

func (s *svc) Handler() http.Handler {
	return s.handler
}

func (s *svc) Prefix() string {
	return s.prefix
}

// Unprotected exposes the scrape endpoint without a bearer token; keep it
// firewalled in deployments.
func (s *svc) Unprotected() []string {
	return []string{"/"}
}

func (s *svc) Close() error {
	return nil
}
