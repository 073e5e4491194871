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

// Package collector implements the resumable measurement upload
// endpoint: a metadata pre-request reserves an upload session, binary
// chunks stream into a temporary file, and the completed payload is
// committed to the configured storage backend.
package collector

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/roadmetrics/collector/pkg/rhttp/global"
	"github.com/roadmetrics/collector/pkg/session"
	"github.com/roadmetrics/collector/pkg/storage"
	"github.com/roadmetrics/collector/pkg/storage/registry"
	"github.com/rs/zerolog"
)

func init() {
	global.Register("collector", New)
}

// preRequestBodyLimit caps the metadata JSON of a pre-request.
const preRequestBodyLimit = 2 << 10

type config struct {
	Prefix string `mapstructure:"prefix"`
	// PayloadLimitBytes is the maximum declared upload size.
	PayloadLimitBytes int64 `mapstructure:"measurement_payload_limit_bytes"`
	// UploadExpirationMillis bounds how long an untouched session and
	// its temporary chunk survive. Also the reaper tick.
	UploadExpirationMillis int64                             `mapstructure:"upload_expiration_ms"`
	Storage                string                            `mapstructure:"storage"`
	Storages               map[string]map[string]interface{} `mapstructure:"storages"`
}

func (c *config) ApplyDefaults() {
	if c.Prefix == "" {
		c.Prefix = "api/v4"
	}
	if c.PayloadLimitBytes == 0 {
		c.PayloadLimitBytes = 100 << 20
	}
	if c.UploadExpirationMillis == 0 {
		c.UploadExpirationMillis = int64(time.Hour / time.Millisecond)
	}
	if c.Storage == "" {
		c.Storage = "local"
	}
}

type svc struct {
	conf     *config
	log      *zerolog.Logger
	sessions *session.Store
	store    storage.Service
	router   chi.Router
	stop     context.CancelFunc
}

// New returns the collector service.
func New(m map[string]interface{}, log *zerolog.Logger) (global.Service, error) {
	conf := &config{}
	if err := mapstructure.Decode(m, conf); err != nil {
		return nil, errors.Wrap(err, "collector: error decoding conf")
	}
	conf.ApplyDefaults()

	newFunc, ok := registry.NewFuncs[conf.Storage]
	if !ok {
		return nil, errors.Errorf("collector: storage driver not found: %s", conf.Storage)
	}
	store, err := newFunc(conf.Storages[conf.Storage], log.With().Str("pkg", "storage").Logger())
	if err != nil {
		return nil, errors.Wrapf(err, "collector: storage driver %s could not be started", conf.Storage)
	}

	expiration := time.Duration(conf.UploadExpirationMillis) * time.Millisecond
	reaperCtx, stop := context.WithCancel(context.Background())
	store.StartPeriodicCleanup(reaperCtx, expiration)

	s := &svc{
		conf:     conf,
		log:      log,
		sessions: session.NewStore(expiration),
		store:    store,
		stop:     stop,
	}
	s.setRouter()
	return s, nil
}

func (s *svc) setRouter() {
	r := chi.NewRouter()
	r.Get("/", s.handleDescription)
	r.Post("/measurements", s.handlePreRequest)
	r.Put("/measurements/({sessionID})/", s.handleUpload)
	s.router = r
}

func (s *svc) Handler() http.Handler {
	return s.router
}

func (s *svc) Prefix() string {
	return s.conf.Prefix
}

// Unprotected exposes the API description without a bearer token.
func (s *svc) Unprotected() []string {
	return []string{"/"}
}

func (s *svc) Close() error {
	s.stop()
	s.sessions.Close()
	return s.store.Close()
}

// handleDescription answers the unauthenticated service description.
func (s *svc) handleDescription(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"name":         "collector",
		"measurements": "/" + s.conf.Prefix + "/measurements",
		"protocol":     "resumable-upload",
	})
}
