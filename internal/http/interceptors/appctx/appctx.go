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

// Package appctx seeds every request context with a correlation id and
// a sublogger carrying it.
package appctx

import (
	"net/http"

	"github.com/roadmetrics/collector/pkg/appctx"
	"github.com/roadmetrics/collector/pkg/reqid"
	"github.com/rs/zerolog"
)

// New returns a middleware that stores the logger and the request id in
// the request context. An X-Request-Id sent by the client is kept so
// traces can be correlated across hops.
func New(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(reqid.ReqIDHeaderName)
			if id == "" {
				id = reqid.MintReqID()
			}

			sub := log.With().Str("request-id", id).Logger()
			ctx := reqid.ContextSetReqID(r.Context(), id)
			ctx = appctx.WithLogger(ctx, &sub)

			w.Header().Set(reqid.ReqIDHeaderName, id)
			h.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
