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

// Package auth is the bearer token boundary. Every route except the
// explicitly unprotected ones requires a verified principal; the token
// itself stays opaque here, validation is delegated to the configured
// auth manager.
package auth

import (
	"net/http"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/roadmetrics/collector/pkg/appctx"
	"github.com/roadmetrics/collector/pkg/auth"
	"github.com/roadmetrics/collector/pkg/auth/manager/registry"
	"github.com/roadmetrics/collector/pkg/errtypes"
	"github.com/roadmetrics/collector/pkg/user"
)

type config struct {
	// Manager selects the auth manager driver.
	Manager string `mapstructure:"manager"`
	// Managers holds the per driver configuration.
	Managers map[string]map[string]interface{} `mapstructure:"managers"`
	// Realm is optional, will be filled with the request host if not given.
	Realm string `mapstructure:"realm"`
}

func parseConfig(m map[string]interface{}) (*config, error) {
	c := &config{}
	if err := mapstructure.Decode(m, c); err != nil {
		return nil, errors.Wrap(err, "error decoding conf")
	}
	if c.Manager == "" {
		c.Manager = "oidc"
	}
	return c, nil
}

// New returns the auth middleware. Requests whose path is listed in
// unprotected pass through without a principal.
func New(m map[string]interface{}, unprotected []string) (func(http.Handler) http.Handler, error) {
	conf, err := parseConfig(m)
	if err != nil {
		return nil, err
	}

	newFunc, ok := registry.NewFuncs[conf.Manager]
	if !ok {
		return nil, errors.Errorf("auth manager not found: %s", conf.Manager)
	}
	mgr, err := newFunc(conf.Managers[conf.Manager])
	if err != nil {
		return nil, err
	}

	return Middleware(mgr, conf.Realm, unprotected), nil
}

// Middleware builds the bearer check around an already constructed manager.
func Middleware(mgr auth.Manager, realm string, unprotected []string) func(http.Handler) http.Handler {
	skip := map[string]struct{}{}
	for _, p := range unprotected {
		skip[strings.TrimRight(p, "/")] = struct{}{}
	}

	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := appctx.GetLogger(ctx)

			// preflight requests carry no credentials
			if r.Method == http.MethodOptions {
				h.ServeHTTP(w, r)
				return
			}

			if _, ok := skip[strings.TrimRight(r.URL.Path, "/")]; ok {
				h.ServeHTTP(w, r)
				return
			}

			tkn := bearerToken(r)
			if tkn == "" {
				rlm := realm
				if rlm == "" {
					rlm = r.Host
				}
				w.Header().Set("WWW-Authenticate", `Bearer realm="`+rlm+`"`)
				w.WriteHeader(http.StatusUnauthorized)
				return
			}

			u, err := mgr.Authenticate(ctx, tkn)
			if err != nil {
				var pd errtypes.IsPermissionDenied
				if errors.As(err, &pd) {
					log.Warn().Err(err).Msg("token verified but not authorized")
					w.WriteHeader(http.StatusForbidden)
					return
				}
				log.Warn().Err(err).Msg("error authenticating bearer token")
				w.WriteHeader(http.StatusUnauthorized)
				return
			}

			ctx = user.ContextSetUser(ctx, u)
			h.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
