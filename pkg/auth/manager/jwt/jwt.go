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

// Package jwt validates bearer tokens against locally configured key
// material: either a shared HMAC secret or an RSA public key in PEM
// format. Useful for deployments without an OIDC issuer and for tests.
package jwt

import (
	"context"
	"os"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/roadmetrics/collector/pkg/auth"
	"github.com/roadmetrics/collector/pkg/auth/manager/registry"
	"github.com/roadmetrics/collector/pkg/errtypes"
	"github.com/roadmetrics/collector/pkg/user"
)

func init() {
	registry.Register("jwt", New)
}

type config struct {
	// Secret is the HMAC signing secret. Takes precedence when set.
	Secret string `mapstructure:"secret"`
	// PublicKeyFile points to an RSA public key in PEM format.
	PublicKeyFile string `mapstructure:"public_key_file"`
	// Audience, when set, must appear in the token's aud claim.
	Audience string `mapstructure:"audience"`
}

type manager struct {
	conf *config
	key  interface{}
}

type claims struct {
	Name              string `json:"name"`
	PreferredUsername string `json:"preferred_username"`
	jwt.RegisteredClaims
}

func parseConfig(m map[string]interface{}) (*config, error) {
	c := &config{}
	if err := mapstructure.Decode(m, c); err != nil {
		return nil, errors.Wrap(err, "error decoding conf")
	}
	return c, nil
}

// New returns an auth manager that validates JWT bearer tokens with
// static key material.
func New(m map[string]interface{}) (auth.Manager, error) {
	conf, err := parseConfig(m)
	if err != nil {
		return nil, err
	}

	mgr := &manager{conf: conf}
	switch {
	case conf.Secret != "":
		mgr.key = []byte(conf.Secret)
	case conf.PublicKeyFile != "":
		pem, err := os.ReadFile(conf.PublicKeyFile)
		if err != nil {
			return nil, errors.Wrap(err, "jwt: error reading public key file")
		}
		pub, err := jwt.ParseRSAPublicKeyFromPEM(pem)
		if err != nil {
			return nil, errors.Wrap(err, "jwt: error parsing public key")
		}
		mgr.key = pub
	default:
		return nil, errors.New("jwt: neither secret nor public_key_file configured")
	}
	return mgr, nil
}

func (m *manager) Authenticate(ctx context.Context, token string) (*user.User, error) {
	c := &claims{}
	methods := []string{"RS256", "RS384", "RS512"}
	if _, ok := m.key.([]byte); ok {
		methods = []string{"HS256", "HS384", "HS512"}
	}
	t, err := jwt.ParseWithClaims(token, c, func(t *jwt.Token) (interface{}, error) {
		return m.key, nil
	}, jwt.WithValidMethods(methods))
	if err != nil || !t.Valid {
		return nil, errtypes.InvalidCredentials("token does not verify")
	}
	if c.Subject == "" {
		return nil, errtypes.InvalidCredentials("token has no subject")
	}
	if m.conf.Audience != "" {
		found := false
		for _, a := range c.Audience {
			if a == m.conf.Audience {
				found = true
				break
			}
		}
		if !found {
			return nil, errtypes.PermissionDenied("token audience does not match")
		}
	}

	name := c.Name
	if name == "" {
		name = c.PreferredUsername
	}
	if name == "" {
		name = c.Subject
	}
	return &user.User{ID: c.Subject, DisplayName: name}, nil
}
