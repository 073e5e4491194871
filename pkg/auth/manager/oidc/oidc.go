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

// Package oidc validates bearer tokens against the JWKS published by an
// OpenID Connect issuer. Key rollover is handled by the remote key set.
package oidc

import (
	"context"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/roadmetrics/collector/pkg/auth"
	"github.com/roadmetrics/collector/pkg/auth/manager/registry"
	"github.com/roadmetrics/collector/pkg/errtypes"
	"github.com/roadmetrics/collector/pkg/user"
)

func init() {
	registry.Register("oidc", New)
}

type config struct {
	// Issuer is the OIDC issuer URL; discovery runs against it at boot.
	Issuer string `mapstructure:"issuer"`
	// ClientID, when set, is enforced as the token audience.
	ClientID string `mapstructure:"client_id"`
}

type manager struct {
	verifier *oidc.IDTokenVerifier
}

type claims struct {
	Name              string `json:"name"`
	PreferredUsername string `json:"preferred_username"`
}

func parseConfig(m map[string]interface{}) (*config, error) {
	c := &config{}
	if err := mapstructure.Decode(m, c); err != nil {
		return nil, errors.Wrap(err, "error decoding conf")
	}
	return c, nil
}

// New returns an auth manager that validates tokens against an OIDC issuer.
func New(m map[string]interface{}) (auth.Manager, error) {
	conf, err := parseConfig(m)
	if err != nil {
		return nil, err
	}
	if conf.Issuer == "" {
		return nil, errors.New("oidc: issuer not configured")
	}

	provider, err := oidc.NewProvider(context.Background(), conf.Issuer)
	if err != nil {
		return nil, errors.Wrapf(err, "oidc: discovery against %s failed", conf.Issuer)
	}

	oc := &oidc.Config{ClientID: conf.ClientID}
	if conf.ClientID == "" {
		oc.SkipClientIDCheck = true
	}

	return &manager{verifier: provider.Verifier(oc)}, nil
}

func (m *manager) Authenticate(ctx context.Context, token string) (*user.User, error) {
	t, err := m.verifier.Verify(ctx, token)
	if err != nil {
		return nil, errtypes.InvalidCredentials("token does not verify: " + err.Error())
	}

	c := &claims{}
	if err := t.Claims(c); err != nil {
		return nil, errtypes.InvalidCredentials("error decoding token claims")
	}

	name := c.Name
	if name == "" {
		name = c.PreferredUsername
	}
	if name == "" {
		name = t.Subject
	}
	return &user.User{ID: t.Subject, DisplayName: name}, nil
}
