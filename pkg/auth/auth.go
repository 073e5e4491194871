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

// Package auth defines the contract for bearer token validation.
// Tokens are minted by an external identity provider; managers only
// verify them and extract the principal.
package auth

import (
	"context"

	"github.com/roadmetrics/collector/pkg/user"
)

// Manager verifies a bearer token and returns the principal it names.
// Implementations return errtypes.InvalidCredentials for tokens that do
// not verify and errtypes.PermissionDenied for tokens that verify but
// lack the required audience or scope.
type Manager interface {
	Authenticate(ctx context.Context, token string) (*user.User, error)
}
