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

// Package blobstore defines the blob backend a completed upload is
// committed to. Backends treat the payload as opaque bytes.
package blobstore

import (
	"context"
	"io"
)

// Blobstore stores binary payloads under a key.
type Blobstore interface {
	// Upload stores size bytes from r under the given key.
	Upload(ctx context.Context, key string, r io.Reader, size int64) error
	// Delete removes the blob stored under the given key.
	Delete(ctx context.Context, key string) error
}
