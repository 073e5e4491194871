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

// Package storage defines the narrow interface the upload handlers
// consume. Implementations buffer partial chunks on local disk and
// commit completed uploads to a blob backend while indexing metadata.
package storage

import (
	"context"
	"io"
	"time"

	"github.com/roadmetrics/collector/pkg/meta"
	"github.com/roadmetrics/collector/pkg/user"
)

// ByteRange is a parsed Content-Range: bytes From-To/Total.
type ByteRange struct {
	From  int64
	To    int64
	Total int64
}

// Len returns the number of bytes this range covers.
func (r ByteRange) Len() int64 {
	return r.To - r.From + 1
}

// UploadRequest describes one chunk arriving for an upload session.
type UploadRequest struct {
	// ID is the upload identifier; it names the temporary chunk file
	// and becomes the blob's logical filename on commit.
	ID string

	User       *user.User
	Uploadable *meta.Uploadable
	Range      ByteRange
}

// Result is the outcome of storing one chunk.
type Result struct {
	// Complete is true when the upload reached the declared total and
	// was committed to the blob store.
	Complete bool
	// Size is the number of bytes accepted for the upload so far.
	Size int64
}

// Service is the storage contract consumed by the upload handlers.
type Service interface {
	// IsStored reports whether an upload with the given key is durable.
	IsStored(ctx context.Context, k meta.StorageKey) (bool, error)

	// BytesUploaded returns the size of the temporary chunk for the
	// given upload, or errtypes.NotFound if no chunk exists.
	BytesUploaded(ctx context.Context, id string) (int64, error)

	// Store streams the chunk body to the temporary file and, when the
	// upload is complete, commits it to the blob store and indexes the
	// metadata. The commit is atomic: on any failure after the append,
	// the temporary chunk survives for a later retry.
	Store(ctx context.Context, r io.Reader, req *UploadRequest) (*Result, error)

	// Clean removes the temporary chunk for the given upload.
	Clean(ctx context.Context, id string) error

	// StartPeriodicCleanup runs the reaper every expiration interval
	// until ctx is cancelled, deleting temporary chunks whose last
	// modification is older than the expiration window.
	StartPeriodicCleanup(ctx context.Context, expiration time.Duration)

	// Close releases backend resources.
	Close() error
}
