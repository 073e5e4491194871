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

package storage

import (
	"context"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/roadmetrics/collector/pkg/errtypes"
	"github.com/roadmetrics/collector/pkg/meta"
	"github.com/roadmetrics/collector/pkg/metrics"
	"github.com/roadmetrics/collector/pkg/storage/blobstore"
	"github.com/roadmetrics/collector/pkg/storage/chunks"
	"github.com/roadmetrics/collector/pkg/storage/index"
	"github.com/rs/zerolog"
)

type service struct {
	chunks *chunks.Store
	blobs  blobstore.Blobstore
	index  *index.Index
	log    zerolog.Logger
}

// NewService composes a storage service from a chunk directory, a blob
// backend and the metadata index. Drivers differ only in the blobstore.
func NewService(c *chunks.Store, bs blobstore.Blobstore, idx *index.Index, log zerolog.Logger) Service {
	return &service{chunks: c, blobs: bs, index: idx, log: log}
}

func (s *service) IsStored(ctx context.Context, k meta.StorageKey) (bool, error) {
	return s.index.IsStored(ctx, k)
}

func (s *service) BytesUploaded(ctx context.Context, id string) (int64, error) {
	return s.chunks.Size(id)
}

func (s *service) Store(ctx context.Context, r io.Reader, req *UploadRequest) (*Result, error) {
	size, err := s.chunks.Append(req.ID, req.Range.From, io.LimitReader(r, req.Range.Len()))
	if err != nil {
		return &Result{Size: size}, err
	}

	if size < req.Range.Total {
		return &Result{Size: size}, nil
	}
	if size > req.Range.Total {
		// the client declared less than it sent, nothing sane can be
		// committed from this chunk file
		return &Result{Size: size}, errtypes.ContentRangeMismatch(
			"accepted " + strconv.FormatInt(size, 10) + " of declared " + strconv.FormatInt(req.Range.Total, 10))
	}

	if err := s.commit(ctx, req, size); err != nil {
		return &Result{Size: size}, err
	}
	return &Result{Complete: true, Size: size}, nil
}

// commit moves the completed chunk into the blob store and indexes its
// metadata. Blob first, index second; a failed index insert rolls the
// blob back so no partial commit survives. The temporary chunk is only
// removed after both halves succeeded.
func (s *service) commit(ctx context.Context, req *UploadRequest, size int64) error {
	f, err := os.Open(s.chunks.Path(req.ID))
	if err != nil {
		return errors.Wrap(err, "storage: error opening completed chunk")
	}
	defer f.Close()

	if err := s.blobs.Upload(ctx, req.ID, f, size); err != nil {
		return errors.Wrap(err, "storage: error uploading blob")
	}

	doc := req.Uploadable.Document(req.User.ID)
	if err := s.index.Insert(ctx, req.Uploadable.Key(), req.User.ID, req.ID, size, doc); err != nil {
		if derr := s.blobs.Delete(ctx, req.ID); derr != nil {
			s.log.Error().Err(derr).Str("upload", req.ID).Msg("error rolling back blob after failed index insert")
		}
		return err
	}

	if err := s.chunks.Remove(req.ID); err != nil {
		// the commit is durable, the leftover chunk will be reaped
		s.log.Warn().Err(err).Str("upload", req.ID).Msg("error removing committed chunk")
	}
	metrics.UploadsCompleted.Inc()
	return nil
}

func (s *service) Clean(ctx context.Context, id string) error {
	return s.chunks.Remove(id)
}

func (s *service) StartPeriodicCleanup(ctx context.Context, expiration time.Duration) {
	go func() {
		ticker := time.NewTicker(expiration)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				reaped := s.chunks.Reap(expiration, func(id string, err error) {
					s.log.Error().Err(err).Str("upload", id).Msg("reaper: error deleting aged chunk")
				})
				for _, id := range reaped {
					s.log.Info().Str("upload", id).Msg("reaper: deleted aged chunk")
				}
				metrics.ChunksReaped.Add(float64(len(reaped)))
			}
		}
	}()
}

func (s *service) Close() error {
	return s.index.Close()
}
