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

package collector

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/roadmetrics/collector/pkg/appctx"
	"github.com/roadmetrics/collector/pkg/errtypes"
	"github.com/roadmetrics/collector/pkg/meta"
	"github.com/roadmetrics/collector/pkg/metrics"
	"github.com/roadmetrics/collector/pkg/storage"
	"github.com/roadmetrics/collector/pkg/storage/chunks"
	"github.com/roadmetrics/collector/pkg/user"
)

// handleUpload drives the per-session upload state machine. The
// relationship between the chunk's Content-Range and the bytes already
// on disk decides whether the chunk is appended, the client is pointed
// at the correct resume offset, or the session is declared lost.
func (s *svc) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := appctx.GetLogger(ctx)
	sid := chi.URLParam(r, "sessionID")

	header := r.Header.Get("Content-Range")
	if total, ok := parseStatusRange(header); ok {
		s.handleStatus(w, r, sid, total)
		return
	}

	rng, err := parseContentRange(header)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if r.ContentLength >= 0 && r.ContentLength != rng.Len() {
		s.writeError(w, r, errtypes.Unparsable("body length does not match content range"))
		return
	}

	// metadata mirrored into headers is re-validated when present; the
	// copy bound at pre-request time stays authoritative
	if hu, present, err := meta.FromHeaders(r.Header); err != nil {
		s.writeError(w, r, err)
		return
	} else if present {
		if err := hu.Validate(); err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	sess, ok := s.sessions.Get(sid)
	if !ok {
		s.writeError(w, r, errtypes.SessionExpired(sid))
		return
	}

	if rng.Total > s.conf.PayloadLimitBytes {
		s.sessions.Remove(sid)
		if err := s.store.Clean(ctx, sid); err != nil {
			log.Error().Err(err).Str("upload", sid).Msg("error cleaning oversize upload")
		}
		s.writeError(w, r, errtypes.PayloadTooLarge(strconv.FormatInt(rng.Total, 10)))
		return
	}

	size, err := s.store.BytesUploaded(ctx, sid)
	switch {
	case err != nil && isNotFound(err):
		// no chunk on disk: a fresh session accepts only offset zero.
		// A client resuming against a reaped chunk lost its session.
		if rng.From != 0 {
			s.sessions.Remove(sid)
			s.writeError(w, r, errtypes.SessionExpired(sid))
			return
		}
	case err != nil:
		s.writeError(w, r, err)
		return
	default:
		// replayed or out of order chunks are discarded; the client
		// learns the offset to resume from
		if rng.From != size {
			writeResumeIncomplete(w, size)
			return
		}
	}

	res, err := s.store.Store(ctx, r.Body, &storage.UploadRequest{
		ID:         sid,
		User:       user.ContextMustGetUser(ctx),
		Uploadable: sess.Uploadable,
		Range:      rng,
	})
	if err != nil {
		var offset *chunks.OffsetError
		if errors.As(err, &offset) {
			// a concurrent chunk won the race for this offset
			writeResumeIncomplete(w, offset.Have)
			return
		}
		var dup errtypes.IsConflict
		if errors.As(err, &dup) {
			// someone else completed the same measurement first
			s.sessions.Remove(sid)
			if cerr := s.store.Clean(ctx, sid); cerr != nil {
				log.Error().Err(cerr).Str("upload", sid).Msg("error cleaning duplicate upload")
			}
			s.writeError(w, r, err)
			return
		}
		// storage failure: session and chunk survive for a retry
		s.writeError(w, r, err)
		return
	}

	metrics.ChunksReceived.Inc()
	if accepted := res.Size - rng.From; accepted > 0 {
		metrics.BytesAccepted.Add(float64(accepted))
	}

	if !res.Complete {
		writeResumeIncomplete(w, res.Size)
		return
	}

	s.sessions.Pop(sid)
	log.Info().Str("upload", sid).
		Str("device", sess.Uploadable.DeviceID).
		Int64("measurement", sess.Uploadable.MeasurementID).
		Int64("size", res.Size).
		Msg("upload completed")
	w.Header().Set("Content-Length", "0")
	w.WriteHeader(http.StatusCreated)
}

func isNotFound(err error) bool {
	var nf errtypes.IsNotFound
	return errors.As(err, &nf)
}
