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
	"net/url"
	"path"
	"strconv"

	"github.com/roadmetrics/collector/pkg/appctx"
	"github.com/roadmetrics/collector/pkg/errtypes"
	"github.com/roadmetrics/collector/pkg/meta"
	"github.com/roadmetrics/collector/pkg/metrics"
)

// uploadLengthHeader announces the size of the payload the client
// intends to upload after a successful pre-request.
const uploadLengthHeader = "x-upload-content-length"

// handlePreRequest validates the metadata of an announced upload,
// checks for a prior completion and reserves an upload session. The
// client learns the session scoped resumable location from the
// Location header.
func (s *svc) handlePreRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := appctx.GetLogger(ctx)

	uploadable, err := s.parsePreRequest(w, r)
	if err != nil {
		metrics.PreRequestsRejected.Inc()
		s.writeError(w, r, err)
		return
	}

	stored, err := s.store.IsStored(ctx, uploadable.Key())
	if err != nil {
		metrics.PreRequestsRejected.Inc()
		s.writeError(w, r, err)
		return
	}
	if stored {
		metrics.PreRequestsRejected.Inc()
		s.writeError(w, r, errtypes.Conflict("measurement already stored"))
		return
	}

	sess := s.sessions.New(uploadable)
	log.Info().Str("upload", sess.ID).
		Str("device", uploadable.DeviceID).
		Int64("measurement", uploadable.MeasurementID).
		Msg("upload session created")
	metrics.PreRequestsAccepted.Inc()

	w.Header().Set("Location", s.resumableLocation(r, sess.ID))
	w.Header().Set("Content-Length", "0")
	w.WriteHeader(http.StatusOK)
}

func (s *svc) parsePreRequest(w http.ResponseWriter, r *http.Request) (*meta.Uploadable, error) {
	body := http.MaxBytesReader(w, r.Body, preRequestBodyLimit)
	defer body.Close()

	uploadable, err := meta.FromJSON(body)
	if err != nil {
		return nil, err
	}
	if err := uploadable.Validate(); err != nil {
		return nil, err
	}
	if err := uploadable.CheckSkip(); err != nil {
		return nil, err
	}

	declared, err := strconv.ParseInt(r.Header.Get(uploadLengthHeader), 10, 64)
	if err != nil {
		return nil, errtypes.Unparsable(uploadLengthHeader + " header missing or invalid")
	}
	if declared > s.conf.PayloadLimitBytes {
		return nil, errtypes.PayloadTooLarge(strconv.FormatInt(declared, 10))
	}
	return uploadable, nil
}

// resumableLocation builds the URL the client PUTs its chunks to. The
// uploadType marker of the pre-request is stripped; a trusted proxy may
// override the scheme via X-Forwarded-Proto.
func (s *svc) resumableLocation(r *http.Request, sessionID string) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if fwd := r.Header.Get("X-Forwarded-Proto"); fwd != "" {
		scheme = fwd
	}

	query := r.URL.Query()
	query.Del("uploadType")

	loc := url.URL{
		Scheme:   scheme,
		Host:     r.Host,
		Path:     path.Join("/", s.conf.Prefix, "measurements", "("+sessionID+")") + "/",
		RawQuery: query.Encode(),
	}
	return loc.String()
}
