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

	"github.com/roadmetrics/collector/pkg/appctx"
	"github.com/roadmetrics/collector/pkg/meta"
)

// handleStatus answers an empty PUT carrying "bytes */<total>": how
// many bytes has the server accepted for this session. Read only, safe
// to retry any number of times.
func (s *svc) handleStatus(w http.ResponseWriter, r *http.Request, sid string, total int64) {
	ctx := r.Context()
	log := appctx.GetLogger(ctx)

	// the storage key comes from the mirrored metadata headers when
	// present, else from the session; without either there is nothing
	// stored to report
	var key *meta.StorageKey
	if hu, present, err := meta.FromHeaders(r.Header); err == nil && present {
		k := hu.Key()
		key = &k
	} else if sess, ok := s.sessions.Get(sid); ok {
		k := sess.Uploadable.Key()
		key = &k
	}

	if key != nil {
		stored, err := s.store.IsStored(ctx, *key)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if stored {
			w.Header().Set("Content-Length", "0")
			w.WriteHeader(http.StatusOK)
			return
		}
	}

	if _, ok := s.sessions.Get(sid); !ok {
		writeResumeIncomplete(w, 0)
		return
	}

	size, err := s.store.BytesUploaded(ctx, sid)
	if err != nil {
		if !isNotFound(err) {
			log.Error().Err(err).Str("upload", sid).Msg("error reading accepted bytes")
		}
		writeResumeIncomplete(w, 0)
		return
	}
	writeResumeIncomplete(w, size)
}
