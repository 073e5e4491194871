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
	"fmt"
	"net/http"
	"regexp"
	"strconv"

	"github.com/roadmetrics/collector/pkg/errtypes"
	"github.com/roadmetrics/collector/pkg/storage"
)

var (
	chunkRangeRe  = regexp.MustCompile(`^bytes (\d+)-(\d+)/(\d+)$`)
	statusRangeRe = regexp.MustCompile(`^bytes \*/(\d+)$`)
)

// parseContentRange parses "bytes <from>-<to>/<total>" and enforces
// 0 <= from <= to < total.
func parseContentRange(h string) (storage.ByteRange, error) {
	m := chunkRangeRe.FindStringSubmatch(h)
	if m == nil {
		return storage.ByteRange{}, errtypes.Unparsable("content range header: " + h)
	}
	from, err1 := strconv.ParseInt(m[1], 10, 64)
	to, err2 := strconv.ParseInt(m[2], 10, 64)
	total, err3 := strconv.ParseInt(m[3], 10, 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return storage.ByteRange{}, errtypes.Unparsable("content range header: " + h)
	}
	if from > to || to >= total {
		return storage.ByteRange{}, errtypes.Unparsable("content range out of bounds: " + h)
	}
	return storage.ByteRange{From: from, To: to, Total: total}, nil
}

// parseStatusRange recognizes the status query form "bytes */<total>".
func parseStatusRange(h string) (int64, bool) {
	m := statusRangeRe.FindStringSubmatch(h)
	if m == nil {
		return 0, false
	}
	total, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return total, true
}

// writeResumeIncomplete answers 308 with the offset the client has to
// resume from. With zero accepted bytes the Range header is omitted.
func writeResumeIncomplete(w http.ResponseWriter, size int64) {
	if size > 0 {
		w.Header().Set("Range", fmt.Sprintf("bytes=0-%d", size-1))
	}
	w.Header().Set("Content-Length", "0")
	// 308 Resume Incomplete, as in Google's resumable upload protocol
	w.WriteHeader(http.StatusPermanentRedirect)
}
