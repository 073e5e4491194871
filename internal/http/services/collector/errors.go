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
	"encoding/json"
	"net/http"

	"github.com/roadmetrics/collector/pkg/appctx"
	"github.com/roadmetrics/collector/pkg/errtypes"
	"github.com/roadmetrics/collector/pkg/reqid"
)

type errorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
}

// kindOf maps a domain error to its stable body code and HTTP status.
func kindOf(err error) (string, int) {
	switch err.(type) {
	case errtypes.IsUnparsable:
		return "Unparsable", http.StatusUnprocessableEntity
	case errtypes.IsInvalidMetaData:
		return "InvalidMetaData", http.StatusUnprocessableEntity
	case errtypes.IsDeprecatedFormatVersion:
		return "DeprecatedFormatVersion", http.StatusUnprocessableEntity
	case errtypes.IsUnknownFormatVersion:
		return "UnknownFormatVersion", http.StatusUnprocessableEntity
	case errtypes.IsPayloadTooLarge:
		return "PayloadTooLarge", http.StatusUnprocessableEntity
	case errtypes.IsTooFewLocations:
		return "TooFewLocations", http.StatusPreconditionFailed
	case errtypes.IsSkipUpload:
		return "SkipUpload", http.StatusPreconditionFailed
	case errtypes.IsSessionExpired:
		return "SessionExpired", http.StatusNotFound
	case errtypes.IsConflict:
		return "Conflict", http.StatusConflict
	case errtypes.IsContentRangeMismatch:
		return "ContentRangeNotMatchingFileSize", http.StatusInternalServerError
	case errtypes.IsInvalidCredentials:
		return "Unauthorized", http.StatusUnauthorized
	case errtypes.IsPermissionDenied:
		return "Forbidden", http.StatusForbidden
	case errtypes.IsUnexpectedContentRange:
		return "UnexpectedContentRange", http.StatusNotFound
	case errtypes.IsNotFound:
		return "NotFound", http.StatusNotFound
	default:
		return "InternalError", http.StatusInternalServerError
	}
}

// writeError maps a domain error to its HTTP response. Unknown errors
// become an opaque 500 carrying only the correlation id.
func (s *svc) writeError(w http.ResponseWriter, r *http.Request, err error) {
	log := appctx.GetLogger(r.Context())
	code, status := kindOf(err)

	body := errorBody{Code: code}
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("internal error handling request")
		body.Message = "internal error"
	} else {
		log.Debug().Err(err).Str("code", code).Msg("request rejected")
		body.Message = err.Error()
	}
	if id, ok := reqid.ContextGetReqID(r.Context()); ok {
		body.RequestID = id
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
