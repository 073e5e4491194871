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
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	authmw "github.com/roadmetrics/collector/internal/http/interceptors/auth"
	jwtmgr "github.com/roadmetrics/collector/pkg/auth/manager/jwt"

	_ "github.com/roadmetrics/collector/pkg/storage/loader"
)

const (
	testSecret  = "test-secret"
	testDevice  = "78370516-4f7b-4bd6-84c4-9e871d2ae16a"
	payloadCap  = 1000
	apiPrefix   = "api/v4"
	testPayload = "hello world" // 11 bytes
)

var locationRe = regexp.MustCompile(`/measurements/\(([0-9a-f]{32})\)/$`)

type env struct {
	srv   *httptest.Server
	token string
}

func newTestEnv(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()
	log := zerolog.Nop()

	svc, err := New(map[string]interface{}{
		"prefix":                          apiPrefix,
		"measurement_payload_limit_bytes": payloadCap,
		"storage":                         "local",
		"storages": map[string]interface{}{
			"local": map[string]interface{}{
				"data_dir":    filepath.Join(dir, "blobs"),
				"uploads_dir": filepath.Join(dir, "uploads"),
				"index_file":  filepath.Join(dir, "index.db"),
			},
		},
	}, &log)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = svc.Close()
	})

	mgr, err := jwtmgr.New(map[string]interface{}{"secret": testSecret})
	require.NoError(t, err)

	router := chi.NewRouter()
	router.Mount("/"+svc.Prefix(), svc.Handler())
	handler := authmw.Middleware(mgr, "", []string{"/" + apiPrefix})(router)

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	token, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256,
		gojwt.MapClaims{"sub": "test-user"}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	return &env{srv: srv, token: token}
}

func metadataJSON(measurementID int64, overrides map[string]interface{}) string {
	m := map[string]interface{}{
		"deviceId":      testDevice,
		"measurementId": measurementID,
		"deviceType":    "Pixel 8",
		"osVersion":     "Android 14",
		"appVersion":    "4.2.1",
		"length":        1023.5,
		"locationCount": 634,
		"startLocLat":   51.05,
		"startLocLon":   13.73,
		"startLocTS":    1693229742000,
		"endLocLat":     51.06,
		"endLocLon":     13.74,
		"endLocTS":      1693229841000,
		"modality":      "BICYCLE",
		"formatVersion": 3,
	}
	for k, v := range overrides {
		m[k] = v
	}
	raw, _ := json.Marshal(m)
	return string(raw)
}

func metadataHeaders(measurementID int64) map[string]string {
	return map[string]string{
		"deviceId":      testDevice,
		"measurementId": fmt.Sprintf("%d", measurementID),
		"deviceType":    "Pixel 8",
		"osVersion":     "Android 14",
		"appVersion":    "4.2.1",
		"length":        "1023.5",
		"locationCount": "634",
		"startLocLat":   "51.05",
		"startLocLon":   "13.73",
		"startLocTS":    "1693229742000",
		"endLocLat":     "51.06",
		"endLocLon":     "13.74",
		"endLocTS":      "1693229841000",
		"modality":      "BICYCLE",
		"formatVersion": "3",
	}
}

func (e *env) do(t *testing.T, method, path string, headers map[string]string, body string) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+e.token)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { res.Body.Close() })
	return res
}

// preRequest announces an upload and returns the session path.
func (e *env) preRequest(t *testing.T, measurementID int64) string {
	t.Helper()
	res := e.do(t, http.MethodPost, "/"+apiPrefix+"/measurements",
		map[string]string{
			"Content-Type":            "application/json",
			"x-upload-content-length": fmt.Sprintf("%d", len(testPayload)),
		},
		metadataJSON(measurementID, nil))
	require.Equal(t, http.StatusOK, res.StatusCode)

	loc := res.Header.Get("Location")
	m := locationRe.FindStringSubmatch(loc)
	require.NotNil(t, m, "unexpected location %q", loc)
	return "/" + apiPrefix + "/measurements/(" + m[1] + ")/"
}

func errorCode(t *testing.T, res *http.Response) string {
	t.Helper()
	body := struct {
		Code string `json:"code"`
	}{}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	return body.Code
}

func TestDescriptionIsUnprotected(t *testing.T) {
	e := newTestEnv(t)
	req, err := http.NewRequest(http.MethodGet, e.srv.URL+"/"+apiPrefix+"/", nil)
	require.NoError(t, err)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestPreRequestRequiresToken(t *testing.T) {
	e := newTestEnv(t)
	req, err := http.NewRequest(http.MethodPost, e.srv.URL+"/"+apiPrefix+"/measurements",
		strings.NewReader(metadataJSON(1, nil)))
	require.NoError(t, err)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Contains(t, res.Header.Get("WWW-Authenticate"), "Bearer")

	req2, err := http.NewRequest(http.MethodPost, e.srv.URL+"/"+apiPrefix+"/measurements",
		strings.NewReader(metadataJSON(1, nil)))
	require.NoError(t, err)
	req2.Header.Set("Authorization", "Bearer not.a.token")
	res2, err := http.DefaultClient.Do(req2)
	require.NoError(t, err)
	defer res2.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, res2.StatusCode)
}

func TestPreRequestRejections(t *testing.T) {
	tests := map[string]struct {
		body       string
		length     string
		wantStatus int
		wantCode   string
	}{
		"garbage body": {
			body: "{", length: "11",
			wantStatus: http.StatusUnprocessableEntity, wantCode: "Unparsable",
		},
		"deprecated format version": {
			body: metadataJSON(1, map[string]interface{}{"formatVersion": 2}), length: "11",
			wantStatus: http.StatusUnprocessableEntity, wantCode: "DeprecatedFormatVersion",
		},
		"unknown format version": {
			body: metadataJSON(1, map[string]interface{}{"formatVersion": 9}), length: "11",
			wantStatus: http.StatusUnprocessableEntity, wantCode: "UnknownFormatVersion",
		},
		"invalid device id": {
			body: metadataJSON(1, map[string]interface{}{"deviceId": "nope"}), length: "11",
			wantStatus: http.StatusUnprocessableEntity, wantCode: "InvalidMetaData",
		},
		"too few locations": {
			body: metadataJSON(1, map[string]interface{}{"locationCount": 1}), length: "11",
			wantStatus: http.StatusPreconditionFailed, wantCode: "TooFewLocations",
		},
		"empty attachment": {
			body: metadataJSON(1, map[string]interface{}{
				"attachmentId": 7, "logCount": 1, "filesSize": 0,
			}), length: "11",
			wantStatus: http.StatusPreconditionFailed, wantCode: "SkipUpload",
		},
		"missing upload length": {
			body: metadataJSON(1, nil), length: "",
			wantStatus: http.StatusUnprocessableEntity, wantCode: "Unparsable",
		},
		"declared size over limit": {
			body: metadataJSON(1, nil), length: fmt.Sprintf("%d", payloadCap+1),
			wantStatus: http.StatusUnprocessableEntity, wantCode: "PayloadTooLarge",
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			e := newTestEnv(t)
			headers := map[string]string{"Content-Type": "application/json"}
			if tc.length != "" {
				headers["x-upload-content-length"] = tc.length
			}
			res := e.do(t, http.MethodPost, "/"+apiPrefix+"/measurements", headers, tc.body)
			assert.Equal(t, tc.wantStatus, res.StatusCode)
			assert.Equal(t, tc.wantCode, errorCode(t, res))
		})
	}
}

func TestUploadSingleChunk(t *testing.T) {
	e := newTestEnv(t)
	sessPath := e.preRequest(t, 1)

	res := e.do(t, http.MethodPut, sessPath,
		map[string]string{"Content-Range": "bytes 0-10/11"}, testPayload)
	assert.Equal(t, http.StatusCreated, res.StatusCode)

	// the session is consumed, a replay finds it gone
	res = e.do(t, http.MethodPut, sessPath,
		map[string]string{"Content-Range": "bytes 0-10/11"}, testPayload)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, "SessionExpired", errorCode(t, res))

	// announcing the same measurement again is a conflict
	res = e.do(t, http.MethodPost, "/"+apiPrefix+"/measurements",
		map[string]string{
			"Content-Type":            "application/json",
			"x-upload-content-length": "11",
		},
		metadataJSON(1, nil))
	assert.Equal(t, http.StatusConflict, res.StatusCode)
	assert.Equal(t, "Conflict", errorCode(t, res))
}

func TestUploadResume(t *testing.T) {
	e := newTestEnv(t)
	sessPath := e.preRequest(t, 1)

	res := e.do(t, http.MethodPut, sessPath,
		map[string]string{"Content-Range": "bytes 0-5/11"}, "hello ")
	assert.Equal(t, http.StatusPermanentRedirect, res.StatusCode)
	assert.Equal(t, "bytes=0-5", res.Header.Get("Range"))

	// the status query reports the accepted bytes without mutating
	res = e.do(t, http.MethodPut, sessPath,
		map[string]string{"Content-Range": "bytes */11"}, "")
	assert.Equal(t, http.StatusPermanentRedirect, res.StatusCode)
	assert.Equal(t, "bytes=0-5", res.Header.Get("Range"))

	res = e.do(t, http.MethodPut, sessPath,
		map[string]string{"Content-Range": "bytes 6-10/11"}, "world")
	assert.Equal(t, http.StatusCreated, res.StatusCode)

	// with the metadata mirrored into headers the status query confirms
	// the stored upload even though the session is gone
	headers := metadataHeaders(1)
	headers["Content-Range"] = "bytes */11"
	res = e.do(t, http.MethodPut, sessPath, headers, "")
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestUploadOffsetMismatch(t *testing.T) {
	e := newTestEnv(t)
	sessPath := e.preRequest(t, 1)

	res := e.do(t, http.MethodPut, sessPath,
		map[string]string{"Content-Range": "bytes 0-5/11"}, "hello ")
	require.Equal(t, http.StatusPermanentRedirect, res.StatusCode)

	// replaying the first chunk does not double-append, the client is
	// pointed at the bytes already accepted
	res = e.do(t, http.MethodPut, sessPath,
		map[string]string{"Content-Range": "bytes 0-5/11"}, "hello ")
	assert.Equal(t, http.StatusPermanentRedirect, res.StatusCode)
	assert.Equal(t, "bytes=0-5", res.Header.Get("Range"))

	// a chunk beyond the accepted bytes is answered with the resume offset
	res = e.do(t, http.MethodPut, sessPath,
		map[string]string{"Content-Range": "bytes 8-10/11"}, "rld")
	assert.Equal(t, http.StatusPermanentRedirect, res.StatusCode)
	assert.Equal(t, "bytes=0-5", res.Header.Get("Range"))
}

func TestUploadSessionLostAfterReap(t *testing.T) {
	e := newTestEnv(t)
	sessPath := e.preRequest(t, 1)

	// a resume without any bytes on disk means the chunk was reaped
	res := e.do(t, http.MethodPut, sessPath,
		map[string]string{"Content-Range": "bytes 6-10/11"}, "world")
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, "SessionExpired", errorCode(t, res))

	// the session is destroyed, a restart needs a new pre-request
	res = e.do(t, http.MethodPut, sessPath,
		map[string]string{"Content-Range": "bytes 0-10/11"}, testPayload)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestUploadUnknownSession(t *testing.T) {
	e := newTestEnv(t)
	res := e.do(t, http.MethodPut,
		"/"+apiPrefix+"/measurements/(0123456789abcdef0123456789abcdef)/",
		map[string]string{"Content-Range": "bytes 0-10/11"}, testPayload)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, "SessionExpired", errorCode(t, res))
}

func TestUploadMalformedContentRange(t *testing.T) {
	e := newTestEnv(t)
	sessPath := e.preRequest(t, 1)

	for _, h := range []string{"", "bytes abc", "bytes 5-4/11", "bytes 0-11/11"} {
		res := e.do(t, http.MethodPut, sessPath,
			map[string]string{"Content-Range": h}, testPayload)
		assert.Equal(t, http.StatusUnprocessableEntity, res.StatusCode, h)
		assert.Equal(t, "Unparsable", errorCode(t, res), h)
	}
}

func TestUploadBodyShorterThanRange(t *testing.T) {
	e := newTestEnv(t)
	sessPath := e.preRequest(t, 1)

	res := e.do(t, http.MethodPut, sessPath,
		map[string]string{"Content-Range": "bytes 0-10/11"}, "hello")
	assert.Equal(t, http.StatusUnprocessableEntity, res.StatusCode)
	assert.Equal(t, "Unparsable", errorCode(t, res))
}

func TestUploadDeclaredTotalOverLimit(t *testing.T) {
	e := newTestEnv(t)
	sessPath := e.preRequest(t, 1)

	res := e.do(t, http.MethodPut, sessPath,
		map[string]string{"Content-Range": fmt.Sprintf("bytes 0-10/%d", payloadCap+1)}, testPayload)
	assert.Equal(t, http.StatusUnprocessableEntity, res.StatusCode)
	assert.Equal(t, "PayloadTooLarge", errorCode(t, res))

	// the oversize upload destroyed its session
	res = e.do(t, http.MethodPut, sessPath,
		map[string]string{"Content-Range": "bytes 0-10/11"}, testPayload)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestUploadRevalidatesHeaderMetadata(t *testing.T) {
	e := newTestEnv(t)
	sessPath := e.preRequest(t, 1)

	headers := metadataHeaders(1)
	headers["formatVersion"] = "2"
	headers["Content-Range"] = "bytes 0-10/11"
	res := e.do(t, http.MethodPut, sessPath, headers, testPayload)
	assert.Equal(t, http.StatusUnprocessableEntity, res.StatusCode)
	assert.Equal(t, "DeprecatedFormatVersion", errorCode(t, res))

	// with valid headers the chunk goes through
	headers = metadataHeaders(1)
	headers["Content-Range"] = "bytes 0-10/11"
	res = e.do(t, http.MethodPut, sessPath, headers, testPayload)
	assert.Equal(t, http.StatusCreated, res.StatusCode)
}
