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

// Package log provides the access log middleware.
package log

import (
	"net"
	"net/http"
	"time"

	"github.com/roadmetrics/collector/pkg/appctx"
	"github.com/rs/zerolog"
)

// New returns a middleware that logs every HTTP request and response.
func New() func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log := appctx.GetLogger(r.Context())
			start := time.Now()
			rec := &responseLogger{w: w, status: http.StatusOK}
			h.ServeHTTP(rec, r)
			writeLog(log, r, start, rec.status, rec.size)
		})
	}
}

type responseLogger struct {
	w      http.ResponseWriter
	status int
	size   int
}

func (l *responseLogger) Header() http.Header {
	return l.w.Header()
}

func (l *responseLogger) Write(b []byte) (int, error) {
	n, err := l.w.Write(b)
	l.size += n
	return n, err
}

func (l *responseLogger) WriteHeader(status int) {
	l.status = status
	l.w.WriteHeader(status)
}

func writeLog(log *zerolog.Logger, r *http.Request, start time.Time, status, size int) {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}

	var event *zerolog.Event
	switch {
	case status < 400:
		event = log.Info()
	case status < 500:
		event = log.Warn()
	default:
		event = log.Error()
	}

	event.Str("host", host).
		Str("method", r.Method).
		Str("uri", r.RequestURI).
		Str("proto", r.Proto).
		Int("status", status).
		Int("size", size).
		Str("start", start.Format("02/Jan/2006:15:04:05 -0700")).
		Dur("time_ns", time.Since(start)).
		Msg("http")
}
