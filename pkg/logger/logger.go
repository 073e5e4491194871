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

// Package logger creates the zerolog loggers used across the daemon.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Option customizes the logger.
type Option func(*options)

type options struct {
	level string
	mode  string
	out   io.Writer
}

// WithLevel sets the log level: debug, info, warn, error.
func WithLevel(level string) Option {
	return func(o *options) {
		o.level = level
	}
}

// WithMode sets the output mode: "console" for human readable output,
// "json" for structured output.
func WithMode(mode string) Option {
	return func(o *options) {
		o.mode = mode
	}
}

// WithWriter sets the output writer.
func WithWriter(w io.Writer) Option {
	return func(o *options) {
		o.out = w
	}
}

// New returns a new logger.
func New(opts ...Option) (*zerolog.Logger, error) {
	o := &options{level: "info", mode: "console", out: os.Stderr}
	for _, opt := range opts {
		opt(o)
	}

	lvl, err := zerolog.ParseLevel(o.level)
	if err != nil {
		return nil, errors.Wrapf(err, "logger: unknown level %q", o.level)
	}

	out := o.out
	if o.mode == "console" {
		out = zerolog.ConsoleWriter{Out: o.out, TimeFormat: time.RFC3339}
	}

	zl := zerolog.New(out).With().Timestamp().Int("pid", os.Getpid()).Logger().Level(lvl)
	return &zl, nil
}
