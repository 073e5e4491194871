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

// Package chunks manages the temporary chunk files that accumulate
// upload bytes until the declared total is reached. One append-only file
// per upload identifier; the file size is the single source of truth for
// how many bytes the server has accepted.
package chunks

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/roadmetrics/collector/pkg/errtypes"
	"github.com/roadmetrics/collector/pkg/storage/filelocks"
)

// OffsetError reports an append whose offset does not match the bytes
// accepted so far. Have is the current chunk size; the client resumes
// from there.
type OffsetError struct {
	Have int64
}

func (e *OffsetError) Error() string {
	return fmt.Sprintf("append offset does not match accepted bytes (%d)", e.Have)
}

// IsUnexpectedContentRange implements the errtypes marker interface.
func (e *OffsetError) IsUnexpectedContentRange() {}

// Store is a directory of temporary chunk files.
type Store struct {
	dir string
}

// New returns a chunk store rooted at dir, creating it if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, errors.Wrap(err, "chunks: error creating uploads dir")
	}
	return &Store{dir: dir}, nil
}

// Path returns the chunk file path for the given upload identifier.
func (s *Store) Path(id string) string {
	return filepath.Join(s.dir, filepath.Base(id))
}

// Size returns the number of bytes accepted for the given upload.
// Returns errtypes.NotFound if no chunk file exists.
func (s *Store) Size(id string) (int64, error) {
	fi, err := os.Stat(s.Path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, errtypes.NotFound(id)
		}
		return 0, errors.Wrap(err, "chunks: error statting chunk")
	}
	return fi.Size(), nil
}

// Append streams r to the end of the chunk file for id. The append only
// happens when from equals the current size; otherwise an *OffsetError
// carrying the current size is returned and the file stays untouched.
// The new size is returned, also when the copy broke off half way: a
// disconnecting client keeps what was flushed and resumes later.
func (s *Store) Append(id string, from int64, r io.Reader) (int64, error) {
	path := s.Path(id)

	lock, err := filelocks.AcquireWriteLock(path)
	if err != nil {
		return 0, errors.Wrap(err, "chunks: error locking chunk")
	}
	defer func() {
		_ = filelocks.ReleaseLock(lock)
	}()

	var size int64
	if fi, err := os.Stat(path); err == nil {
		size = fi.Size()
	} else if !os.IsNotExist(err) {
		return 0, errors.Wrap(err, "chunks: error statting chunk")
	}
	if from != size {
		return size, &OffsetError{Have: size}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return size, errors.Wrap(err, "chunks: error opening chunk")
	}
	defer f.Close()

	n, cpErr := io.Copy(f, r)
	if err := f.Sync(); err != nil && cpErr == nil {
		cpErr = err
	}
	if cpErr != nil {
		return size + n, errors.Wrap(cpErr, "chunks: error appending to chunk")
	}
	return size + n, nil
}

// Remove deletes the chunk file and its lock file.
func (s *Store) Remove(id string) error {
	path := s.Path(id)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "chunks: error removing chunk")
	}
	return filelocks.RemoveFlockFile(path)
}

// Reap deletes every chunk file whose last modification is older than
// the given age and returns the identifiers it removed. Deletion
// failures are reported through cb and retried on the next cycle.
func (s *Store) Reap(age time.Duration, cb func(id string, err error)) []string {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		cb("", err)
		return nil
	}

	deadline := time.Now().Add(-age)
	var reaped []string
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasSuffix(e.Name(), ".flock") {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		if fi.ModTime().After(deadline) {
			continue
		}
		if err := s.Remove(e.Name()); err != nil {
			cb(e.Name(), err)
			continue
		}
		reaped = append(reaped, e.Name())
	}
	return reaped
}
