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

// Package local provides a filesystem based blobstore.
package local

import (
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Blobstore stores blobs in a directory tree.
type Blobstore struct {
	root string
}

// New returns a new Blobstore rooted at the given directory.
func New(root string) (*Blobstore, error) {
	if err := os.MkdirAll(root, 0700); err != nil {
		return nil, errors.Wrap(err, "could not create blobstore root")
	}
	return &Blobstore{root: root}, nil
}

// Upload stores some data in the blobstore under the given key.
func (bs *Blobstore) Upload(ctx context.Context, key string, r io.Reader, size int64) error {
	f, err := os.OpenFile(bs.path(key), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return errors.Wrapf(err, "could not open blob '%s' for writing", key)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if _, err = w.ReadFrom(r); err != nil {
		return errors.Wrapf(err, "could not write blob '%s'", key)
	}
	return w.Flush()
}

// Delete deletes a blob from the blobstore.
func (bs *Blobstore) Delete(ctx context.Context, key string) error {
	if err := os.Remove(bs.path(key)); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "could not delete blob '%s'", key)
	}
	return nil
}

func (bs *Blobstore) path(key string) string {
	return filepath.Join(bs.root, filepath.Clean(filepath.Join("/", key)))
}
