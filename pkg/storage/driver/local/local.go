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

// Package local provides the storage driver that keeps blobs on the
// local filesystem next to the metadata index.
package local

import (
	"path/filepath"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/roadmetrics/collector/pkg/storage"
	localblob "github.com/roadmetrics/collector/pkg/storage/blobstore/local"
	"github.com/roadmetrics/collector/pkg/storage/chunks"
	"github.com/roadmetrics/collector/pkg/storage/index"
	"github.com/roadmetrics/collector/pkg/storage/registry"
	"github.com/rs/zerolog"
)

func init() {
	registry.Register("local", New)
}

type config struct {
	// DataDir is the blob directory.
	DataDir string `mapstructure:"data_dir"`
	// UploadsDir holds the temporary chunk files.
	UploadsDir string `mapstructure:"uploads_dir"`
	// IndexFile is the SQLite database path.
	IndexFile string `mapstructure:"index_file"`
}

func (c *config) ApplyDefaults() {
	if c.DataDir == "" {
		c.DataDir = "/var/lib/collector/blobs"
	}
	if c.UploadsDir == "" {
		c.UploadsDir = filepath.Join(filepath.Dir(c.DataDir), "uploads")
	}
	if c.IndexFile == "" {
		c.IndexFile = filepath.Join(filepath.Dir(c.DataDir), "index.db")
	}
}

// New returns a storage service backed by a local blob directory.
func New(m map[string]interface{}, log zerolog.Logger) (storage.Service, error) {
	c := &config{}
	if err := mapstructure.Decode(m, c); err != nil {
		return nil, errors.Wrap(err, "local: error decoding conf")
	}
	c.ApplyDefaults()

	cs, err := chunks.New(c.UploadsDir)
	if err != nil {
		return nil, err
	}
	bs, err := localblob.New(c.DataDir)
	if err != nil {
		return nil, err
	}
	idx, err := index.Open(c.IndexFile)
	if err != nil {
		return nil, err
	}
	return storage.NewService(cs, bs, idx, log), nil
}
