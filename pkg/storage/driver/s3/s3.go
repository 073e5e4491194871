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

// Package s3 provides the storage driver that commits blobs to an s3
// compatible object store while chunk buffering and the metadata index
// stay local.
package s3

import (
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/roadmetrics/collector/pkg/storage"
	s3blob "github.com/roadmetrics/collector/pkg/storage/blobstore/s3"
	"github.com/roadmetrics/collector/pkg/storage/chunks"
	"github.com/roadmetrics/collector/pkg/storage/index"
	"github.com/roadmetrics/collector/pkg/storage/registry"
	"github.com/rs/zerolog"
)

func init() {
	registry.Register("s3", New)
}

type config struct {
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`

	UploadsDir string `mapstructure:"uploads_dir"`
	IndexFile  string `mapstructure:"index_file"`
}

func (c *config) Validate() error {
	if c.Endpoint == "" || c.Bucket == "" {
		return errors.New("s3: endpoint and bucket must be configured")
	}
	if c.UploadsDir == "" {
		return errors.New("s3: uploads_dir must be configured")
	}
	if c.IndexFile == "" {
		return errors.New("s3: index_file must be configured")
	}
	return nil
}

// New returns a storage service backed by an s3 compatible object store.
func New(m map[string]interface{}, log zerolog.Logger) (storage.Service, error) {
	c := &config{}
	if err := mapstructure.Decode(m, c); err != nil {
		return nil, errors.Wrap(err, "s3: error decoding conf")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	cs, err := chunks.New(c.UploadsDir)
	if err != nil {
		return nil, err
	}
	bs, err := s3blob.New(c.Endpoint, c.Region, c.Bucket, c.AccessKey, c.SecretKey)
	if err != nil {
		return nil, err
	}
	idx, err := index.Open(c.IndexFile)
	if err != nil {
		return nil, err
	}
	return storage.NewService(cs, bs, idx, log), nil
}
