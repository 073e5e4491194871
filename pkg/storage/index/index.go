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

// Package index persists the metadata document of every committed
// upload and enforces the unique measurement key. The document column
// keeps the GeoJSON aware shape byte for byte as accepted at
// pre-request time.
package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/roadmetrics/collector/pkg/errtypes"
	"github.com/roadmetrics/collector/pkg/meta"
)

const schema = `
CREATE TABLE IF NOT EXISTS measurements (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	device_id TEXT NOT NULL,
	measurement_id TEXT NOT NULL,
	attachment_id INTEGER NOT NULL DEFAULT 0,
	file_type TEXT NOT NULL,
	user_id TEXT NOT NULL,
	blob_key TEXT NOT NULL,
	size INTEGER NOT NULL,
	document TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE UNIQUE INDEX IF NOT EXISTS measurements_key
	ON measurements (device_id, measurement_id, file_type, attachment_id);
`

// Index is the metadata index on a SQLite database.
type Index struct {
	db *sql.DB
}

// Open opens (and if necessary bootstraps) the index at the given path.
func Open(path string) (*Index, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path))
	if err != nil {
		return nil, errors.Wrap(err, "index: error opening database")
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "index: error creating schema")
	}
	return &Index{db: db}, nil
}

// Insert records a committed upload. Returns errtypes.Conflict when an
// entry with the same key already exists.
func (i *Index) Insert(ctx context.Context, k meta.StorageKey, userID, blobKey string, size int64, doc map[string]interface{}) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, "index: error encoding document")
	}

	_, err = i.db.ExecContext(ctx,
		`INSERT INTO measurements (device_id, measurement_id, attachment_id, file_type, user_id, blob_key, size, document)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		k.DeviceID, fmt.Sprintf("%d", k.MeasurementID), k.AttachmentID, k.FileType, userID, blobKey, size, string(raw))
	if err != nil {
		var serr sqlite3.Error
		if errors.As(err, &serr) && serr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return errtypes.Conflict(k.DeviceID)
		}
		return errors.Wrap(err, "index: error inserting entry")
	}
	return nil
}

// IsStored reports whether an entry with the given key is durable.
func (i *Index) IsStored(ctx context.Context, k meta.StorageKey) (bool, error) {
	var n int
	err := i.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM measurements WHERE device_id = ? AND measurement_id = ? AND file_type = ? AND attachment_id = ?`,
		k.DeviceID, fmt.Sprintf("%d", k.MeasurementID), k.FileType, k.AttachmentID).Scan(&n)
	if err != nil {
		return false, errors.Wrap(err, "index: error querying entry")
	}
	return n > 0, nil
}

// Document returns the stored metadata document for the given key.
func (i *Index) Document(ctx context.Context, k meta.StorageKey) (map[string]interface{}, error) {
	var raw string
	err := i.db.QueryRowContext(ctx,
		`SELECT document FROM measurements WHERE device_id = ? AND measurement_id = ? AND file_type = ? AND attachment_id = ?`,
		k.DeviceID, fmt.Sprintf("%d", k.MeasurementID), k.FileType, k.AttachmentID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, errtypes.NotFound(k.DeviceID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "index: error querying document")
	}
	doc := map[string]interface{}{}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, errors.Wrap(err, "index: error decoding document")
	}
	return doc, nil
}

// Close closes the underlying database.
func (i *Index) Close() error {
	return i.db.Close()
}
