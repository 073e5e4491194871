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

package local

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/roadmetrics/collector/pkg/errtypes"
	"github.com/roadmetrics/collector/pkg/meta"
	"github.com/roadmetrics/collector/pkg/storage"
	"github.com/roadmetrics/collector/pkg/storage/chunks"
	"github.com/roadmetrics/collector/pkg/storage/registry"
	"github.com/roadmetrics/collector/pkg/user"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (storage.Service, string) {
	t.Helper()
	dir := t.TempDir()
	svc, err := New(map[string]interface{}{
		"data_dir":    filepath.Join(dir, "blobs"),
		"uploads_dir": filepath.Join(dir, "uploads"),
		"index_file":  filepath.Join(dir, "index.db"),
	}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, svc.Close())
	})
	return svc, dir
}

func testUploadable(measurementID int64) *meta.Uploadable {
	return &meta.Uploadable{
		DeviceID:      "78370516-4f7b-4bd6-84c4-9e871d2ae16a",
		MeasurementID: measurementID,
		DeviceType:    "Pixel 8",
		OSVersion:     "Android 14",
		AppVersion:    "4.2.1",
		LocationCount: 634,
		StartLocLat:   51.05,
		StartLocLon:   13.73,
		EndLocLat:     51.06,
		EndLocLon:     13.74,
		Modality:      "BICYCLE",
		FormatVersion: meta.CurrentFormatVersion,
	}
}

func TestDriverIsRegistered(t *testing.T) {
	_, ok := registry.NewFuncs["local"]
	assert.True(t, ok)
}

func TestStoreAndCommit(t *testing.T) {
	svc, dir := newTestService(t)
	ctx := context.Background()
	u := testUploadable(1)
	owner := &user.User{ID: "test-user"}

	stored, err := svc.IsStored(ctx, u.Key())
	require.NoError(t, err)
	assert.False(t, stored)

	res, err := svc.Store(ctx, strings.NewReader("hello "), &storage.UploadRequest{
		ID: "up1", User: owner, Uploadable: u,
		Range: storage.ByteRange{From: 0, To: 5, Total: 11},
	})
	require.NoError(t, err)
	assert.False(t, res.Complete)
	assert.Equal(t, int64(6), res.Size)

	size, err := svc.BytesUploaded(ctx, "up1")
	require.NoError(t, err)
	assert.Equal(t, int64(6), size)

	res, err = svc.Store(ctx, strings.NewReader("world"), &storage.UploadRequest{
		ID: "up1", User: owner, Uploadable: u,
		Range: storage.ByteRange{From: 6, To: 10, Total: 11},
	})
	require.NoError(t, err)
	assert.True(t, res.Complete)
	assert.Equal(t, int64(11), res.Size)

	stored, err = svc.IsStored(ctx, u.Key())
	require.NoError(t, err)
	assert.True(t, stored)

	blob, err := os.ReadFile(filepath.Join(dir, "blobs", "up1"))
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(blob))

	// the temporary chunk is gone after the commit
	_, err = svc.BytesUploaded(ctx, "up1")
	var nf errtypes.IsNotFound
	require.ErrorAs(t, err, &nf)
}

func TestStoreRejectsReplayedChunk(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	u := testUploadable(1)
	owner := &user.User{ID: "test-user"}

	_, err := svc.Store(ctx, strings.NewReader("hello "), &storage.UploadRequest{
		ID: "up1", User: owner, Uploadable: u,
		Range: storage.ByteRange{From: 0, To: 5, Total: 11},
	})
	require.NoError(t, err)

	res, err := svc.Store(ctx, strings.NewReader("hello "), &storage.UploadRequest{
		ID: "up1", User: owner, Uploadable: u,
		Range: storage.ByteRange{From: 0, To: 5, Total: 11},
	})
	var offset *chunks.OffsetError
	require.ErrorAs(t, err, &offset)
	assert.Equal(t, int64(6), offset.Have)
	assert.Equal(t, int64(6), res.Size)
}

func TestStoreRejectsOverrunningTotal(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	u := testUploadable(1)
	owner := &user.User{ID: "test-user"}

	_, err := svc.Store(ctx, strings.NewReader("hello "), &storage.UploadRequest{
		ID: "up1", User: owner, Uploadable: u,
		Range: storage.ByteRange{From: 0, To: 5, Total: 11},
	})
	require.NoError(t, err)

	// the final chunk claims a smaller total than what accumulates
	_, err = svc.Store(ctx, strings.NewReader("world"), &storage.UploadRequest{
		ID: "up1", User: owner, Uploadable: u,
		Range: storage.ByteRange{From: 6, To: 10, Total: 9},
	})
	var mismatch errtypes.IsContentRangeMismatch
	require.ErrorAs(t, errors.Cause(err), &mismatch)
}

func TestStoreDetectsDuplicate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	u := testUploadable(1)
	owner := &user.User{ID: "test-user"}

	_, err := svc.Store(ctx, strings.NewReader("hello world"), &storage.UploadRequest{
		ID: "up1", User: owner, Uploadable: u,
		Range: storage.ByteRange{From: 0, To: 10, Total: 11},
	})
	require.NoError(t, err)

	// a second upload of the same measurement under a fresh session
	_, err = svc.Store(ctx, strings.NewReader("hello world"), &storage.UploadRequest{
		ID: "up2", User: owner, Uploadable: u,
		Range: storage.ByteRange{From: 0, To: 10, Total: 11},
	})
	var dup errtypes.IsConflict
	require.ErrorAs(t, err, &dup)

	// attachments of a stored measurement are not duplicates
	att := testUploadable(1)
	att.AttachmentID = 7
	att.ImageCount = 1
	att.FilesSize = 11
	res, err := svc.Store(ctx, strings.NewReader("hello world"), &storage.UploadRequest{
		ID: "up3", User: owner, Uploadable: att,
		Range: storage.ByteRange{From: 0, To: 10, Total: 11},
	})
	require.NoError(t, err)
	assert.True(t, res.Complete)
}

func TestClean(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	u := testUploadable(1)
	owner := &user.User{ID: "test-user"}

	_, err := svc.Store(ctx, strings.NewReader("hello "), &storage.UploadRequest{
		ID: "up1", User: owner, Uploadable: u,
		Range: storage.ByteRange{From: 0, To: 5, Total: 11},
	})
	require.NoError(t, err)

	require.NoError(t, svc.Clean(ctx, "up1"))
	_, err = svc.BytesUploaded(ctx, "up1")
	var nf errtypes.IsNotFound
	require.ErrorAs(t, err, &nf)
}
