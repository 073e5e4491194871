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

package chunks

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/roadmetrics/collector/pkg/errtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSizeOfMissingChunk(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = s.Size("nope")
	var target errtypes.IsNotFound
	require.ErrorAs(t, err, &target)
}

func TestAppend(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	size, err := s.Append("up1", 0, strings.NewReader("hello"))
	require.NoError(t, err)
	assert.Equal(t, int64(5), size)

	size, err = s.Append("up1", 5, strings.NewReader(" world"))
	require.NoError(t, err)
	assert.Equal(t, int64(11), size)

	got, err := os.ReadFile(s.Path("up1"))
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(got))
}

func TestAppendRejectsWrongOffset(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = s.Append("up1", 0, strings.NewReader("hello"))
	require.NoError(t, err)

	// replaying the first chunk must not change the file
	size, err := s.Append("up1", 0, strings.NewReader("hello"))
	var offset *OffsetError
	require.ErrorAs(t, err, &offset)
	assert.Equal(t, int64(5), offset.Have)
	assert.Equal(t, int64(5), size)

	// a gap must not either
	_, err = s.Append("up1", 9, strings.NewReader("x"))
	require.ErrorAs(t, err, &offset)
	assert.Equal(t, int64(5), offset.Have)

	got, err := os.ReadFile(s.Path("up1"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestAppendNonZeroOffsetOnFreshChunk(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = s.Append("up1", 5, strings.NewReader("world"))
	var offset *OffsetError
	require.ErrorAs(t, err, &offset)
	assert.Equal(t, int64(0), offset.Have)
}

func TestRemove(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = s.Append("up1", 0, strings.NewReader("hello"))
	require.NoError(t, err)
	require.NoError(t, s.Remove("up1"))

	_, err = s.Size("up1")
	var target errtypes.IsNotFound
	require.ErrorAs(t, err, &target)
	assert.NoFileExists(t, s.Path("up1")+".flock")

	// removing a missing chunk is fine
	assert.NoError(t, s.Remove("up1"))
}

func TestReap(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = s.Append("old", 0, strings.NewReader("aged"))
	require.NoError(t, err)
	_, err = s.Append("fresh", 0, strings.NewReader("active"))
	require.NoError(t, err)

	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(s.Path("old"), past, past))

	reaped := s.Reap(time.Hour, func(id string, err error) {
		t.Fatal(errors.Wrapf(err, "unexpected reap failure for %s", id))
	})
	assert.Equal(t, []string{"old"}, reaped)

	_, err = s.Size("old")
	var target errtypes.IsNotFound
	require.ErrorAs(t, err, &target)

	size, err := s.Size("fresh")
	require.NoError(t, err)
	assert.Equal(t, int64(6), size)
}
