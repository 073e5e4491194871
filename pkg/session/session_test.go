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

package session

import (
	"testing"
	"time"

	"github.com/roadmetrics/collector/pkg/meta"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMintsUniqueIDs(t *testing.T) {
	s := NewStore(time.Minute)
	defer s.Close()

	u := &meta.Uploadable{DeviceID: "d", MeasurementID: 1}
	a := s.New(u)
	b := s.New(u)

	assert.Len(t, a.ID, 32)
	assert.Regexp(t, "^[0-9a-f]{32}$", a.ID)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestGet(t *testing.T) {
	s := NewStore(time.Minute)
	defer s.Close()

	u := &meta.Uploadable{DeviceID: "d", MeasurementID: 1}
	sess := s.New(u)

	got, ok := s.Get(sess.ID)
	require.True(t, ok)
	assert.Same(t, u, got.Uploadable)

	_, ok = s.Get("0123456789abcdef0123456789abcdef")
	assert.False(t, ok)
}

func TestPopRemoves(t *testing.T) {
	s := NewStore(time.Minute)
	defer s.Close()

	sess := s.New(&meta.Uploadable{DeviceID: "d", MeasurementID: 1})

	got, ok := s.Pop(sess.ID)
	require.True(t, ok)
	assert.Equal(t, sess.ID, got.ID)

	_, ok = s.Pop(sess.ID)
	assert.False(t, ok)
	_, ok = s.Get(sess.ID)
	assert.False(t, ok)
}

func TestRemove(t *testing.T) {
	s := NewStore(time.Minute)
	defer s.Close()

	sess := s.New(&meta.Uploadable{DeviceID: "d", MeasurementID: 1})
	s.Remove(sess.ID)
	_, ok := s.Get(sess.ID)
	assert.False(t, ok)

	// removing twice is fine
	s.Remove(sess.ID)
}

func TestEntriesExpire(t *testing.T) {
	s := NewStore(50 * time.Millisecond)
	defer s.Close()

	sess := s.New(&meta.Uploadable{DeviceID: "d", MeasurementID: 1})

	time.Sleep(150 * time.Millisecond)
	_, ok := s.Get(sess.ID)
	assert.False(t, ok)
}
