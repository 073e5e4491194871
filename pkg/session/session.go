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

// Package session binds an upload identifier to the metadata accepted at
// pre-request time. Entries live as long as the upload expiration window
// and are refreshed on every access, so an actively resuming client
// never loses its session while the reaper may still collect its chunk.
package session

import (
	"encoding/hex"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v2"
	"github.com/roadmetrics/collector/pkg/meta"
)

// Session is the server side state of one in-flight upload.
type Session struct {
	// ID is the upload identifier: 32 hex characters, process unique.
	// It names the temporary chunk file and appears in the resumable
	// location returned to the client.
	ID string

	Uploadable *meta.Uploadable
	Created    time.Time
}

// Store maps upload identifiers to sessions. At most one active session
// exists per identifier.
type Store struct {
	mu    sync.Mutex
	cache *ttlcache.Cache
}

// NewStore returns a session store whose entries expire after ttl.
func NewStore(ttl time.Duration) *Store {
	c := ttlcache.NewCache()
	_ = c.SetTTL(ttl)
	return &Store{cache: c}
}

// New mints a fresh upload identifier and binds the given uploadable to it.
func (s *Store) New(uploadable *meta.Uploadable) *Session {
	u := uuid.New()
	sess := &Session{
		ID:         hex.EncodeToString(u[:]),
		Uploadable: uploadable,
		Created:    time.Now(),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.cache.Set(sess.ID, sess)
	return sess
}

// Get returns the session for the given identifier.
func (s *Store) Get(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := s.cache.Get(id)
	if err != nil {
		return nil, false
	}
	return v.(*Session), true
}

// Pop atomically removes and returns the session for the given
// identifier. Used on upload completion so that a concurrent retry
// cannot observe a half destroyed session.
func (s *Store) Pop(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := s.cache.Get(id)
	if err != nil {
		return nil, false
	}
	_ = s.cache.Remove(id)
	return v.(*Session), true
}

// Remove destroys the session for the given identifier, if any.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.cache.Remove(id)
}

// Close releases the backing cache.
func (s *Store) Close() {
	_ = s.cache.Close()
}
