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

// Package filelocks serializes writers on a file with flock(2) locks.
// Chunk appends for one upload session must never interleave; the lock
// file lives next to the chunk so it also guards against a second
// process pointed at the same uploads directory.
package filelocks

import (
	"errors"
	"os"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// locks stores the local flock structs in a map by their file names.
// The gofrs/flock module keeps a mutex inside each struct, so there must
// be only one Flock struct per file.
type locks struct {
	mu sync.Mutex

	flocks map[string]*flock.Flock
}

var localLocks = locks{flocks: make(map[string]*flock.Flock)}

func getMutexedFlock(file string) *flock.Flock {
	localLocks.mu.Lock()
	defer localLocks.mu.Unlock()

	if _, ok := localLocks.flocks[file]; ok {
		// another goroutine holds the struct, caller has to wait
		return nil
	}
	localLocks.flocks[file] = flock.New(file)
	return localLocks.flocks[file]
}

func releaseMutexedFlock(file string) {
	if len(file) == 0 {
		return
	}
	localLocks.mu.Lock()
	defer localLocks.mu.Unlock()
	delete(localLocks.flocks, file)
}

// FlockFile returns the flock filename for a given file name.
// It returns an empty string if the input is empty.
func FlockFile(file string) string {
	if file == "" {
		return ""
	}
	return file + ".flock"
}

// AcquireWriteLock tries to acquire the exclusive write lock on the
// given file. The returned Flock has to be released with ReleaseLock.
func AcquireWriteLock(file string) (*flock.Flock, error) {
	n := FlockFile(file)
	if n == "" {
		return nil, errors.New("lock path is empty")
	}

	var fl *flock.Flock
	for i := 1; i <= 10; i++ {
		if fl = getMutexedFlock(n); fl != nil {
			break
		}
		time.Sleep(time.Duration(i*3) * time.Millisecond)
	}
	if fl == nil {
		return nil, errors.New("unable to acquire a lock on the file")
	}

	var ok bool
	var err error
	for i := 1; i <= 10; i++ {
		if ok, err = fl.TryLock(); ok {
			break
		}
		time.Sleep(time.Duration(i*3) * time.Millisecond)
	}
	if err != nil {
		releaseMutexedFlock(n)
		return nil, err
	}
	if !ok {
		releaseMutexedFlock(n)
		return nil, errors.New("could not acquire lock after wait")
	}
	return fl, nil
}

// ReleaseLock releases a lock obtained from AcquireWriteLock.
func ReleaseLock(lock *flock.Flock) error {
	// The flock file must not be cleaned up here: a concurrent writer
	// may already have a Flock struct on it.
	err := lock.Unlock()
	releaseMutexedFlock(lock.Path())
	return err
}

// RemoveFlockFile deletes the lock file that belongs to the given file,
// used after the guarded file itself is gone.
func RemoveFlockFile(file string) error {
	n := FlockFile(file)
	if n == "" {
		return errors.New("lock path is empty")
	}
	if err := os.Remove(n); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
