// Copyright 2026 The sshmount Authors
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

// Package handletable allocates opaque file-handle identifiers for open
// remote files and holds their per-handle, individually-lockable state.
package handletable

import (
	"io"
	"sync"
)

// RemoteFile is the subset of *sftp.File's behavior a bridge handle needs:
// a stateful, seekable byte stream. Expressed as an interface so tests can
// substitute an in-memory fake instead of a live SFTP session.
type RemoteFile interface {
	io.ReadWriteSeeker
	io.Closer
}

// OpenFile is the state associated with one open remote file: the stateful
// remote file object (which carries the remote seek position) plus the
// lock that serializes seek+read/seek+write pairs against it. SFTP file
// objects are not safe for parallel use by multiple goroutines.
type OpenFile struct {
	Mu   sync.Mutex
	File RemoteFile
	Path string
}

// Table allocates handle IDs and holds their OpenFile records. Safe for
// concurrent use; the table's own lock is held only long enough to
// look up or mutate the map, never across remote I/O.
type Table struct {
	mu   sync.Mutex
	next uint64
	m    map[uint64]*OpenFile
}

// New returns an empty handle table. Handle 0 is never issued so that a
// zero handle can be treated as "unset" by callers that want to.
func New() *Table {
	return &Table{
		next: 1,
		m:    make(map[uint64]*OpenFile),
	}
}

// Add registers file under a freshly minted handle and returns it.
func (t *Table) Add(file *OpenFile) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	fh := t.next
	t.next++
	t.m[fh] = file
	return fh
}

// Get returns the record for fh, if still open.
func (t *Table) Get(fh uint64) (*OpenFile, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	f, ok := t.m[fh]
	return f, ok
}

// Remove drops fh from the table and returns the record that was removed,
// if any, so the caller can close the underlying remote file outside the
// table's lock.
func (t *Table) Remove(fh uint64) (*OpenFile, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	f, ok := t.m[fh]
	if ok {
		delete(t.m, fh)
	}
	return f, ok
}
