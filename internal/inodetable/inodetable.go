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

// Package inodetable assigns and retires the kernel-visible inode numbers
// for a mount, maintaining a concurrency-safe bijection between inode and
// remote path.
package inodetable

import (
	"fmt"

	"github.com/jacobsa/syncutil"
	"github.com/mitoneko/sshmount/internal/bimap"
)

// RootInode is the reserved inode number of the export root. It is
// registered at construction and is never removed.
const RootInode uint64 = 1

// Table maps inode numbers to remote paths and back. It is safe for
// concurrent use. checkInvariants is registered with the mutex and panics
// on a violated invariant, but syncutil.InvariantMutex only runs it when
// invariant checking is enabled (syncutil's check_invariants switch);
// nothing in this program enables it, so by default no check runs.
type Table struct {
	mu syncutil.InvariantMutex

	// GUARDED_BY(mu)
	m *bimap.BiMap[uint64, string]

	// The next inode value to hand out.
	//
	// GUARDED_BY(mu)
	next uint64
}

// New returns a table with inode 1 already bound to root.
func New(root string) *Table {
	t := &Table{
		m:    bimap.New[uint64, string](),
		next: 2,
	}
	t.m.Insert(RootInode, root)
	t.mu = syncutil.NewInvariantMutex(t.checkInvariants)
	return t
}

// GUARDED_BY(mu) via caller
func (t *Table) checkInvariants() {
	if t.next < 2 {
		panic(fmt.Sprintf("inodetable: next inode fell below 2: %d", t.next))
	}
	if _, ok := t.m.GetRight(RootInode); !ok {
		panic("inodetable: root inode 1 is unbound")
	}
}

// Add returns the inode bound to path, allocating and binding a new one if
// path is not yet registered. Idempotent: repeated calls for the same path
// return the same inode and never advance the counter more than once per
// distinct path.
func (t *Table) Add(path string) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	if ino, ok := t.m.GetLeft(path); ok {
		return ino
	}

	ino := t.next
	t.next++
	t.m.Insert(ino, path)
	return ino
}

// GetPath returns the path currently bound to ino, if any.
func (t *Table) GetPath(ino uint64) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.m.GetRight(ino)
}

// GetInode returns the inode currently bound to path, if any.
func (t *Table) GetInode(path string) (uint64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.m.GetLeft(path)
}

// Remove drops the binding for path, if any. The inode number is not
// reused.
func (t *Table) Remove(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.m.RemoveRight(path)
}

// Rename re-binds old's inode to new, discarding any prior binding new may
// have had. A no-op if old is not registered.
func (t *Table) Rename(oldPath, newPath string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ino, ok := t.m.GetLeft(oldPath)
	if !ok {
		return
	}

	// Insert's overwrite semantics do exactly what we need here: the old
	// binding of ino (oldPath) is dropped, and any existing binding of
	// newPath to some other inode is dropped too (that inode is orphaned,
	// never reused).
	t.m.Insert(ino, newPath)
}
