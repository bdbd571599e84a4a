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

package handletable

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddThenGet(t *testing.T) {
	tbl := New()
	rec := &OpenFile{Path: "/a/b"}

	fh := tbl.Add(rec)

	got, ok := tbl.Get(fh)
	require.True(t, ok)
	assert.Same(t, rec, got)
}

func TestRemoveDropsEntry(t *testing.T) {
	tbl := New()
	fh := tbl.Add(&OpenFile{Path: "/a/b"})

	removed, ok := tbl.Remove(fh)
	require.True(t, ok)
	assert.Equal(t, "/a/b", removed.Path)

	_, ok = tbl.Get(fh)
	assert.False(t, ok)

	_, ok = tbl.Remove(fh)
	assert.False(t, ok)
}

func TestConcurrentAddYieldsDistinctHandles(t *testing.T) {
	tbl := New()

	const n = 128
	handles := make([]uint64, n)

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			defer wg.Done()
			handles[i] = tbl.Add(&OpenFile{})
		}()
	}
	wg.Wait()

	seen := make(map[uint64]bool, n)
	for _, fh := range handles {
		assert.False(t, seen[fh], "handle %d issued twice", fh)
		seen[fh] = true
	}
}
