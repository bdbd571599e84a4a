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

package attr

import (
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeInfo struct {
	name  string
	size  int64
	mode  os.FileMode
	mtime time.Time
	sys   interface{}
}

func (f fakeInfo) Name() string       { return f.name }
func (f fakeInfo) Size() int64        { return f.size }
func (f fakeInfo) Mode() os.FileMode  { return f.mode }
func (f fakeInfo) ModTime() time.Time { return f.mtime }
func (f fakeInfo) IsDir() bool        { return f.mode.IsDir() }
func (f fakeInfo) Sys() interface{}   { return f.sys }

func TestTranslateRegularFile(t *testing.T) {
	info := fakeInfo{
		name:  "hello.txt",
		size:  3,
		mode:  0o644,
		mtime: time.Unix(1000, 0),
	}

	var out fuse.Attr
	errno := Translate(&out, 42, info, 1000, 1000)
	require.Equal(t, syscall.Errno(0), errno)

	assert.Equal(t, uint64(42), out.Ino)
	assert.Equal(t, uint64(3), out.Size)
	assert.Equal(t, uint64(3/512+1), out.Blocks)
	assert.Equal(t, uint32(fuse.S_IFREG|0o644), out.Mode)
	assert.Equal(t, uint64(1000), out.Mtime)
	assert.Equal(t, uint64(1000), out.Ctime)
	assert.Equal(t, uint32(1), out.Nlink)
}

func TestTranslateDirectory(t *testing.T) {
	info := fakeInfo{name: "sub", mode: os.ModeDir | 0o755, mtime: time.Unix(1, 0)}

	var out fuse.Attr
	errno := Translate(&out, 7, info, 0, 0)
	require.Equal(t, syscall.Errno(0), errno)
	assert.Equal(t, uint32(fuse.S_IFDIR|0o755), out.Mode)
}

func TestTranslateSymlink(t *testing.T) {
	info := fakeInfo{name: "link", mode: os.ModeSymlink | 0o777, mtime: time.Unix(1, 0)}

	var out fuse.Attr
	errno := Translate(&out, 9, info, 0, 0)
	require.Equal(t, syscall.Errno(0), errno)
	assert.Equal(t, uint32(fuse.S_IFLNK|0o777), out.Mode)
}

func TestTranslateZeroPermDefaultsTo0666(t *testing.T) {
	info := fakeInfo{name: "weird", mode: 0, mtime: time.Unix(1, 0)}

	var out fuse.Attr
	errno := Translate(&out, 1, info, 0, 0)
	require.Equal(t, syscall.Errno(0), errno)
	assert.Equal(t, uint32(fuse.S_IFREG|0o666), out.Mode)
}

func TestTranslateTimeBeforeEpochClampsToZero(t *testing.T) {
	info := fakeInfo{name: "old", mode: 0o644, mtime: time.Unix(-100, 0)}

	var out fuse.Attr
	errno := Translate(&out, 1, info, 0, 0)
	require.Equal(t, syscall.Errno(0), errno)
	assert.Equal(t, uint64(0), out.Mtime)
}

func TestDotEntryHasRootInode(t *testing.T) {
	a := DotEntry(1000, 1000)
	assert.Equal(t, uint64(1), a.Ino)
	assert.Equal(t, uint32(fuse.S_IFDIR|0o755), a.Mode)
}
