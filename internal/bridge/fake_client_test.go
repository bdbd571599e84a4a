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

package bridge

import (
	"io"
	"os"
	"path"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/sftp"

	"github.com/mitoneko/sshmount/internal/handletable"
)

// fakeNode is one entry of an in-memory remote filesystem used to exercise
// FsBridge without a live SSH session.
type fakeNode struct {
	mode     os.FileMode
	data     []byte
	link     string
	mtime    time.Time
	atime    time.Time
	children map[string]string // name -> full path, directories only
	statless bool              // Sys() returns nil, as some SFTP servers omit the extended attrs
}

// fakeClient is a minimal in-memory stand-in for Client, grounded on the
// same "fake the dependency behind the interface" idea the teacher's own
// fake GCS bucket tests use.
type fakeClient struct {
	mu    sync.Mutex
	nodes map[string]*fakeNode

	// rmdirNotEmptyCode is the status code RemoveDirectory reports for a
	// non-empty directory. Some real servers send −31 instead of the
	// proper SSH_FX_DIR_NOT_EMPTY (18); tests can set this to exercise
	// that remap.
	rmdirNotEmptyCode uint32
}

func newFakeClient() *fakeClient {
	c := &fakeClient{nodes: map[string]*fakeNode{}, rmdirNotEmptyCode: 18}
	c.nodes["/"] = &fakeNode{mode: os.ModeDir | 0o755, children: map[string]string{}}
	return c
}

func (c *fakeClient) addDir(p string, mode os.FileMode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nodes[p] = &fakeNode{mode: os.ModeDir | mode, children: map[string]string{}}
	c.linkChildLocked(p)
}

func (c *fakeClient) addFile(p string, mode os.FileMode, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nodes[p] = &fakeNode{mode: mode, data: data, mtime: time.Unix(1000, 0), atime: time.Unix(1000, 0)}
	c.linkChildLocked(p)
}

func (c *fakeClient) addSymlink(p, target string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nodes[p] = &fakeNode{mode: os.ModeSymlink | 0o777, link: target}
	c.linkChildLocked(p)
}

// linkChildLocked registers p under its parent's children map. Caller
// holds c.mu.
func (c *fakeClient) linkChildLocked(p string) {
	parent := path.Dir(p)
	name := path.Base(p)
	if pn, ok := c.nodes[parent]; ok && pn.children != nil {
		pn.children[name] = p
	}
}

// times returns p's recorded atime/mtime, for assertions.
func (c *fakeClient) times(p string) (atime, mtime time.Time, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.nodes[p]
	if !ok {
		return time.Time{}, time.Time{}, notExist(p)
	}
	return n.atime, n.mtime, nil
}

// makeStatless drops p's extended SFTP attrs from future Lstat results,
// simulating a server that doesn't report them.
func (c *fakeClient) makeStatless(p string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n, ok := c.nodes[p]; ok {
		n.statless = true
	}
}

func notExist(p string) error {
	return &os.PathError{Op: "lstat", Path: p, Err: os.ErrNotExist}
}

type fakeFileInfo struct {
	name string
	node *fakeNode
}

func (f fakeFileInfo) Name() string       { return f.name }
func (f fakeFileInfo) Size() int64        { return int64(len(f.node.data)) }
func (f fakeFileInfo) Mode() os.FileMode  { return f.node.mode }
func (f fakeFileInfo) ModTime() time.Time { return f.node.mtime }
func (f fakeFileInfo) IsDir() bool        { return f.node.mode.IsDir() }
func (f fakeFileInfo) Sys() interface{} {
	if f.node.statless {
		return nil
	}
	return &sftp.FileStat{
		Mtime: uint32(f.node.mtime.Unix()),
		Atime: uint32(f.node.atime.Unix()),
	}
}

func (c *fakeClient) Lstat(p string) (os.FileInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.nodes[p]
	if !ok {
		return nil, notExist(p)
	}
	return fakeFileInfo{name: path.Base(p), node: n}, nil
}

func (c *fakeClient) ReadDir(p string) ([]os.FileInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.nodes[p]
	if !ok || !n.mode.IsDir() {
		return nil, notExist(p)
	}
	var out []os.FileInfo
	for name, full := range n.children {
		out = append(out, fakeFileInfo{name: name, node: c.nodes[full]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out, nil
}

func (c *fakeClient) Mkdir(p string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.nodes[p]; exists {
		return &sftp.StatusError{Code: 11}
	}
	c.nodes[p] = &fakeNode{mode: os.ModeDir | 0o755, children: map[string]string{}}
	c.linkChildLocked(p)
	return nil
}

func (c *fakeClient) Remove(p string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.nodes[p]; !ok {
		return notExist(p)
	}
	delete(c.nodes, p)
	if pn, ok := c.nodes[path.Dir(p)]; ok {
		delete(pn.children, path.Base(p))
	}
	return nil
}

func (c *fakeClient) RemoveDirectory(p string) error {
	c.mu.Lock()
	n, ok := c.nodes[p]
	if ok && len(n.children) > 0 {
		code := c.rmdirNotEmptyCode
		c.mu.Unlock()
		return &sftp.StatusError{Code: code}
	}
	c.mu.Unlock()
	return c.Remove(p)
}

// Rename mimics the common SFTP v3 behavior of failing when newpath
// already exists, which is exactly why FsBridge pre-removes an existing
// destination itself when RENAME_NOREPLACE is absent.
func (c *fakeClient) Rename(oldpath, newpath string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.nodes[oldpath]
	if !ok {
		return notExist(oldpath)
	}
	if _, exists := c.nodes[newpath]; exists {
		return &sftp.StatusError{Code: 11}
	}
	delete(c.nodes, oldpath)
	if pn, ok := c.nodes[path.Dir(oldpath)]; ok {
		delete(pn.children, path.Base(oldpath))
	}
	c.nodes[newpath] = n
	c.linkChildLocked(newpath)
	return nil
}

func (c *fakeClient) PosixRename(oldpath, newpath string) error {
	return c.Rename(oldpath, newpath)
}

func (c *fakeClient) Symlink(oldname, newname string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nodes[newname] = &fakeNode{mode: os.ModeSymlink | 0o777, link: oldname}
	c.linkChildLocked(newname)
	return nil
}

func (c *fakeClient) ReadLink(p string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.nodes[p]
	if !ok {
		return "", notExist(p)
	}
	return n.link, nil
}

func (c *fakeClient) OpenFile(p string, flags int) (handletable.RemoteFile, error) {
	c.mu.Lock()
	n, ok := c.nodes[p]
	if !ok {
		if flags&os.O_CREATE == 0 {
			c.mu.Unlock()
			return nil, notExist(p)
		}
		n = &fakeNode{mode: 0o644, mtime: time.Unix(1000, 0), atime: time.Unix(1000, 0)}
		c.nodes[p] = n
		c.linkChildLocked(p)
	} else if flags&os.O_EXCL != 0 {
		c.mu.Unlock()
		return nil, &sftp.StatusError{Code: 11}
	}
	if flags&os.O_TRUNC != 0 {
		n.data = nil
	}
	c.mu.Unlock()
	return &fakeFile{node: n}, nil
}

func (c *fakeClient) Chmod(p string, mode os.FileMode) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.nodes[p]
	if !ok {
		return notExist(p)
	}
	n.mode = (n.mode &^ 0o7777) | (mode & 0o7777)
	return nil
}

func (c *fakeClient) Chtimes(p string, atime, mtime time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.nodes[p]
	if !ok {
		return notExist(p)
	}
	n.atime = atime
	n.mtime = mtime
	return nil
}

func (c *fakeClient) Truncate(p string, size int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.nodes[p]
	if !ok {
		return notExist(p)
	}
	if int64(len(n.data)) > size {
		n.data = n.data[:size]
	} else {
		n.data = append(n.data, make([]byte, size-int64(len(n.data)))...)
	}
	return nil
}

// fakeFile is an in-memory RemoteFile backed by a fakeNode's byte slice.
type fakeFile struct {
	node *fakeNode
	pos  int64
}

func (f *fakeFile) Read(p []byte) (int, error) {
	if f.pos >= int64(len(f.node.data)) {
		return 0, io.EOF
	}
	n := copy(p, f.node.data[f.pos:])
	f.pos += int64(n)
	return n, nil
}

func (f *fakeFile) Write(p []byte) (int, error) {
	end := f.pos + int64(len(p))
	if end > int64(len(f.node.data)) {
		grown := make([]byte, end)
		copy(grown, f.node.data)
		f.node.data = grown
	}
	n := copy(f.node.data[f.pos:end], p)
	f.pos += int64(n)
	return n, nil
}

func (f *fakeFile) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case 0:
		f.pos = offset
	case 1:
		f.pos += offset
	case 2:
		f.pos = int64(len(f.node.data)) + offset
	default:
		return 0, syscall.EINVAL
	}
	return f.pos, nil
}

func (f *fakeFile) Close() error { return nil }
