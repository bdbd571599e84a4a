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
	"os"
	"time"

	"github.com/pkg/sftp"

	"github.com/mitoneko/sshmount/internal/handletable"
)

// Client is the subset of *sftp.Client's behavior FsBridge depends on,
// narrowed to an interface the same way the teacher's FileSystem depends
// on gcs.Bucket rather than a concrete GCS client, so tests can substitute
// an in-memory fake instead of a live SSH session.
type Client interface {
	Lstat(path string) (os.FileInfo, error)
	ReadDir(path string) ([]os.FileInfo, error)
	Mkdir(path string) error
	Remove(path string) error
	RemoveDirectory(path string) error
	Rename(oldpath, newpath string) error
	PosixRename(oldpath, newpath string) error
	Symlink(oldname, newname string) error
	ReadLink(path string) (string, error)
	OpenFile(path string, flags int) (handletable.RemoteFile, error)
	Chmod(path string, mode os.FileMode) error
	Chtimes(path string, atime, mtime time.Time) error
	Truncate(path string, size int64) error
}

// WrapClient adapts a real *sftp.Client, as returned by sshsession.Dial, to
// the narrower Client interface FsBridge depends on.
func WrapClient(c *sftp.Client) Client {
	return clientAdapter{c}
}

type clientAdapter struct {
	c *sftp.Client
}

func (a clientAdapter) Lstat(path string) (os.FileInfo, error)    { return a.c.Lstat(path) }
func (a clientAdapter) ReadDir(path string) ([]os.FileInfo, error) { return a.c.ReadDir(path) }
func (a clientAdapter) Mkdir(path string) error                   { return a.c.Mkdir(path) }
func (a clientAdapter) Remove(path string) error                  { return a.c.Remove(path) }
func (a clientAdapter) RemoveDirectory(path string) error         { return a.c.RemoveDirectory(path) }
func (a clientAdapter) Rename(oldpath, newpath string) error      { return a.c.Rename(oldpath, newpath) }

func (a clientAdapter) PosixRename(oldpath, newpath string) error {
	return a.c.PosixRename(oldpath, newpath)
}

func (a clientAdapter) Symlink(oldname, newname string) error { return a.c.Symlink(oldname, newname) }
func (a clientAdapter) ReadLink(path string) (string, error)  { return a.c.ReadLink(path) }

func (a clientAdapter) OpenFile(path string, flags int) (handletable.RemoteFile, error) {
	return a.c.OpenFile(path, flags)
}

func (a clientAdapter) Chmod(path string, mode os.FileMode) error { return a.c.Chmod(path, mode) }

func (a clientAdapter) Chtimes(path string, atime, mtime time.Time) error {
	return a.c.Chtimes(path, atime, mtime)
}

func (a clientAdapter) Truncate(path string, size int64) error { return a.c.Truncate(path, size) }
