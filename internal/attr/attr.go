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

// Package attr converts between the stat records SFTP hands back and the
// kernel-facing fuse.Attr record a FUSE reply carries.
package attr

import (
	"os"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/pkg/sftp"
)

const blockSize = 512

// EBADF is returned by Translate when the remote file type has no POSIX
// equivalent the kernel will accept (SFTP's "unknown"/extended types).
var errUnknownKind = syscall.EBADF

// Translate fills out with the attributes of info, assigning it the given
// inode and the caller's uid/gid. info normally comes from an Lstat or
// ReadDir call against the remote; its Mode()/ModTime()/Size() are used
// directly, and its Sys() value (when it is *sftp.FileStat) supplies the
// atime the os.FileInfo interface otherwise discards.
func Translate(out *fuse.Attr, ino uint64, info os.FileInfo, uid, gid uint32) syscall.Errno {
	kind, errno := posixKind(info.Mode())
	if errno != 0 {
		return errno
	}

	size := uint64(0)
	if info.Size() > 0 {
		size = uint64(info.Size())
	}

	mtime := epochSeconds(info.ModTime())
	atime := mtime
	if stat, ok := info.Sys().(*sftp.FileStat); ok {
		if stat.Atime > 0 {
			atime = uint64(stat.Atime)
		}
		if stat.Mtime > 0 {
			mtime = uint64(stat.Mtime)
		}
	}

	perm := uint32(info.Mode().Perm())
	if perm == 0 {
		perm = 0o666
	}

	out.Ino = ino
	out.Size = size
	out.Blocks = size/blockSize + 1
	out.Atime = atime
	out.Mtime = mtime
	out.Ctime = mtime
	out.Mode = kind | perm
	out.Nlink = 1
	out.Rdev = 0
	out.Blksize = blockSize
	out.Uid = uid
	out.Gid = gid
	return 0
}

// posixKind maps a Go os.FileMode's type bits to the fuse.S_IF* constant the
// kernel expects in Attr.Mode's high bits.
func posixKind(mode os.FileMode) (uint32, syscall.Errno) {
	switch {
	case mode&os.ModeDir != 0:
		return fuse.S_IFDIR, 0
	case mode&os.ModeSymlink != 0:
		return fuse.S_IFLNK, 0
	case mode&os.ModeNamedPipe != 0:
		return fuse.S_IFIFO, 0
	case mode&os.ModeSocket != 0:
		return fuse.S_IFSOCK, 0
	case mode&os.ModeDevice != 0:
		if mode&os.ModeCharDevice != 0 {
			return fuse.S_IFCHR, 0
		}
		return fuse.S_IFBLK, 0
	case mode&os.ModeType == 0:
		return fuse.S_IFREG, 0
	default:
		return 0, errUnknownKind
	}
}

// epochSeconds reduces t to whole seconds since the Unix epoch, clamping
// anything before the epoch to 0 (SFTP has no representation for times
// before 1970 and the kernel attribute record is unsigned).
func epochSeconds(t time.Time) uint64 {
	sec := t.Unix()
	if sec < 0 {
		return 0
	}
	return uint64(sec)
}

// DotEntry returns the fuse.Attr used for the synthesized "." and ".."
// readdir entries: both report inode 1 and kind Directory, matching the
// export root regardless of which directory is actually being listed.
func DotEntry(uid, gid uint32) fuse.Attr {
	var a fuse.Attr
	a.Ino = 1
	a.Mode = fuse.S_IFDIR | 0o755
	a.Nlink = 1
	a.Blksize = blockSize
	a.Uid = uid
	a.Gid = gid
	return a
}
