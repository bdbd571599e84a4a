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

// Package bridge implements the kernel-facing side of the mount: a
// fuse.RawFileSystem that turns each callback into one or more SFTP
// requests against a single shared session.
package bridge

import (
	"io"
	"log/slog"
	"os"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/pkg/sftp"
	"golang.org/x/sys/unix"

	"github.com/mitoneko/sshmount/clock"
	"github.com/mitoneko/sshmount/internal/attr"
	"github.com/mitoneko/sshmount/internal/errmap"
	"github.com/mitoneko/sshmount/internal/handletable"
	"github.com/mitoneko/sshmount/internal/inodetable"
)

const (
	entryTimeout = time.Second
	attrTimeout  = time.Second
)

// FsBridge answers every kernel filesystem callback the mount needs by
// resolving the callback's inode to a remote path (or its handle to an
// open remote file) and issuing the corresponding SFTP request.
type FsBridge struct {
	fuse.RawFileSystem

	client  Client
	inodes  *inodetable.Table
	handles *handletable.Table
	clock   clock.Clock
	log     *slog.Logger

	server *fuse.Server
}

// New returns a bridge rooted at root (an already-canonicalized remote
// path) talking over client. clk supplies "now" for the rare setattr path
// where neither Lstat nor the kernel gives us a time to fall back to.
func New(client Client, root string, clk clock.Clock, log *slog.Logger) *FsBridge {
	return &FsBridge{
		RawFileSystem: fuse.NewDefaultRawFileSystem(),
		client:        client,
		inodes:        inodetable.New(root),
		handles:       handletable.New(),
		clock:         clk,
		log:           log,
	}
}

// Init records the server handle; nothing else in this bridge needs to
// talk back to the kernel asynchronously (no notify/invalidate traffic).
func (b *FsBridge) Init(server *fuse.Server) {
	b.server = server
}

func errnoToStatus(errno syscall.Errno) fuse.Status {
	return fuse.Status(errno)
}

// joinPath appends the single path component name to parent. name is
// treated as an opaque byte sequence the kernel has already guaranteed
// contains no slash; no other normalization is applied.
func joinPath(parent, name string) string {
	if parent == "/" {
		return "/" + name
	}
	return parent + "/" + name
}

func (b *FsBridge) resolve(ino uint64) (string, fuse.Status) {
	p, ok := b.inodes.GetPath(ino)
	if !ok {
		return "", fuse.ENOENT
	}
	return p, fuse.OK
}

func (b *FsBridge) replyEntry(out *fuse.EntryOut, path string, uid, gid uint32) fuse.Status {
	info, err := b.client.Lstat(path)
	if err != nil {
		return errnoToStatus(errmap.FromSFTPError(err))
	}
	ino := b.inodes.Add(path)
	if errno := attr.Translate(&out.Attr, ino, info, uid, gid); errno != 0 {
		return errnoToStatus(errno)
	}
	out.NodeId = ino
	out.SetEntryTimeout(entryTimeout)
	out.SetAttrTimeout(attrTimeout)
	return fuse.OK
}

// Lookup resolves (parent inode, name) to an entry, registering the
// child's inode as a side effect of the attribute fetch.
func (b *FsBridge) Lookup(cancel <-chan struct{}, header *fuse.InHeader, name string, out *fuse.EntryOut) fuse.Status {
	parentPath, status := b.resolve(header.NodeId)
	if status != fuse.OK {
		return status
	}
	return b.replyEntry(out, joinPath(parentPath, name), header.Caller.Uid, header.Caller.Gid)
}

// GetAttr is lookup without the name-resolution step: ino's own path is
// lstat'd directly.
func (b *FsBridge) GetAttr(cancel <-chan struct{}, input *fuse.GetAttrIn, out *fuse.AttrOut) fuse.Status {
	path, status := b.resolve(input.NodeId)
	if status != fuse.OK {
		return status
	}
	info, err := b.client.Lstat(path)
	if err != nil {
		return errnoToStatus(errmap.FromSFTPError(err))
	}
	if errno := attr.Translate(&out.Attr, input.NodeId, info, input.Caller.Uid, input.Caller.Gid); errno != 0 {
		return errnoToStatus(errno)
	}
	out.SetTimeout(attrTimeout)
	return fuse.OK
}

// SetAttr applies only the fields SetAttrIn actually carries. uid, gid and
// ctime have no SFTP equivalent and are silently ignored, per contract.
func (b *FsBridge) SetAttr(cancel <-chan struct{}, in *fuse.SetAttrIn, out *fuse.AttrOut) fuse.Status {
	path, status := b.resolve(in.NodeId)
	if status != fuse.OK {
		return status
	}

	if mode, ok := in.GetMode(); ok {
		if err := b.client.Chmod(path, os.FileMode(mode&0o7777)); err != nil {
			return errnoToStatus(errmap.FromSFTPError(err))
		}
	}

	if size, ok := in.GetSize(); ok {
		if err := b.client.Truncate(path, int64(size)); err != nil {
			return errnoToStatus(errmap.FromSFTPError(err))
		}
	}

	if errno := b.setTimes(in, path); errno != 0 {
		return errnoToStatus(errno)
	}

	info, err := b.client.Lstat(path)
	if err != nil {
		return errnoToStatus(errmap.FromSFTPError(err))
	}
	if errno := attr.Translate(&out.Attr, in.NodeId, info, in.Caller.Uid, in.Caller.Gid); errno != 0 {
		return errnoToStatus(errno)
	}
	out.SetTimeout(attrTimeout)
	return fuse.OK
}

// setTimes issues a single Chtimes call carrying whichever of atime/mtime
// SetAttrIn supplied; the other is preserved from the file's current
// attributes rather than clobbered, since pkg/sftp's wire-level setstat
// always carries both fields together.
func (b *FsBridge) setTimes(in *fuse.SetAttrIn, path string) syscall.Errno {
	atime, aok := in.GetATime()
	mtime, mok := in.GetMTime()
	if !aok && !mok {
		return 0
	}

	if !aok || !mok {
		info, err := b.client.Lstat(path)
		if err != nil {
			return errmap.FromSFTPError(err)
		}
		stat, _ := info.Sys().(*sftp.FileStat)
		if !aok {
			if stat != nil {
				atime = time.Unix(int64(stat.Atime), 0)
			} else {
				atime = b.clock.Now()
			}
		}
		if !mok {
			if stat != nil {
				mtime = time.Unix(int64(stat.Mtime), 0)
			} else {
				mtime = info.ModTime()
			}
		}
	}

	if atime.Unix() < 0 {
		atime = time.Unix(0, 0)
	}
	if mtime.Unix() < 0 {
		mtime = time.Unix(0, 0)
	}

	if err := b.client.Chtimes(path, atime, mtime); err != nil {
		return errmap.FromSFTPError(err)
	}
	return 0
}

// ReadDir lists ino's directory fresh on every call; "." and ".." are
// synthesized ahead of the remote listing, both carrying inode 1. Offset
// indexes into this freshly-built slice, so a directory that mutates
// between successive readdir calls on the same handle may see entries
// shift — documented, not fixed.
func (b *FsBridge) ReadDir(cancel <-chan struct{}, input *fuse.ReadIn, out *fuse.DirEntryList) fuse.Status {
	path, status := b.resolve(input.NodeId)
	if status != fuse.OK {
		return status
	}

	remote, err := b.client.ReadDir(path)
	if err != nil {
		return errnoToStatus(errmap.FromSFTPError(err))
	}

	entries := make([]fuse.DirEntry, 0, len(remote)+2)
	entries = append(entries,
		fuse.DirEntry{Ino: inodetable.RootInode, Mode: fuse.S_IFDIR, Name: "."},
		fuse.DirEntry{Ino: inodetable.RootInode, Mode: fuse.S_IFDIR, Name: ".."},
	)
	for _, info := range remote {
		kind, errno := kindBits(info)
		if errno != 0 {
			return errnoToStatus(errno)
		}
		entries = append(entries, fuse.DirEntry{
			Ino:  b.inodes.Add(joinPath(path, info.Name())),
			Mode: kind,
			Name: info.Name(),
		})
	}

	for i := int(input.Offset); i < len(entries); i++ {
		if !out.AddDirEntry(entries[i]) {
			break
		}
	}
	return fuse.OK
}

// OpenDir and ReleaseDir carry no state of their own: ReadDir re-lists the
// remote directory on every call, so there is nothing to hold open
// between them.
func (b *FsBridge) OpenDir(cancel <-chan struct{}, input *fuse.OpenIn, out *fuse.OpenOut) fuse.Status {
	return fuse.OK
}

func (b *FsBridge) ReleaseDir(input *fuse.ReleaseIn) {}

// Readlink resolves and returns the remote symlink target.
func (b *FsBridge) Readlink(cancel <-chan struct{}, header *fuse.InHeader) ([]byte, fuse.Status) {
	path, status := b.resolve(header.NodeId)
	if status != fuse.OK {
		return nil, status
	}
	target, err := b.client.ReadLink(path)
	if err != nil {
		return nil, errnoToStatus(errmap.FromSFTPError(err))
	}
	return []byte(target), fuse.OK
}

// openFlags translates POSIX open flags bit-by-bit into the flag word
// pkg/sftp's OpenFile (and, through it, the remote SSH_FXP_OPEN request)
// expects.
func openFlags(posix uint32) int {
	var out int
	switch {
	case posix&syscall.O_WRONLY != 0:
		out = os.O_WRONLY
	case posix&syscall.O_RDWR != 0:
		out = os.O_RDWR
	default:
		out = os.O_RDONLY
	}
	if posix&syscall.O_APPEND != 0 {
		out |= os.O_APPEND
	}
	if posix&syscall.O_CREAT != 0 {
		out |= os.O_CREATE
	}
	if posix&syscall.O_TRUNC != 0 {
		out |= os.O_TRUNC
	}
	if posix&syscall.O_EXCL != 0 {
		out |= os.O_EXCL
	}
	return out
}

// Open opens the remote file and registers it in the handle table. When
// the call carries O_CREAT the new file is chmod'd to 0o777 immediately
// after creation (the remote umask governs the bits that actually stick);
// pkg/sftp's OpenFile has no way to carry a requested mode on the open
// request itself.
func (b *FsBridge) Open(cancel <-chan struct{}, input *fuse.OpenIn, out *fuse.OpenOut) fuse.Status {
	path, status := b.resolve(input.NodeId)
	if status != fuse.OK {
		return status
	}

	f, err := b.client.OpenFile(path, openFlags(input.Flags))
	if err != nil {
		return errnoToStatus(errmap.FromSFTPError(err))
	}
	if input.Flags&syscall.O_CREAT != 0 {
		if err := b.client.Chmod(path, 0o777); err != nil {
			f.Close()
			return errnoToStatus(errmap.FromSFTPError(err))
		}
	}

	out.Fh = b.handles.Add(&handletable.OpenFile{File: f, Path: path})
	out.OpenFlags = input.Flags
	return fuse.OK
}

// Release drops the handle table entry and closes the remote file.
func (b *FsBridge) Release(cancel <-chan struct{}, input *fuse.ReleaseIn) {
	rec, ok := b.handles.Remove(input.Fh)
	if !ok {
		return
	}
	rec.File.Close()
}

// Read seeks to the requested offset and fills buf, looping until it is
// full or the remote reports EOF.
func (b *FsBridge) Read(cancel <-chan struct{}, input *fuse.ReadIn, buf []byte) (fuse.ReadResult, fuse.Status) {
	rec, ok := b.handles.Get(input.Fh)
	if !ok {
		return nil, fuse.EBADF
	}

	rec.Mu.Lock()
	defer rec.Mu.Unlock()

	if _, err := rec.File.Seek(int64(input.Offset), io.SeekStart); err != nil {
		return nil, errnoToStatus(errmap.FromIOError(err))
	}

	n := 0
	for n < len(buf) {
		m, err := rec.File.Read(buf[n:])
		n += m
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, errnoToStatus(errmap.FromIOError(err))
		}
		if m == 0 {
			break
		}
	}
	return fuse.ReadResultData(buf[:n]), fuse.OK
}

// Write seeks to the requested offset and writes all of data, looping
// until the whole slice has been accepted by the remote.
func (b *FsBridge) Write(cancel <-chan struct{}, input *fuse.WriteIn, data []byte) (uint32, fuse.Status) {
	rec, ok := b.handles.Get(input.Fh)
	if !ok {
		return 0, fuse.EBADF
	}

	rec.Mu.Lock()
	defer rec.Mu.Unlock()

	if _, err := rec.File.Seek(int64(input.Offset), io.SeekStart); err != nil {
		return 0, errnoToStatus(errmap.FromIOError(err))
	}

	written := 0
	for written < len(data) {
		n, err := rec.File.Write(data[written:])
		written += n
		if err != nil {
			return uint32(written), errnoToStatus(errmap.FromIOError(err))
		}
	}
	return uint32(written), fuse.OK
}

// Lseek translates SEEK_SET/CUR/END and reports the resulting absolute
// position; any other whence is rejected with EINVAL.
func (b *FsBridge) Lseek(cancel <-chan struct{}, in *fuse.LseekIn, out *fuse.LseekOut) fuse.Status {
	rec, ok := b.handles.Get(in.Fh)
	if !ok {
		return fuse.EBADF
	}

	var whence int
	switch in.Whence {
	case 0:
		whence = io.SeekStart
	case 1:
		whence = io.SeekCurrent
	case 2:
		whence = io.SeekEnd
	default:
		return fuse.EINVAL
	}

	rec.Mu.Lock()
	defer rec.Mu.Unlock()

	pos, err := rec.File.Seek(int64(in.Offset), whence)
	if err != nil {
		return errnoToStatus(errmap.FromIOError(err))
	}
	out.Offset = uint64(pos)
	return fuse.OK
}

// Mknod creates a regular file; any other requested type is rejected, and
// the umask is applied to the permission bits only, never the type bits.
func (b *FsBridge) Mknod(cancel <-chan struct{}, input *fuse.MknodIn, name string, out *fuse.EntryOut) fuse.Status {
	if t := input.Mode & syscall.S_IFMT; t != 0 && t != syscall.S_IFREG {
		return fuse.EPERM
	}

	parentPath, status := b.resolve(input.NodeId)
	if status != fuse.OK {
		return status
	}
	path := joinPath(parentPath, name)
	effMode := input.Mode & (^input.Umask | syscall.S_IFMT)

	f, err := b.client.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL)
	if err != nil {
		return errnoToStatus(errmap.FromSFTPError(err))
	}
	f.Close()

	if err := b.client.Chmod(path, os.FileMode(effMode&0o7777)); err != nil {
		return errnoToStatus(errmap.FromSFTPError(err))
	}

	return b.replyEntry(out, path, input.Caller.Uid, input.Caller.Gid)
}

// Unlink removes a file and drops its inode binding.
func (b *FsBridge) Unlink(cancel <-chan struct{}, header *fuse.InHeader, name string) fuse.Status {
	parentPath, status := b.resolve(header.NodeId)
	if status != fuse.OK {
		return status
	}
	path := joinPath(parentPath, name)
	if err := b.client.Remove(path); err != nil {
		return errnoToStatus(errmap.FromSFTPError(err))
	}
	b.inodes.Remove(path)
	return fuse.OK
}

// Mkdir creates a directory with mode & ~umask & 0o777.
func (b *FsBridge) Mkdir(cancel <-chan struct{}, input *fuse.MkdirIn, name string, out *fuse.EntryOut) fuse.Status {
	parentPath, status := b.resolve(input.NodeId)
	if status != fuse.OK {
		return status
	}
	path := joinPath(parentPath, name)
	effMode := input.Mode &^ input.Umask & 0o777

	if err := b.client.Mkdir(path); err != nil {
		return errnoToStatus(errmap.FromSFTPError(err))
	}
	if err := b.client.Chmod(path, os.FileMode(effMode)); err != nil {
		return errnoToStatus(errmap.FromSFTPError(err))
	}

	return b.replyEntry(out, path, input.Caller.Uid, input.Caller.Gid)
}

// Rmdir removes a directory. Some servers have been observed to report a
// non-empty directory as SFTP status code −31 instead of the proper
// SSH_FX_DIR_NOT_EMPTY status; FromRmdirError folds that case into
// ENOTEMPTY like everything else.
func (b *FsBridge) Rmdir(cancel <-chan struct{}, header *fuse.InHeader, name string) fuse.Status {
	parentPath, status := b.resolve(header.NodeId)
	if status != fuse.OK {
		return status
	}
	path := joinPath(parentPath, name)
	if err := b.client.RemoveDirectory(path); err != nil {
		return errnoToStatus(errmap.FromRmdirError(err))
	}
	b.inodes.Remove(path)
	return fuse.OK
}

// Symlink creates a symlink at parent/name pointing at target.
func (b *FsBridge) Symlink(cancel <-chan struct{}, header *fuse.InHeader, target, name string, out *fuse.EntryOut) fuse.Status {
	parentPath, status := b.resolve(header.NodeId)
	if status != fuse.OK {
		return status
	}
	path := joinPath(parentPath, name)
	if err := b.client.Symlink(target, path); err != nil {
		return errnoToStatus(errmap.FromSFTPError(err))
	}
	return b.replyEntry(out, path, header.Caller.Uid, header.Caller.Gid)
}

// Rename moves an entry. When RENAME_NOREPLACE is absent and the
// destination exists, its current binding is removed first (unlink or
// rmdir, matching its kind) to emulate overwrite semantics the remote
// rename may not honor on its own; this is racy against a concurrent
// creator on the remote, and deliberately so — see the project notes.
// RENAME_EXCHANGE selects the posix-rename extension instead of a plain
// rename; the two entries are not swapped, and the destination is removed
// like any other overwrite.
func (b *FsBridge) Rename(cancel <-chan struct{}, input *fuse.RenameIn, oldName, newName string) fuse.Status {
	oldParent, status := b.resolve(input.NodeId)
	if status != fuse.OK {
		return status
	}
	newParent, status := b.resolve(input.Newdir)
	if status != fuse.OK {
		return status
	}

	oldPath := joinPath(oldParent, oldName)
	newPath := joinPath(newParent, newName)

	if input.Flags&unix.RENAME_NOREPLACE == 0 {
		if info, err := b.client.Lstat(newPath); err == nil {
			var remErr error
			if info.IsDir() {
				remErr = b.client.RemoveDirectory(newPath)
			} else {
				remErr = b.client.Remove(newPath)
			}
			if remErr != nil {
				return errnoToStatus(errmap.FromSFTPError(remErr))
			}
			b.inodes.Remove(newPath)
		}
	}

	var err error
	if input.Flags&unix.RENAME_EXCHANGE != 0 {
		err = b.client.PosixRename(oldPath, newPath)
	} else {
		err = b.client.Rename(oldPath, newPath)
	}
	if err != nil {
		return errnoToStatus(errmap.FromSFTPError(err))
	}

	b.inodes.Rename(oldPath, newPath)
	return fuse.OK
}

// kindBits maps a remote directory entry's mode to the fuse.S_IF* bits
// readdir needs. An entry whose type has no POSIX equivalent yields
// syscall.EBADF, which ReadDir propagates by failing the whole call.
func kindBits(info os.FileInfo) (uint32, syscall.Errno) {
	var out fuse.Attr
	errno := attr.Translate(&out, 0, info, 0, 0)
	return out.Mode &^ 0o7777, errno
}
