// Copyright 2015 Google Inc. All Rights Reserved.
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

// Package boozefs contains the dispatch table that serves file system
// callbacks with handlers, and a fuseutil.FileSystem built on top of it.
package boozefs

import (
	"context"
	"os"
	"time"

	"github.com/jacobsa/booze"
	"github.com/jacobsa/booze/codec"
	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"
	"github.com/jacobsa/timeutil"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// The inode number reported in directory entries. Handlers name entries by
// path only, so the kernel must look each one up.
const unknownInode fuseops.InodeID = 0xffffffff

type Config struct {
	// Used to compute cache expirations. Defaults to the real clock.
	Clock timeutil.Clock

	// How long the kernel may cache attributes and directory entries. Zero
	// means every access goes to the handlers.
	AttributeTTL time.Duration
	EntryTTL     time.Duration

	// Bypass the page cache for file contents, so that handlers see every read
	// and files may report a size that does not match their contents.
	DirectIO bool

	Logger *logrus.Entry
}

// NewFileSystem returns a file system that serves every kernel request by
// calling into the dispatch table.
func NewFileSystem(ops *Ops, cfg *Config) fuseutil.FileSystem {
	fs := &fileSystem{
		ops:          ops,
		clock:        cfg.Clock,
		attributeTTL: cfg.AttributeTTL,
		entryTTL:     cfg.EntryTTL,
		directIO:     cfg.DirectIO,
		logger:       cfg.Logger,
		inodes:       newInodeTable(),
		handles:      newHandleTable(),
	}

	if fs.clock == nil {
		fs.clock = timeutil.RealClock()
	}

	if fs.logger == nil {
		fs.logger = logrus.NewEntry(logrus.StandardLogger())
	}

	return fs
}

// NewServer wraps NewFileSystem for fuse.Mount.
func NewServer(ops *Ops, cfg *Config) fuse.Server {
	return fuseutil.NewFileSystemServer(NewFileSystem(ops, cfg))
}

type fileSystem struct {
	fuseutil.NotImplementedFileSystem

	/////////////////////////
	// Dependencies
	/////////////////////////

	ops    *Ops
	clock  timeutil.Clock
	logger *logrus.Entry

	/////////////////////////
	// Constant data
	/////////////////////////

	attributeTTL time.Duration
	entryTTL     time.Duration
	directIO     bool

	/////////////////////////
	// Mutable state
	/////////////////////////

	inodes  *inodeTable
	handles *handleTable
}

var _ fuseutil.FileSystem = &fileSystem{}

////////////////////////////////////////////////////////////////////////
// Helpers
////////////////////////////////////////////////////////////////////////

// Convert an error from the dispatch table into what the kernel is told.
func (fs *fileSystem) errno(err error) error {
	if err == nil {
		return nil
	}

	return booze.Errno(err)
}

// Find the path of an inode the kernel refers to. The kernel never names an
// inode it has forgotten, so failure here is a bug somewhere.
func (fs *fileSystem) path(id fuseops.InodeID) (p string, err error) {
	p, ok := fs.inodes.Path(id)
	if !ok {
		fs.logger.WithField("inode", id).Error("Request for unknown inode")
		err = fuse.EIO
	}

	return
}

func (fs *fileSystem) convertAttributes(a codec.Attributes) fuseops.InodeAttributes {
	return fuseops.InodeAttributes{
		Size:   uint64(a.Size),
		Nlink:  uint32(a.Nlink),
		Mode:   a.FileMode(),
		Rdev:   uint32(a.Rdev),
		Atime:  a.AtimeTime(),
		Mtime:  a.MtimeTime(),
		Ctime:  a.CtimeTime(),
		Crtime: a.CtimeTime(),
		Uid:    a.Uid,
		Gid:    a.Gid,
	}
}

// Fill in an entry for the child at p, which the kernel is about to learn
// about. The lookup count is taken only if everything succeeds.
func (fs *fileSystem) fillEntry(
	ctx context.Context,
	p string,
	e *fuseops.ChildInodeEntry) (err error) {
	attrs, err := fs.ops.Getattr(ctx, p)
	if err != nil {
		return
	}

	now := fs.clock.Now()

	e.Child = fs.inodes.LookUp(p)
	e.Attributes = fs.convertAttributes(attrs)
	e.AttributesExpiration = now.Add(fs.attributeTTL)
	e.EntryExpiration = now.Add(fs.entryTTL)

	return
}

// Return the path of the named child of the parent directory.
func (fs *fileSystem) child(parent fuseops.InodeID, name string) (p string, err error) {
	parentPath, err := fs.path(parent)
	if err != nil {
		return
	}

	p = childPath(parentPath, name)
	return
}

// Strip the file type from a mode, leaving the bits a handler may set.
func permissionBits(m os.FileMode) uint32 {
	return codec.UnixMode(m) &^ unix.S_IFMT
}

////////////////////////////////////////////////////////////////////////
// FileSystem methods
////////////////////////////////////////////////////////////////////////

func (fs *fileSystem) StatFS(
	ctx context.Context,
	op *fuseops.StatFSOp) (err error) {
	st, err := fs.ops.Statfs(ctx, rootPath)
	if err != nil {
		return fs.errno(err)
	}

	op.BlockSize = uint32(st.BlockSize)
	op.Blocks = st.Blocks
	op.BlocksFree = st.BlocksFree
	op.BlocksAvailable = st.BlocksAvailable
	op.IoSize = uint32(st.BlockSize)
	op.Inodes = st.Files
	op.InodesFree = st.FilesFree

	return
}

func (fs *fileSystem) LookUpInode(
	ctx context.Context,
	op *fuseops.LookUpInodeOp) (err error) {
	p, err := fs.child(op.Parent, op.Name)
	if err != nil {
		return
	}

	return fs.errno(fs.fillEntry(ctx, p, &op.Entry))
}

func (fs *fileSystem) GetInodeAttributes(
	ctx context.Context,
	op *fuseops.GetInodeAttributesOp) (err error) {
	p, err := fs.path(op.Inode)
	if err != nil {
		return
	}

	attrs, err := fs.ops.Getattr(ctx, p)
	if err != nil {
		return fs.errno(err)
	}

	op.Attributes = fs.convertAttributes(attrs)
	op.AttributesExpiration = fs.clock.Now().Add(fs.attributeTTL)

	return
}

func (fs *fileSystem) SetInodeAttributes(
	ctx context.Context,
	op *fuseops.SetInodeAttributesOp) (err error) {
	p, err := fs.path(op.Inode)
	if err != nil {
		return
	}

	if op.Size != nil {
		if err = fs.ops.Truncate(ctx, p, int64(*op.Size)); err != nil {
			return fs.errno(err)
		}
	}

	if op.Mode != nil {
		if err = fs.ops.Chmod(ctx, p, codec.UnixMode(*op.Mode)); err != nil {
			return fs.errno(err)
		}
	}

	if op.Uid != nil || op.Gid != nil {
		uid, gid := int64(-1), int64(-1)
		if op.Uid != nil {
			uid = int64(*op.Uid)
		}

		if op.Gid != nil {
			gid = int64(*op.Gid)
		}

		if err = fs.ops.Chown(ctx, p, uid, gid); err != nil {
			return fs.errno(err)
		}
	}

	if op.Atime != nil || op.Mtime != nil {
		// Handlers always get both times. Fill in the one not being changed.
		var atime, mtime time.Time
		if op.Atime == nil || op.Mtime == nil {
			var attrs codec.Attributes
			if attrs, err = fs.ops.Getattr(ctx, p); err != nil {
				return fs.errno(err)
			}

			atime, mtime = attrs.AtimeTime(), attrs.MtimeTime()
		}

		if op.Atime != nil {
			atime = *op.Atime
		}

		if op.Mtime != nil {
			mtime = *op.Mtime
		}

		if err = fs.ops.Utimens(ctx, p, atime, mtime); err != nil {
			return fs.errno(err)
		}
	}

	attrs, err := fs.ops.Getattr(ctx, p)
	if err != nil {
		return fs.errno(err)
	}

	op.Attributes = fs.convertAttributes(attrs)
	op.AttributesExpiration = fs.clock.Now().Add(fs.attributeTTL)

	return
}

func (fs *fileSystem) ForgetInode(
	ctx context.Context,
	op *fuseops.ForgetInodeOp) (err error) {
	fs.inodes.Forget(op.Inode, op.N)
	return
}

func (fs *fileSystem) BatchForget(
	ctx context.Context,
	op *fuseops.BatchForgetOp) (err error) {
	for _, e := range op.Entries {
		fs.inodes.Forget(e.Inode, e.N)
	}

	return
}

func (fs *fileSystem) MkDir(
	ctx context.Context,
	op *fuseops.MkDirOp) (err error) {
	p, err := fs.child(op.Parent, op.Name)
	if err != nil {
		return
	}

	if err = fs.ops.Mkdir(ctx, p, permissionBits(op.Mode)); err != nil {
		return fs.errno(err)
	}

	return fs.errno(fs.fillEntry(ctx, p, &op.Entry))
}

func (fs *fileSystem) MkNode(
	ctx context.Context,
	op *fuseops.MkNodeOp) (err error) {
	p, err := fs.child(op.Parent, op.Name)
	if err != nil {
		return
	}

	if err = fs.ops.Mknod(ctx, p, codec.UnixMode(op.Mode), uint64(op.Rdev)); err != nil {
		return fs.errno(err)
	}

	return fs.errno(fs.fillEntry(ctx, p, &op.Entry))
}

// CreateFile makes a regular file with mknod, then opens it.
func (fs *fileSystem) CreateFile(
	ctx context.Context,
	op *fuseops.CreateFileOp) (err error) {
	p, err := fs.child(op.Parent, op.Name)
	if err != nil {
		return
	}

	mode := permissionBits(op.Mode) | unix.S_IFREG
	if err = fs.ops.Mknod(ctx, p, mode, 0); err != nil {
		return fs.errno(err)
	}

	if err = fs.ops.Open(ctx, p, unix.O_RDWR); err != nil {
		return fs.errno(err)
	}

	if err = fs.fillEntry(ctx, p, &op.Entry); err != nil {
		return fs.errno(err)
	}

	op.Handle = fs.handles.add(&fileHandle{inode: op.Entry.Child})
	return
}

func (fs *fileSystem) CreateSymlink(
	ctx context.Context,
	op *fuseops.CreateSymlinkOp) (err error) {
	p, err := fs.child(op.Parent, op.Name)
	if err != nil {
		return
	}

	if err = fs.ops.Symlink(ctx, op.Target, p); err != nil {
		return fs.errno(err)
	}

	return fs.errno(fs.fillEntry(ctx, p, &op.Entry))
}

func (fs *fileSystem) CreateLink(
	ctx context.Context,
	op *fuseops.CreateLinkOp) (err error) {
	target, err := fs.path(op.Target)
	if err != nil {
		return
	}

	p, err := fs.child(op.Parent, op.Name)
	if err != nil {
		return
	}

	if err = fs.ops.Link(ctx, target, p); err != nil {
		return fs.errno(err)
	}

	return fs.errno(fs.fillEntry(ctx, p, &op.Entry))
}

func (fs *fileSystem) Rename(
	ctx context.Context,
	op *fuseops.RenameOp) (err error) {
	from, err := fs.child(op.OldParent, op.OldName)
	if err != nil {
		return
	}

	to, err := fs.child(op.NewParent, op.NewName)
	if err != nil {
		return
	}

	if err = fs.ops.Rename(ctx, from, to); err != nil {
		return fs.errno(err)
	}

	fs.inodes.Rename(from, to)
	return
}

func (fs *fileSystem) RmDir(
	ctx context.Context,
	op *fuseops.RmDirOp) (err error) {
	p, err := fs.child(op.Parent, op.Name)
	if err != nil {
		return
	}

	if err = fs.ops.Rmdir(ctx, p); err != nil {
		return fs.errno(err)
	}

	fs.inodes.Detach(p)
	return
}

func (fs *fileSystem) Unlink(
	ctx context.Context,
	op *fuseops.UnlinkOp) (err error) {
	p, err := fs.child(op.Parent, op.Name)
	if err != nil {
		return
	}

	if err = fs.ops.Unlink(ctx, p); err != nil {
		return fs.errno(err)
	}

	fs.inodes.Detach(p)
	return
}

func (fs *fileSystem) OpenDir(
	ctx context.Context,
	op *fuseops.OpenDirOp) (err error) {
	if _, err = fs.path(op.Inode); err != nil {
		return
	}

	op.Handle = fs.handles.add(&dirHandle{inode: op.Inode})
	return
}

func (fs *fileSystem) ReadDir(
	ctx context.Context,
	op *fuseops.ReadDirOp) (err error) {
	dh, ok := fs.handles.dir(op.Handle)
	if !ok {
		fs.logger.WithField("handle", op.Handle).Error("ReadDir on unknown handle")
		return fuse.EIO
	}

	p, err := fs.path(dh.inode)
	if err != nil {
		return
	}

	dh.mu.Lock()
	defer dh.mu.Unlock()

	// Take a fresh listing when reading from the start.
	if op.Offset == 0 || !dh.loaded {
		var names []string
		if names, err = fs.ops.Readdir(ctx, p); err != nil {
			return fs.errno(err)
		}

		dh.names = names
		dh.loaded = true
	}

	for i := int(op.Offset); i < len(dh.names); i++ {
		d := fuseutil.Dirent{
			Offset: fuseops.DirOffset(i + 1),
			Inode:  unknownInode,
			Name:   dh.names[i],
			Type:   fuseutil.DT_Unknown,
		}

		n := fuseutil.WriteDirent(op.Dst[op.BytesRead:], d)
		if n == 0 {
			break
		}

		op.BytesRead += n
	}

	return
}

func (fs *fileSystem) ReleaseDirHandle(
	ctx context.Context,
	op *fuseops.ReleaseDirHandleOp) (err error) {
	fs.handles.remove(op.Handle)
	return
}

func (fs *fileSystem) OpenFile(
	ctx context.Context,
	op *fuseops.OpenFileOp) (err error) {
	p, err := fs.path(op.Inode)
	if err != nil {
		return
	}

	if err = fs.ops.Open(ctx, p, uint32(op.OpenFlags)); err != nil {
		return fs.errno(err)
	}

	op.Handle = fs.handles.add(&fileHandle{inode: op.Inode})
	op.UseDirectIO = fs.directIO
	return
}

func (fs *fileSystem) ReadFile(
	ctx context.Context,
	op *fuseops.ReadFileOp) (err error) {
	p, err := fs.path(op.Inode)
	if err != nil {
		return
	}

	op.BytesRead, err = fs.ops.Read(ctx, p, op.Dst, op.Offset)
	return fs.errno(err)
}

// WriteFile hands the data to the write handler until all of it has been
// consumed. The kernel has no notion of a short write here.
func (fs *fileSystem) WriteFile(
	ctx context.Context,
	op *fuseops.WriteFileOp) (err error) {
	p, err := fs.path(op.Inode)
	if err != nil {
		return
	}

	data := op.Data
	offset := op.Offset
	for len(data) > 0 {
		var n int
		if n, err = fs.ops.Write(ctx, p, data, offset); err != nil {
			return fs.errno(err)
		}

		if n == 0 {
			fs.logger.WithField("path", p).Error("Write handler made no progress")
			return fuse.EIO
		}

		data = data[n:]
		offset += int64(n)
	}

	return
}

func (fs *fileSystem) SyncFile(
	ctx context.Context,
	op *fuseops.SyncFileOp) (err error) {
	p, err := fs.path(op.Inode)
	if err != nil {
		return
	}

	return fs.errno(fs.ops.Fsync(ctx, p, false))
}

func (fs *fileSystem) FlushFile(
	ctx context.Context,
	op *fuseops.FlushFileOp) (err error) {
	return
}

func (fs *fileSystem) ReleaseFileHandle(
	ctx context.Context,
	op *fuseops.ReleaseFileHandleOp) (err error) {
	fh, ok := fs.handles.file(op.Handle)
	if !ok {
		return
	}

	fs.handles.remove(op.Handle)

	p, err := fs.path(fh.inode)
	if err != nil {
		return
	}

	return fs.errno(fs.ops.Release(ctx, p))
}

func (fs *fileSystem) ReadSymlink(
	ctx context.Context,
	op *fuseops.ReadSymlinkOp) (err error) {
	p, err := fs.path(op.Inode)
	if err != nil {
		return
	}

	op.Target, err = fs.ops.Readlink(ctx, p)
	return fs.errno(err)
}

func (fs *fileSystem) Fallocate(
	ctx context.Context,
	op *fuseops.FallocateOp) (err error) {
	p, err := fs.path(op.Inode)
	if err != nil {
		return
	}

	err = fs.ops.Fallocate(ctx, p, op.Mode, int64(op.Offset), int64(op.Length))
	return fs.errno(err)
}

func (fs *fileSystem) GetXattr(
	ctx context.Context,
	op *fuseops.GetXattrOp) (err error) {
	_, err = fs.ops.Getxattr(ctx, "", op.Name)
	return fs.errno(err)
}

func (fs *fileSystem) ListXattr(
	ctx context.Context,
	op *fuseops.ListXattrOp) (err error) {
	_, err = fs.ops.Listxattr(ctx, "")
	return fs.errno(err)
}

func (fs *fileSystem) SetXattr(
	ctx context.Context,
	op *fuseops.SetXattrOp) (err error) {
	return fs.errno(fs.ops.Setxattr(ctx, "", op.Name, op.Value, op.Flags))
}

func (fs *fileSystem) RemoveXattr(
	ctx context.Context,
	op *fuseops.RemoveXattrOp) (err error) {
	return fs.errno(fs.ops.Removexattr(ctx, "", op.Name))
}

// Destroy unloads the handler table when the file system is unmounted.
func (fs *fileSystem) Destroy() {
	fs.ops.Unload()
}
