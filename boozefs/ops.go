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

package boozefs

import (
	"context"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jacobsa/booze"
	"github.com/jacobsa/booze/bulk"
	"github.com/jacobsa/booze/codec"
	"github.com/jacobsa/booze/handler"
	"github.com/jacobsa/booze/internal/metrics"
	"github.com/sirupsen/logrus"
)

// How read handlers return data.
type ReadMode int

const (
	// The handler writes the data to its standard output, which is a pipe.
	ReadModeStream ReadMode = iota

	// The handler returns the data as its output text. Binary data and data
	// containing NUL bytes cannot be returned this way.
	ReadModeText
)

// ParseReadMode parses "stream" or "text".
func ParseReadMode(s string) (m ReadMode, ok bool) {
	switch s {
	case "stream":
		return ReadModeStream, true
	case "text":
		return ReadModeText, true
	}

	return
}

type OpsConfig struct {
	ReadMode ReadMode
	Logger   *logrus.Entry
}

// Ops is the dispatch table: one method per path-based file system callback,
// each of which encodes its arguments, invokes the handler registered for the
// operation and decodes what comes back.
//
// Callbacks are serialized; at most one handler runs at a time.
type Ops struct {
	table    *handler.Table
	readMode ReadMode
	logger   *logrus.Entry

	mu sync.Mutex
}

// NewOps creates a dispatch table over the given handler table.
func NewOps(table *handler.Table, cfg *OpsConfig) *Ops {
	metrics.Register()

	o := &Ops{
		table:    table,
		readMode: cfg.ReadMode,
		logger:   cfg.Logger,
	}

	if o.logger == nil {
		o.logger = logrus.NewEntry(logrus.StandardLogger())
	}

	return o
}

// Unload unloads the handler table. Every operation is not implemented
// afterward.
func (o *Ops) Unload() {
	o.table.Unload()
}

////////////////////////////////////////////////////////////////////////
// Helpers
////////////////////////////////////////////////////////////////////////

// Run fn with the lock held and record the outcome.
//
// LOCKS_EXCLUDED(o.mu)
func (o *Ops) dispatch(op booze.Op, fn func() error) (err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	start := time.Now()
	err = fn()
	metrics.ObserveOperation(op, err, start, time.Now())

	if err != nil && !booze.IsNotImplemented(err) && !booze.IsUnsupported(err) {
		o.logger.WithFields(logrus.Fields{
			"op":    op,
			"errno": booze.Errno(err),
		}).WithError(err).Debug("Operation failed")
	}

	return
}

// Invoke the handler for op and discard its output.
func (o *Ops) call(ctx context.Context, op booze.Op, args ...string) error {
	return o.dispatch(op, func() error {
		_, err := o.table.Invoke(ctx, &handler.Call{Op: op, Args: args})
		return err
	})
}

// Invoke the handler for op and require it to produce output.
//
// REQUIRES: o.mu held
func (o *Ops) output(ctx context.Context, op booze.Op, args ...string) (s string, err error) {
	out, err := o.table.Invoke(ctx, &handler.Call{Op: op, Args: args})
	if err != nil {
		return
	}

	if !out.Set {
		err = booze.IOError("%s handler succeeded without output", op)
		return
	}

	s = out.Text
	return
}

////////////////////////////////////////////////////////////////////////
// Dispatch table
////////////////////////////////////////////////////////////////////////

func (o *Ops) Getattr(ctx context.Context, path string) (attrs codec.Attributes, err error) {
	err = o.dispatch(booze.Getattr, func() (err error) {
		s, err := o.output(ctx, booze.Getattr, path)
		if err != nil {
			return
		}

		attrs, err = codec.ParseAttributes(s)
		return
	})

	return
}

func (o *Ops) Access(ctx context.Context, path string, mask uint32) error {
	return o.call(ctx, booze.Access, path, codec.Mode(mask))
}

func (o *Ops) Readlink(ctx context.Context, path string) (target string, err error) {
	err = o.dispatch(booze.Readlink, func() (err error) {
		target, err = o.output(ctx, booze.Readlink, path)
		return
	})

	return
}

func (o *Ops) Readdir(ctx context.Context, path string) (names []string, err error) {
	err = o.dispatch(booze.Readdir, func() (err error) {
		s, err := o.output(ctx, booze.Readdir, path)
		if err != nil {
			return
		}

		names, err = codec.ParseDirents(s)
		return
	})

	return
}

func (o *Ops) Mknod(ctx context.Context, path string, mode uint32, dev uint64) error {
	return o.call(ctx, booze.Mknod, path, codec.Mode(mode), codec.Uint(dev))
}

func (o *Ops) Mkdir(ctx context.Context, path string, mode uint32) error {
	return o.call(ctx, booze.Mkdir, path, codec.Mode(mode))
}

func (o *Ops) Unlink(ctx context.Context, path string) error {
	return o.call(ctx, booze.Unlink, path)
}

func (o *Ops) Rmdir(ctx context.Context, path string) error {
	return o.call(ctx, booze.Rmdir, path)
}

// Symlink creates a link at to whose target is from.
func (o *Ops) Symlink(ctx context.Context, from string, to string) error {
	return o.call(ctx, booze.Symlink, from, to)
}

func (o *Ops) Rename(ctx context.Context, from string, to string) error {
	return o.call(ctx, booze.Rename, from, to)
}

func (o *Ops) Link(ctx context.Context, from string, to string) error {
	return o.call(ctx, booze.Link, from, to)
}

func (o *Ops) Chmod(ctx context.Context, path string, mode uint32) error {
	return o.call(ctx, booze.Chmod, path, codec.Mode(mode))
}

// Chown changes ownership. An id of -1 leaves that id unchanged.
func (o *Ops) Chown(ctx context.Context, path string, uid int64, gid int64) error {
	return o.call(ctx, booze.Chown, path, codec.Int(uid), codec.Int(gid))
}

func (o *Ops) Truncate(ctx context.Context, path string, size int64) error {
	return o.call(ctx, booze.Truncate, path, codec.Int(size))
}

func (o *Ops) Utimens(ctx context.Context, path string, atime time.Time, mtime time.Time) error {
	return o.call(ctx, booze.Utimens, path, codec.Timespec(atime), codec.Timespec(mtime))
}

func (o *Ops) Open(ctx context.Context, path string, flags uint32) error {
	return o.call(ctx, booze.Open, path, codec.Mode(flags))
}

// Read fills dst with data from the given offset of the file, returning the
// number of bytes read. Fewer than len(dst) bytes means end of file.
func (o *Ops) Read(
	ctx context.Context,
	path string,
	dst []byte,
	offset int64) (n int, err error) {
	err = o.dispatch(booze.Read, func() (err error) {
		// Don't bother with pipes if nobody is listening.
		if _, ok := o.table.ID(booze.Read); !ok {
			err = booze.NotImplemented(booze.Read)
			return
		}

		args := []string{path, codec.Int(int64(len(dst))), codec.Int(offset)}

		if o.readMode == ReadModeText {
			n, err = o.readText(ctx, args, dst)
			return
		}

		n, err = bulk.Read(
			ctx,
			func(ctx context.Context, stdout io.Writer) error {
				_, err := o.table.Invoke(ctx, &handler.Call{
					Op:     booze.Read,
					Args:   args,
					Stdout: stdout,
				})

				return err
			},
			dst)

		metrics.AddBulkBytes(metrics.DirectionRead, n)
		return
	})

	return
}

// REQUIRES: o.mu held
func (o *Ops) readText(ctx context.Context, args []string, dst []byte) (n int, err error) {
	s, err := o.output(ctx, booze.Read, args...)
	if err != nil {
		return
	}

	if len(s) > len(dst) {
		err = booze.IOError("read handler returned %d bytes, want at most %d", len(s), len(dst))
		return
	}

	n = copy(dst, s)
	return
}

// Write hands src to the handler as data for the given offset of the file,
// returning the number of bytes it reports having consumed.
func (o *Ops) Write(
	ctx context.Context,
	path string,
	src []byte,
	offset int64) (n int, err error) {
	err = o.dispatch(booze.Write, func() (err error) {
		if _, ok := o.table.ID(booze.Write); !ok {
			err = booze.NotImplemented(booze.Write)
			return
		}

		args := []string{path, codec.Int(int64(len(src))), codec.Int(offset)}

		n, err = bulk.Write(
			ctx,
			func(ctx context.Context, stdin io.Reader) (consumed int64, err error) {
				out, err := o.table.Invoke(ctx, &handler.Call{
					Op:    booze.Write,
					Args:  args,
					Stdin: stdin,
				})

				if err != nil {
					return
				}

				if !out.Set {
					err = booze.IOError("write handler succeeded without reporting a count")
					return
				}

				consumed, err = strconv.ParseInt(strings.TrimSpace(out.Text), 10, 64)
				if err != nil {
					err = booze.IOError("write handler reported a bad count %q", out.Text)
					return
				}

				return
			},
			src)

		metrics.AddBulkBytes(metrics.DirectionWrite, n)
		return
	})

	return
}

func (o *Ops) Statfs(ctx context.Context, path string) (st codec.StatFS, err error) {
	err = o.dispatch(booze.Statfs, func() (err error) {
		s, err := o.output(ctx, booze.Statfs, path)
		if err != nil {
			return
		}

		st, err = codec.ParseStatFS(s)
		return
	})

	return
}

func (o *Ops) Release(ctx context.Context, path string) error {
	return o.call(ctx, booze.Release, path)
}

// Fsync flushes the file. datasync asks for the data only, not the metadata.
func (o *Ops) Fsync(ctx context.Context, path string, datasync bool) error {
	return o.call(ctx, booze.Fsync, path, codec.Bool(datasync))
}

func (o *Ops) Fallocate(
	ctx context.Context,
	path string,
	mode uint32,
	offset int64,
	length int64) error {
	return o.call(
		ctx,
		booze.Fallocate,
		path,
		codec.Mode(mode),
		codec.Int(offset),
		codec.Int(length))
}

// Extended attributes are never supported, whatever the handler mapping says.

func (o *Ops) Setxattr(ctx context.Context, path string, name string, value []byte, flags uint32) error {
	return o.dispatch(booze.Setxattr, func() error { return booze.Unsupported(booze.Setxattr) })
}

func (o *Ops) Getxattr(ctx context.Context, path string, name string) ([]byte, error) {
	return nil, o.dispatch(booze.Getxattr, func() error { return booze.Unsupported(booze.Getxattr) })
}

func (o *Ops) Listxattr(ctx context.Context, path string) ([]string, error) {
	return nil, o.dispatch(booze.Listxattr, func() error { return booze.Unsupported(booze.Listxattr) })
}

func (o *Ops) Removexattr(ctx context.Context, path string, name string) error {
	return o.dispatch(booze.Removexattr, func() error { return booze.Unsupported(booze.Removexattr) })
}
