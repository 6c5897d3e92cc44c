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

package codec

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jacobsa/booze"
	"golang.org/x/sys/unix"
)

// The number of fields in an attribute record.
const attributeFields = 11

// Attributes is the record a getattr handler prints: eleven whitespace
// separated fields in the order of the struct. The mode is octal and the
// times are whole seconds since the epoch.
type Attributes struct {
	Inode  uint64
	Mode   uint32 // Unix st_mode, including the file type bits
	Nlink  uint64
	Uid    uint32
	Gid    uint32
	Rdev   uint64
	Size   int64
	Blocks int64
	Atime  int64
	Mtime  int64
	Ctime  int64
}

// ParseAttributes decodes an attribute record. Integer fields other than the
// mode accept a 0x or leading-zero prefix, as C's %i does.
func ParseAttributes(s string) (attrs Attributes, err error) {
	fields := strings.Fields(s)
	if len(fields) != attributeFields {
		err = booze.IOError(
			"attribute record has %d fields, want %d: %q",
			len(fields),
			attributeFields,
			s)
		return
	}

	// Decode into a scratch value so that nothing leaks on failure.
	var a Attributes
	var p fieldParser

	a.Inode = p.unsigned(fields[0], "inode", 0, 64)
	a.Mode = uint32(p.octal(fields[1], "mode"))
	a.Nlink = p.unsigned(fields[2], "nlink", 0, 64)
	a.Uid = uint32(p.unsigned(fields[3], "uid", 0, 32))
	a.Gid = uint32(p.unsigned(fields[4], "gid", 0, 32))
	a.Rdev = p.unsigned(fields[5], "rdev", 0, 64)
	a.Size = p.signed(fields[6], "size")
	a.Blocks = p.signed(fields[7], "blocks")
	a.Atime = p.signed(fields[8], "atime")
	a.Mtime = p.signed(fields[9], "mtime")
	a.Ctime = p.signed(fields[10], "ctime")

	if p.err != nil {
		err = p.err
		return
	}

	if a.Size < 0 {
		err = booze.IOError("negative size in attribute record: %q", s)
		return
	}

	attrs = a
	return
}

// String encodes the record in the form ParseAttributes accepts.
func (a Attributes) String() string {
	return fmt.Sprintf(
		"%d %o %d %d %d %d %d %d %d %d %d",
		a.Inode,
		a.Mode,
		a.Nlink,
		a.Uid,
		a.Gid,
		a.Rdev,
		a.Size,
		a.Blocks,
		a.Atime,
		a.Mtime,
		a.Ctime)
}

// FileMode returns the record's mode as an os.FileMode.
func (a Attributes) FileMode() os.FileMode {
	return FileMode(a.Mode)
}

func (a Attributes) AtimeTime() time.Time {
	return time.Unix(a.Atime, 0)
}

func (a Attributes) MtimeTime() time.Time {
	return time.Unix(a.Mtime, 0)
}

func (a Attributes) CtimeTime() time.Time {
	return time.Unix(a.Ctime, 0)
}

////////////////////////////////////////////////////////////////////////
// Modes
////////////////////////////////////////////////////////////////////////

// FileMode converts a Unix st_mode value to an os.FileMode.
func FileMode(m uint32) os.FileMode {
	mode := os.FileMode(m & 0777)

	switch m & unix.S_IFMT {
	case unix.S_IFDIR:
		mode |= os.ModeDir
	case unix.S_IFLNK:
		mode |= os.ModeSymlink
	case unix.S_IFIFO:
		mode |= os.ModeNamedPipe
	case unix.S_IFSOCK:
		mode |= os.ModeSocket
	case unix.S_IFCHR:
		mode |= os.ModeDevice | os.ModeCharDevice
	case unix.S_IFBLK:
		mode |= os.ModeDevice
	}

	if m&unix.S_ISUID != 0 {
		mode |= os.ModeSetuid
	}

	if m&unix.S_ISGID != 0 {
		mode |= os.ModeSetgid
	}

	if m&unix.S_ISVTX != 0 {
		mode |= os.ModeSticky
	}

	return mode
}

// UnixMode converts an os.FileMode to a Unix st_mode value. A mode with no
// type bits is a regular file.
func UnixMode(mode os.FileMode) uint32 {
	m := uint32(mode.Perm())

	switch {
	case mode&os.ModeDir != 0:
		m |= unix.S_IFDIR
	case mode&os.ModeSymlink != 0:
		m |= unix.S_IFLNK
	case mode&os.ModeNamedPipe != 0:
		m |= unix.S_IFIFO
	case mode&os.ModeSocket != 0:
		m |= unix.S_IFSOCK
	case mode&os.ModeCharDevice != 0:
		m |= unix.S_IFCHR
	case mode&os.ModeDevice != 0:
		m |= unix.S_IFBLK
	default:
		m |= unix.S_IFREG
	}

	if mode&os.ModeSetuid != 0 {
		m |= unix.S_ISUID
	}

	if mode&os.ModeSetgid != 0 {
		m |= unix.S_ISGID
	}

	if mode&os.ModeSticky != 0 {
		m |= unix.S_ISVTX
	}

	return m
}

////////////////////////////////////////////////////////////////////////
// Helpers
////////////////////////////////////////////////////////////////////////

// Parses fields in sequence, remembering the first failure.
type fieldParser struct {
	err error
}

func (p *fieldParser) signed(tok string, name string) int64 {
	if p.err != nil {
		return 0
	}

	v, err := strconv.ParseInt(tok, 0, 64)
	if err != nil {
		p.err = booze.IOError("bad %s field %q: %v", name, tok, err)
		return 0
	}

	return v
}

// A base of zero accepts the prefixes that C's %i does.
func (p *fieldParser) unsigned(tok string, name string, base int, bits int) uint64 {
	if p.err != nil {
		return 0
	}

	v, err := strconv.ParseUint(tok, base, bits)
	if err != nil {
		p.err = booze.IOError("bad %s field %q: %v", name, tok, err)
		return 0
	}

	return v
}

func (p *fieldParser) octal(tok string, name string) uint64 {
	if p.err != nil {
		return 0
	}

	v, err := strconv.ParseUint(tok, 8, 32)
	if err != nil {
		p.err = booze.IOError("bad %s field %q: %v", name, tok, err)
		return 0
	}

	return v
}
