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

package booze

// The name of an operation that may be served by a handler. The set is closed;
// handler mappings keyed by anything else are ignored.
type Op string

const (
	Getattr     Op = "getattr"
	Access      Op = "access"
	Readlink    Op = "readlink"
	Readdir     Op = "readdir"
	Mknod       Op = "mknod"
	Mkdir       Op = "mkdir"
	Unlink      Op = "unlink"
	Rmdir       Op = "rmdir"
	Symlink     Op = "symlink"
	Rename      Op = "rename"
	Link        Op = "link"
	Chmod       Op = "chmod"
	Chown       Op = "chown"
	Truncate    Op = "truncate"
	Utimens     Op = "utimens"
	Open        Op = "open"
	Read        Op = "read"
	Write       Op = "write"
	Statfs      Op = "statfs"
	Release     Op = "release"
	Fsync       Op = "fsync"
	Fallocate   Op = "fallocate"
	Setxattr    Op = "setxattr"
	Getxattr    Op = "getxattr"
	Listxattr   Op = "listxattr"
	Removexattr Op = "removexattr"
)

// AllOps lists every operation name, in the order the dispatch table
// declares them.
var AllOps = []Op{
	Getattr,
	Access,
	Readlink,
	Readdir,
	Mknod,
	Mkdir,
	Unlink,
	Rmdir,
	Symlink,
	Rename,
	Link,
	Chmod,
	Chown,
	Truncate,
	Utimens,
	Open,
	Read,
	Write,
	Statfs,
	Release,
	Fsync,
	Fallocate,
	Setxattr,
	Getxattr,
	Listxattr,
	Removexattr,
}

var knownOps = func() map[Op]struct{} {
	m := make(map[Op]struct{}, len(AllOps))
	for _, op := range AllOps {
		m[op] = struct{}{}
	}

	return m
}()

// ParseOp returns the operation with the given name, if any.
func ParseOp(name string) (op Op, ok bool) {
	op = Op(name)
	_, ok = knownOps[op]
	return
}

// Does this operation move file contents through the bulk channel rather than
// the text channel?
func (op Op) IsBulk() bool {
	return op == Read || op == Write
}

func (op Op) String() string {
	return string(op)
}
