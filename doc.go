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

// Package booze enables mounting user-space file systems whose every
// operation is served by a named external handler, for example a bash
// function.
//
// The primary elements of interest are:
//
//   - The Op type, naming the fixed set of operations a handler may serve.
//
//   - The errors in this package, which carry the errno reported to the
//     kernel. Use Errno to recover it.
//
//   - handler.Table, which maps operation names to handler identifiers and
//     implements the call/return protocol.
//
//   - boozefs.NewFileSystem, which turns a table into a file system that may
//     be mounted with github.com/jacobsa/fuse.
//
// The cmd/booze tool mounts a file system given a handler mapping and a
// mount point.
package booze
