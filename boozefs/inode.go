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
	"fmt"
	"path"
	"strings"

	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/syncutil"
)

// The path of the root directory.
const rootPath = "/"

// Child returns the path of the named entry in the directory at parent.
func childPath(parent string, name string) string {
	return path.Join(parent, name)
}

// inodeTable assigns inode IDs to paths and tracks the kernel's references to
// them. Handlers only speak in paths.
type inodeTable struct {
	mu syncutil.InvariantMutex

	// The path each live inode was last known by. An inode whose path was
	// unlinked or renamed over stays here, detached, until the kernel forgets
	// it.
	//
	// INVARIANT: paths[fuseops.RootInodeID] == "/"
	// INVARIANT: for all id, path.Clean(paths[id]) == paths[id]
	paths map[fuseops.InodeID]string // GUARDED_BY(mu)

	// The inode currently attached to each path.
	//
	// INVARIANT: for all p, paths[ids[p]] == p
	ids map[string]fuseops.InodeID // GUARDED_BY(mu)

	// The kernel's lookup count for each inode other than the root.
	//
	// INVARIANT: for all id in lookups, id is in paths and lookups[id] > 0
	// INVARIANT: for all id in paths other than the root, id is in lookups
	lookups map[fuseops.InodeID]uint64 // GUARDED_BY(mu)

	// INVARIANT: for all id in paths, id < nextID
	nextID fuseops.InodeID // GUARDED_BY(mu)
}

func newInodeTable() *inodeTable {
	t := &inodeTable{
		paths:   map[fuseops.InodeID]string{fuseops.RootInodeID: rootPath},
		ids:     map[string]fuseops.InodeID{rootPath: fuseops.RootInodeID},
		lookups: make(map[fuseops.InodeID]uint64),
		nextID:  fuseops.RootInodeID + 1,
	}

	t.mu = syncutil.NewInvariantMutex(t.checkInvariants)
	return t
}

func (t *inodeTable) checkInvariants() {
	if p := t.paths[fuseops.RootInodeID]; p != rootPath {
		panic(fmt.Sprintf("Unexpected root path: %q", p))
	}

	for id, p := range t.paths {
		if path.Clean(p) != p {
			panic(fmt.Sprintf("Unclean path for inode %d: %q", id, p))
		}

		if id >= t.nextID {
			panic(fmt.Sprintf("Inode %d not below next ID %d", id, t.nextID))
		}

		if _, ok := t.lookups[id]; !ok && id != fuseops.RootInodeID {
			panic(fmt.Sprintf("No lookup count for inode %d", id))
		}
	}

	for p, id := range t.ids {
		if t.paths[id] != p {
			panic(fmt.Sprintf("Path %q maps to inode %d, which has path %q", p, id, t.paths[id]))
		}
	}

	for id, n := range t.lookups {
		if _, ok := t.paths[id]; !ok {
			panic(fmt.Sprintf("Lookup count for unknown inode %d", id))
		}

		if n == 0 {
			panic(fmt.Sprintf("Zero lookup count for inode %d", id))
		}
	}
}

// Path returns the path of the inode, if the kernel still knows it.
//
// LOCKS_EXCLUDED(t.mu)
func (t *inodeTable) Path(id fuseops.InodeID) (p string, ok bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	p, ok = t.paths[id]
	return
}

// LookUp returns the inode attached to the path, allocating one if needed,
// and increments its lookup count.
//
// LOCKS_EXCLUDED(t.mu)
func (t *inodeTable) LookUp(p string) (id fuseops.InodeID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	id, ok := t.ids[p]
	if !ok {
		id = t.nextID
		t.nextID++

		t.paths[id] = p
		t.ids[p] = id
	}

	if id != fuseops.RootInodeID {
		t.lookups[id]++
	}

	return
}

// Forget decrements the inode's lookup count by n, dropping the inode when it
// reaches zero. The root is never dropped.
//
// LOCKS_EXCLUDED(t.mu)
func (t *inodeTable) Forget(id fuseops.InodeID, n uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if id == fuseops.RootInodeID {
		return
	}

	count, ok := t.lookups[id]
	if !ok {
		return
	}

	if n < count {
		t.lookups[id] = count - n
		return
	}

	p := t.paths[id]
	delete(t.lookups, id)
	delete(t.paths, id)

	if t.ids[p] == id {
		delete(t.ids, p)
	}
}

// Detach removes the path's association with its inode, after the path has
// been unlinked. The inode keeps answering to its old path until forgotten.
//
// LOCKS_EXCLUDED(t.mu)
func (t *inodeTable) Detach(p string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.detach(p)
}

// Detach p and every path below it.
//
// LOCKS_REQUIRED(t.mu)
func (t *inodeTable) detach(p string) {
	if p == rootPath {
		return
	}

	prefix := p + "/"
	for q := range t.ids {
		if q == p || strings.HasPrefix(q, prefix) {
			delete(t.ids, q)
		}
	}
}

// Rename moves the inode at from, along with everything below it, to to.
// Whatever was attached at to is detached.
//
// LOCKS_EXCLUDED(t.mu)
func (t *inodeTable) Rename(from string, to string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if from == to || from == rootPath {
		return
	}

	t.detach(to)

	prefix := from + "/"
	moved := make(map[string]fuseops.InodeID)
	for q, id := range t.ids {
		var dst string
		switch {
		case q == from:
			dst = to
		case strings.HasPrefix(q, prefix):
			dst = to + "/" + strings.TrimPrefix(q, prefix)
		default:
			continue
		}

		delete(t.ids, q)
		moved[dst] = id
	}

	for q, id := range moved {
		t.ids[q] = id
		t.paths[id] = q
	}
}
