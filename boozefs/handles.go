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
	"sync"

	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/syncutil"
)

// State for an open directory.
type dirHandle struct {
	inode fuseops.InodeID

	mu sync.Mutex

	// The listing returned by the handler, fetched on the first read at offset
	// zero. Later reads continue from it so that offsets stay stable.
	names  []string // GUARDED_BY(mu)
	loaded bool     // GUARDED_BY(mu)
}

// State for an open file.
type fileHandle struct {
	inode fuseops.InodeID
}

type handleTable struct {
	mu syncutil.InvariantMutex

	// INVARIANT: every value is a *dirHandle or a *fileHandle
	// INVARIANT: for all id, id < nextID
	handles map[fuseops.HandleID]interface{} // GUARDED_BY(mu)

	nextID fuseops.HandleID // GUARDED_BY(mu)
}

func newHandleTable() *handleTable {
	t := &handleTable{
		handles: make(map[fuseops.HandleID]interface{}),
	}

	t.mu = syncutil.NewInvariantMutex(t.checkInvariants)
	return t
}

func (t *handleTable) checkInvariants() {
	for id, h := range t.handles {
		switch h.(type) {
		case *dirHandle, *fileHandle:
		default:
			panic(fmt.Sprintf("Unexpected handle type for %d: %T", id, h))
		}

		if id >= t.nextID {
			panic(fmt.Sprintf("Handle %d not below next ID %d", id, t.nextID))
		}
	}
}

// LOCKS_EXCLUDED(t.mu)
func (t *handleTable) add(h interface{}) (id fuseops.HandleID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	id = t.nextID
	t.nextID++
	t.handles[id] = h

	return
}

// LOCKS_EXCLUDED(t.mu)
func (t *handleTable) dir(id fuseops.HandleID) (h *dirHandle, ok bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	h, ok = t.handles[id].(*dirHandle)
	return
}

// LOCKS_EXCLUDED(t.mu)
func (t *handleTable) file(id fuseops.HandleID) (h *fileHandle, ok bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	h, ok = t.handles[id].(*fileHandle)
	return
}

// LOCKS_EXCLUDED(t.mu)
func (t *handleTable) remove(id fuseops.HandleID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.handles, id)
}
