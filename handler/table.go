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

package handler

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/jacobsa/booze"
	"github.com/sirupsen/logrus"
)

// Table maps each operation to the identifier of the handler serving it, for
// the lifetime of one mount.
//
// The mapping is fixed at Load and is safe for concurrent reads. Identifiers
// are resolved against the environment at call time, so a handler that
// disappears from the environment makes its operation not implemented rather
// than breaking the mount.
type Table struct {
	/////////////////////////
	// Dependencies
	/////////////////////////

	env    Environment
	logger logrus.FieldLogger

	/////////////////////////
	// Mutable state
	/////////////////////////

	mu sync.RWMutex

	// Set to nil by Unload.
	//
	// INVARIANT: every key is in booze.AllOps
	// INVARIANT: no value is the empty string
	ids map[booze.Op]string // GUARDED_BY(mu)

	unloadOnce sync.Once
}

// Load builds a table from a mapping of operation names to handler
// identifiers. Entries whose key is not an operation name, or whose value is
// empty, are skipped with a warning. Operations missing from the mapping are
// not implemented.
func Load(
	mapping map[string]string,
	env Environment,
	logger logrus.FieldLogger) *Table {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	t := &Table{
		env:    env,
		logger: logger,
		ids:    make(map[booze.Op]string),
	}

	for name, id := range mapping {
		op, ok := booze.ParseOp(name)
		if !ok {
			logger.WithField("key", name).Warn("Ignoring unknown operation in handler mapping")
			continue
		}

		if id == "" {
			logger.WithField("op", op).Warn("Ignoring empty handler identifier")
			continue
		}

		t.ids[op] = id
	}

	return t
}

// Unload releases the table. Every operation is not implemented afterward.
// Calls after the first have no effect.
//
// LOCKS_EXCLUDED(t.mu)
func (t *Table) Unload() {
	t.unloadOnce.Do(func() {
		t.mu.Lock()
		defer t.mu.Unlock()

		t.logger.WithField("handlers", len(t.ids)).Debug("Unloading handler table")
		t.ids = nil
	})
}

// ID returns the handler identifier registered for the operation.
//
// LOCKS_EXCLUDED(t.mu)
func (t *Table) ID(op booze.Op) (id string, ok bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	id, ok = t.ids[op]
	return
}

// Ops returns the operations that have a handler registered, sorted by name.
//
// LOCKS_EXCLUDED(t.mu)
func (t *Table) Ops() (ops []booze.Op) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for op := range t.ids {
		ops = append(ops, op)
	}

	sort.Slice(ops, func(i, j int) bool { return ops[i] < ops[j] })
	return
}

// Invoke runs the handler registered for call.Op and interprets its result:
//
//   - No handler registered or resolvable: booze.ErrNotImplemented.
//   - Failure with no code: EIO.
//   - Failure with a code: that code, see booze.HandlerError.
//   - Success: the handler's output, if it produced any.
//
// LOCKS_EXCLUDED(t.mu)
func (t *Table) Invoke(ctx context.Context, call *Call) (out Output, err error) {
	id, ok := t.ID(call.Op)
	if !ok {
		err = booze.NotImplemented(call.Op)
		return
	}

	logger := t.logger.WithFields(logrus.Fields{
		"op":      call.Op,
		"handler": id,
	})

	h, ok := t.env.Resolve(id)
	if !ok {
		logger.Debug("Handler does not resolve")
		err = booze.NotImplemented(call.Op)
		return
	}

	res, err := h.Invoke(ctx, call)
	if errors.Is(err, ErrUnresolved) {
		logger.Debug("Handler does not exist in its environment")
		err = booze.NotImplemented(call.Op)
		return
	}

	if err != nil {
		logger.WithError(err).Error("Invoking handler")
		err = booze.ResourceError(err)
		return
	}

	if res.Failed {
		if !res.CodeSet {
			err = booze.IOError("handler %q for %s failed without an error code", id, call.Op)
			logger.Debug("Handler failed without an error code")
			return
		}

		err = booze.HandlerError(res.Code)
		if err != nil {
			logger.WithField("code", res.Code).Debug("Handler failed")
			return
		}
	}

	out = Output{Text: res.Output, Set: res.OutputSet}
	return
}
