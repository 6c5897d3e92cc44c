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

// Package samples contains example handler scripts, and harnesses for
// mounting them in tests.
package samples

import (
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"os/exec"
	"time"

	"github.com/jacobsa/booze/boozefs"
	"github.com/jacobsa/booze/handler"
	"github.com/jacobsa/fuse"
	"github.com/jacobsa/ogletest"
	"github.com/jacobsa/timeutil"
	"github.com/sirupsen/logrus"
)

// Available reports whether this machine can mount FUSE file systems at all.
// Tests that mount should skip themselves when it returns false.
func Available() bool {
	if _, err := os.Stat("/dev/fuse"); err != nil {
		return false
	}

	if _, err := exec.LookPath("fusermount3"); err == nil {
		return true
	}

	if _, err := exec.LookPath("fusermount"); err == nil {
		return true
	}

	return false
}

// A struct that implements common behavior needed by tests in the samples/
// directory where the file system is mounted in-process. Use it as an
// embedded field in your test fixture, calling its SetUp method from your
// SetUp method after setting the Mapping and Env fields.
type SampleTest struct {
	// The handler mapping and the environment that runs the handlers.
	Mapping map[string]string
	Env     handler.Environment

	ReadMode boozefs.ReadMode

	// Configuration for the mount. Logging is set up by SetUp if left empty.
	MountConfig fuse.MountConfig

	// A clock with a fixed initial time, used for cache expirations.
	Clock timeutil.SimulatedClock

	// A context object that can be used for long-running operations.
	Ctx context.Context

	// The directory at which the file system is mounted.
	Dir string

	// Anything non-nil in this slice will be closed by TearDown. The test will
	// fail if closing fails.
	ToClose []io.Closer

	mfs *fuse.MountedFileSystem
}

// Mount the file system and initialize the other exported fields of the
// struct. Panics on error.
//
// REQUIRES: t.Mapping and t.Env have been set.
func (t *SampleTest) SetUp(ti *ogletest.TestInfo) {
	err := t.initialize()
	if err != nil {
		panic(err)
	}
}

// Like SetUp, but doens't panic.
func (t *SampleTest) initialize() (err error) {
	t.Ctx = context.Background()
	t.Clock.SetTime(time.Date(2015, 4, 5, 2, 15, 0, 0, time.Local))

	logger := logrus.New()
	logger.Out = ioutil.Discard
	entry := logrus.NewEntry(logger)

	table := handler.Load(t.Mapping, t.Env, entry)
	ops := boozefs.NewOps(table, &boozefs.OpsConfig{
		ReadMode: t.ReadMode,
		Logger:   entry,
	})

	server := boozefs.NewServer(ops, &boozefs.Config{
		Clock:  &t.Clock,
		Logger: entry,
	})

	t.Dir, err = ioutil.TempDir("", "sample_test")
	if err != nil {
		err = fmt.Errorf("TempDir: %v", err)
		return
	}

	t.mfs, err = fuse.Mount(t.Dir, server, &t.MountConfig)
	if err != nil {
		err = fmt.Errorf("Mount: %v", err)
		return
	}

	return
}

// Unmount the file system and clean up. Panics on error.
func (t *SampleTest) TearDown() {
	err := t.destroy()
	if err != nil {
		panic(err)
	}
}

// Like TearDown, but doesn't panic.
func (t *SampleTest) destroy() (err error) {
	for _, c := range t.ToClose {
		if c == nil {
			continue
		}

		ogletest.ExpectEq(nil, c.Close())
	}

	if t.mfs == nil {
		return
	}

	if err = unmount(t.Dir); err != nil {
		err = fmt.Errorf("unmount: %v", err)
		return
	}

	if err = t.mfs.Join(t.Ctx); err != nil {
		err = fmt.Errorf("Join: %v", err)
		return
	}

	if err = os.Remove(t.Dir); err != nil {
		err = fmt.Errorf("Remove: %v", err)
		return
	}

	return
}

// Unmount the file system at dir, retrying while the kernel still considers
// it busy.
func unmount(dir string) (err error) {
	const maxAttempts = 50

	for i := 0; i < maxAttempts; i++ {
		err = fuse.Unmount(dir)
		if err == nil {
			return
		}

		time.Sleep(100 * time.Millisecond)
	}

	return
}
