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

package samples

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"log"
	"os"
	"os/exec"
	"path"
	"sync"

	"github.com/jacobsa/ogletest"
)

// A struct that implements common behavior needed by tests in the samples/
// directory where the file system is mounted by the booze command running as
// a subprocess. Use it as an embedded field in your test fixture, calling its
// SetUp method from your SetUp method after setting the Mapping field.
type SubprocessTest struct {
	// The MAPPING argument to booze.
	Mapping string

	// Additional flags to be passed to booze.
	MountFlags []string

	// Additional environment variables for booze and its handlers, in
	// KEY=VALUE form.
	MountEnv []string

	// A context object that can be used for long-running operations.
	Ctx context.Context

	// The directory at which the file system is mounted.
	Dir string

	// Anything non-nil in this slice will be closed by TearDown. The test will
	// fail if closing fails.
	ToClose []io.Closer

	mountCmd    *exec.Cmd
	mountStderr bytes.Buffer
}

// Mount the file system and initialize the other exported fields of the
// struct. Panics on error.
//
// REQUIRES: t.Mapping has been set.
func (t *SubprocessTest) SetUp(ti *ogletest.TestInfo) {
	err := t.initialize()
	if err != nil {
		panic(err)
	}
}

// Set by buildBooze.
var boozePath string
var boozeErr error
var boozeOnce sync.Once

// Build the booze command if it has not yet been built for this process.
// Return a path to the binary.
func buildBooze() (toolPath string, err error) {
	boozeOnce.Do(func() {
		tempDir, err := ioutil.TempDir("", "")
		if err != nil {
			boozeErr = fmt.Errorf("TempDir: %v", err)
			return
		}

		boozePath = path.Join(tempDir, "booze")

		cmd := exec.Command(
			"go",
			"build",
			"-o",
			boozePath,
			"github.com/jacobsa/booze/cmd/booze")

		output, err := cmd.CombinedOutput()
		if err != nil {
			boozeErr = fmt.Errorf(
				"go build exited with %v, output:\n%s",
				err,
				string(output))

			return
		}
	})

	if boozeErr != nil {
		err = boozeErr
		return
	}

	toolPath = boozePath
	return
}

// Like SetUp, but doens't panic.
func (t *SubprocessTest) initialize() (err error) {
	t.Ctx = context.Background()

	t.Dir, err = ioutil.TempDir("", "sample_test")
	if err != nil {
		err = fmt.Errorf("TempDir: %v", err)
		return
	}

	toolPath, err := buildBooze()
	if err != nil {
		err = fmt.Errorf("buildBooze: %v", err)
		return
	}

	// booze writes a byte here once mounted.
	readyReader, readyWriter, err := os.Pipe()
	if err != nil {
		err = fmt.Errorf("Pipe: %v", err)
		return
	}

	defer readyReader.Close()

	args := append([]string{"--ready-fd=3"}, t.MountFlags...)
	args = append(args, t.Mapping, t.Dir)

	t.mountCmd = exec.Command(toolPath, args...)
	t.mountCmd.Env = append(os.Environ(), t.MountEnv...)
	t.mountCmd.ExtraFiles = []*os.File{readyWriter}
	t.mountCmd.Stderr = &t.mountStderr

	err = t.mountCmd.Start()
	readyWriter.Close()

	if err != nil {
		err = fmt.Errorf("mountCmd.Start: %v", err)
		t.mountCmd = nil
		return
	}

	// A failed mount closes the pipe without writing.
	var b [1]byte
	if _, err = io.ReadFull(readyReader, b[:]); err != nil {
		t.mountCmd.Wait()
		err = fmt.Errorf(
			"booze did not become ready (%v). Stderr:\n%s",
			err,
			t.mountStderr.String())

		t.mountCmd = nil
		return
	}

	return
}

// Unmount the file system and clean up. Panics on error.
func (t *SubprocessTest) TearDown() {
	err := t.destroy()
	if err != nil {
		panic(err)
	}
}

// Like TearDown, but doesn't panic.
func (t *SubprocessTest) destroy() (err error) {
	for _, c := range t.ToClose {
		if c == nil {
			continue
		}

		ogletest.ExpectEq(nil, c.Close())
	}

	// If we didn't manage to mount the file system, there's nothing further to
	// do.
	if t.mountCmd == nil {
		return
	}

	// In the background, initiate an unmount.
	unmountErrChan := make(chan error)
	go func() {
		unmountErrChan <- unmount(t.Dir)
	}()

	// Make sure we wait for the unmount, even if we've already returned early in
	// error. Return its error if we haven't seen any other error.
	defer func() {
		unmountErr := <-unmountErrChan
		if unmountErr != nil {
			if err != nil {
				log.Println("unmount:", unmountErr)
				return
			}

			err = fmt.Errorf("unmount: %v", unmountErr)
		}
	}()

	// Wait for the subprocess.
	if err = t.mountCmd.Wait(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			err = fmt.Errorf(
				"booze exited with %v. Stderr:\n%s",
				exitErr,
				t.mountStderr.String())

			return
		}

		err = fmt.Errorf("mountCmd.Wait: %v", err)
		return
	}

	return
}
