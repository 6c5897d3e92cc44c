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

package shellenv

import (
	"context"
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"os/exec"
	"syscall"

	"github.com/jacobsa/booze/handler"
	"github.com/sirupsen/logrus"
)

// Environment variables set for every handler process.
const (
	// The descriptor the result frame is written to.
	ResultFDEnv = "BOOZE_RESULT_FD"

	// The operation being served.
	OpEnv = "BOOZE_OP"
)

// Handler processes find the result descriptor here.
const resultFD = 3

// Run the command to completion on behalf of the call, collecting the result
// frame from descriptor 3.
//
// The call's Stdin and Stdout, when set, become the process's standard input
// and output. Otherwise both standard output and standard error go to the
// logger at debug level.
func run(
	ctx context.Context,
	cmd *exec.Cmd,
	call *handler.Call,
	logger *logrus.Entry) (res handler.Result, err error) {
	r, w, err := os.Pipe()
	if err != nil {
		err = fmt.Errorf("Pipe: %w", err)
		return
	}

	defer r.Close()

	cmd.ExtraFiles = []*os.File{w}
	if cmd.Env == nil {
		cmd.Env = os.Environ()
	}

	cmd.Env = append(
		cmd.Env,
		fmt.Sprintf("%s=%d", ResultFDEnv, resultFD),
		fmt.Sprintf("%s=%s", OpEnv, call.Op))

	cmd.Stdin = call.Stdin
	if call.Stdout != nil {
		cmd.Stdout = call.Stdout
	} else {
		stdout := logger.WithField("stream", "stdout").WriterLevel(logrus.DebugLevel)
		defer stdout.Close()
		cmd.Stdout = stdout
	}

	stderr := logger.WithField("stream", "stderr").WriterLevel(logrus.DebugLevel)
	defer stderr.Close()
	cmd.Stderr = stderr

	if err = cmd.Start(); err != nil {
		w.Close()
		err = fmt.Errorf("Start: %w", err)
		return
	}

	// Our copy of the write end must go, or we would never see EOF.
	w.Close()

	frame, readErr := ioutil.ReadAll(r)
	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		err = fmt.Errorf("handler interrupted: %w", syscall.EINTR)
		return
	}

	var exitErr *exec.ExitError
	switch {
	case waitErr == nil:
	case errors.As(waitErr, &exitErr):
		res.Failed = true
	default:
		err = fmt.Errorf("Wait: %w", waitErr)
		return
	}

	if readErr != nil {
		err = fmt.Errorf("reading result frame: %w", readErr)
		return
	}

	unresolved, err := parseFrame(frame, &res)
	if err != nil {
		// The handler ran but broke the protocol. Report that as a silent
		// failure.
		logger.WithError(err).Error("Malformed result frame")
		res = handler.Result{Failed: true}
		err = nil
		return
	}

	if unresolved {
		err = handler.ErrUnresolved
		return
	}

	return
}

// Report writes a result frame to the descriptor named by BOOZE_RESULT_FD.
// Handler programs written in Go call this before exiting; a non-zero exit
// status marks the call as failed.
func Report(res handler.Result) (err error) {
	var fd int
	if _, err = fmt.Sscanf(os.Getenv(ResultFDEnv), "%d", &fd); err != nil {
		err = fmt.Errorf("%s: %w", ResultFDEnv, err)
		return
	}

	f := os.NewFile(uintptr(fd), "result")
	defer f.Close()

	_, err = f.Write(encodeFrame(res))
	return
}
