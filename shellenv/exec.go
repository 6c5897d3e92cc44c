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
	"os"
	"os/exec"

	"github.com/jacobsa/booze/handler"
	"github.com/kballard/go-shellquote"
	"github.com/sirupsen/logrus"
)

// Exec is an environment whose handler identifiers are command lines, split
// into words with shell quoting rules but not otherwise interpreted by a
// shell. The call's arguments are appended to the words.
type Exec struct {
	// Working directory for handler processes. Empty means ours.
	Dir string

	// Extra environment variables, in KEY=VALUE form.
	Env []string

	Logger *logrus.Entry
}

var _ handler.Environment = &Exec{}

// Resolve splits the command line and looks up its program. A command line
// that does not split, or whose program cannot be found, does not resolve.
func (e *Exec) Resolve(id string) (h handler.Handler, ok bool) {
	words, err := shellquote.Split(id)
	if err != nil || len(words) == 0 {
		return nil, false
	}

	path, err := exec.LookPath(words[0])
	if err != nil {
		return nil, false
	}

	h = &execHandler{
		env:  e,
		path: path,
		args: words[1:],
	}

	ok = true
	return
}

type execHandler struct {
	env  *Exec
	path string
	args []string
}

func (h *execHandler) Invoke(
	ctx context.Context,
	call *handler.Call) (res handler.Result, err error) {
	args := append(append([]string{}, h.args...), call.Args...)

	cmd := exec.CommandContext(ctx, h.path, args...)
	cmd.Dir = h.env.Dir
	cmd.Env = append(os.Environ(), h.env.Env...)

	logger := h.env.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	logger = logger.WithFields(logrus.Fields{
		"op":      call.Op,
		"program": h.path,
	})

	if logger.Logger.IsLevelEnabled(logrus.TraceLevel) {
		logger.WithField("argv", shellquote.Join(args...)).Trace("Running handler")
	}

	res, err = run(ctx, cmd, call, logger)
	return
}
