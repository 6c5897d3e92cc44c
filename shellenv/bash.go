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

// Package shellenv contains handler execution environments backed by child
// processes: functions defined by a bash script, and arbitrary programs.
//
// Each handler call runs in its own process. The process reports its result
// through a frame written to file descriptor 3 (see BOOZE_RESULT_FD), and
// signals failure with a non-zero exit status.
package shellenv

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"

	"github.com/jacobsa/booze/handler"
	"github.com/kballard/go-shellquote"
	"github.com/sirupsen/logrus"
)

// The program bash runs for every call. $1 is the function name and the rest
// are its arguments. The function reports through the booze_err and
// booze_out variables, which are forwarded only if it set them.
const bashPrelude = `
if [ -n "$BOOZE_SCRIPT" ]; then
	. "$BOOZE_SCRIPT" >&2
fi

booze_fn=$1
shift

if ! declare -F -- "$booze_fn" >/dev/null; then
	printf 'u\0' >&3
	exit 127
fi

unset booze_err booze_out
"$booze_fn" "$@" 3>&-
booze_status=$?

if [ -n "${booze_err+set}" ]; then
	printf 'e%s\0' "$booze_err" >&3
fi

if [ -n "${booze_out+set}" ]; then
	printf 'o%s\0' "$booze_out" >&3
fi

exit $booze_status
`

// Environment variable naming the script to source.
const scriptEnv = "BOOZE_SCRIPT"

var bashIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_:.-]*$`)

// Bash is an environment whose handlers are bash functions defined by a
// script. The script is sourced afresh for every call, so handlers keep no
// state in shell variables between calls.
type Bash struct {
	// The bash binary. Defaults to "bash" found in $PATH.
	Shell string

	// The script that defines the handler functions. May be empty if the
	// functions come from the environment (export -f).
	Script string

	// Working directory for handler processes. Empty means ours.
	Dir string

	// Extra environment variables, in KEY=VALUE form.
	Env []string

	Logger *logrus.Entry
}

var _ handler.Environment = &Bash{}

// Resolve returns a handler for the named function. Whether the function
// exists is found out when it is called.
func (b *Bash) Resolve(id string) (h handler.Handler, ok bool) {
	if !bashIdentifier.MatchString(id) {
		return nil, false
	}

	h = &bashHandler{env: b, fn: id}
	ok = true
	return
}

func (b *Bash) shell() string {
	if b.Shell != "" {
		return b.Shell
	}

	return "bash"
}

func (b *Bash) logger() *logrus.Entry {
	if b.Logger != nil {
		return b.Logger
	}

	return logrus.NewEntry(logrus.StandardLogger())
}

// Build a command that runs prog with bash, passing args as its positional
// parameters.
func (b *Bash) command(ctx context.Context, prog string, args ...string) *exec.Cmd {
	argv := append([]string{"-c", prog, "booze"}, args...)
	cmd := exec.CommandContext(ctx, b.shell(), argv...)
	cmd.Dir = b.Dir
	cmd.Env = append(os.Environ(), b.Env...)
	cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", scriptEnv, b.Script))

	return cmd
}

type bashHandler struct {
	env *Bash
	fn  string
}

func (h *bashHandler) Invoke(
	ctx context.Context,
	call *handler.Call) (res handler.Result, err error) {
	args := append([]string{h.fn}, call.Args...)
	cmd := h.env.command(ctx, bashPrelude, args...)

	logger := h.env.logger().WithFields(logrus.Fields{
		"op":       call.Op,
		"function": h.fn,
	})

	if logger.Logger.IsLevelEnabled(logrus.TraceLevel) {
		logger.WithField("argv", shellquote.Join(args...)).Trace("Calling bash handler")
	}

	res, err = run(ctx, cmd, call, logger)
	return
}
