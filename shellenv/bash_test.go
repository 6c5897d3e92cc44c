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

package shellenv_test

import (
	"bytes"
	"context"
	"errors"
	"io/ioutil"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"

	"github.com/jacobsa/booze"
	"github.com/jacobsa/booze/handler"
	"github.com/jacobsa/booze/internal/boozetesting"
	"github.com/jacobsa/booze/shellenv"
	. "github.com/jacobsa/oglematchers"
	. "github.com/jacobsa/ogletest"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

func TestShellEnv(t *testing.T) { RunTests(t) }

////////////////////////////////////////////////////////////////////////
// Helpers
////////////////////////////////////////////////////////////////////////

func discardLogger() *logrus.Entry {
	l := logrus.New()
	l.Out = ioutil.Discard
	return logrus.NewEntry(l)
}

////////////////////////////////////////////////////////////////////////
// Bash
////////////////////////////////////////////////////////////////////////

type BashTest struct {
	ctx context.Context
	env *shellenv.Bash

	// A temporary directory for scripts, deleted in TearDown.
	dir string
}

var _ SetUpInterface = &BashTest{}
var _ TearDownInterface = &BashTest{}

func init() { RegisterTestSuite(&BashTest{}) }

func (t *BashTest) SetUp(ti *TestInfo) {
	var err error
	t.ctx = context.Background()

	script, err := filepath.Abs("../samples/hello/hello.sh")
	AssertEq(nil, err)

	t.env = &shellenv.Bash{
		Script: script,
		Logger: discardLogger(),
	}

	t.dir, err = ioutil.TempDir("", "shellenv_test")
	AssertEq(nil, err)
}

func (t *BashTest) TearDown() {
	os.RemoveAll(t.dir)
}

func (t *BashTest) invoke(
	id string,
	call *handler.Call) (res handler.Result, err error) {
	h, ok := t.env.Resolve(id)
	AssertTrue(ok)

	res, err = h.Invoke(t.ctx, call)
	return
}

func (t *BashTest) Mapping() {
	m, err := t.env.Mapping(t.ctx, "hello_handlers")
	AssertEq(nil, err)

	ExpectEq(6, len(m))
	ExpectEq("hello_getattr", m["getattr"])
	ExpectEq("hello_read", m["read"])
}

func (t *BashTest) MappingDoesNotExist() {
	_, err := t.env.Mapping(t.ctx, "taco_handlers")
	ExpectTrue(errors.Is(err, shellenv.ErrNoSuchMapping), "%v", err)
}

func (t *BashTest) MappingIsNotAnAssociativeArray() {
	_, err := t.env.Mapping(t.ctx, "hello_contents")
	ExpectTrue(errors.Is(err, shellenv.ErrNotAMapping), "%v", err)
}

func (t *BashTest) MappingWithMissingScript() {
	t.env.Script = path.Join(t.dir, "missing.sh")

	_, err := t.env.Mapping(t.ctx, "hello_handlers")
	ExpectThat(err, Error(HasSubstr("handler script")))
}

func (t *BashTest) BadIdentifier() {
	_, ok := t.env.Resolve("rm -rf /")
	ExpectFalse(ok)
}

func (t *BashTest) Output() {
	res, err := t.invoke("hello_getattr", &handler.Call{
		Op:   booze.Getattr,
		Args: []string{"/hello"},
	})

	AssertEq(nil, err)
	ExpectFalse(res.Failed)
	ExpectFalse(res.CodeSet)
	ExpectTrue(res.OutputSet)
	ExpectEq("2 100444 1 0 0 0 13 1 0 0 0", res.Output)
}

func (t *BashTest) FailureWithCode() {
	res, err := t.invoke("hello_getattr", &handler.Call{
		Op:   booze.Getattr,
		Args: []string{"/taco"},
	})

	AssertEq(nil, err)
	ExpectTrue(res.Failed)
	ExpectTrue(res.CodeSet)
	ExpectEq(-2, res.Code)
	ExpectFalse(res.OutputSet)
}

func (t *BashTest) FailureWithoutOutput() {
	res, err := t.invoke("hello_access", &handler.Call{
		Op:   booze.Access,
		Args: []string{"/hello", "2"},
	})

	AssertEq(nil, err)
	ExpectTrue(res.Failed)
	ExpectEq(-13, res.Code)
	ExpectFalse(res.OutputSet)
}

func (t *BashTest) UndefinedFunction() {
	_, err := t.invoke("hello_mkdir", &handler.Call{
		Op:   booze.Mkdir,
		Args: []string{"/a", "493"},
	})

	ExpectEq(handler.ErrUnresolved, err)
}

func (t *BashTest) StreamedRead() {
	var buf bytes.Buffer
	res, err := t.invoke("hello_read", &handler.Call{
		Op:     booze.Read,
		Args:   []string{"/hello", "5", "7"},
		Stdout: &buf,
	})

	AssertEq(nil, err)
	ExpectFalse(res.Failed)
	ExpectEq("world", buf.String())
}

func (t *BashTest) ScriptOutputStaysOutOfPayload() {
	script := path.Join(t.dir, "noisy.sh")
	err := ioutil.WriteFile(
		script,
		[]byte("echo loading\nnoisy_read() { printf taco; }\n"),
		0644)
	AssertEq(nil, err)

	t.env.Script = script

	var buf bytes.Buffer
	_, err = t.invoke("noisy_read", &handler.Call{
		Op:     booze.Read,
		Args:   []string{"/f", "4", "0"},
		Stdout: &buf,
	})

	AssertEq(nil, err)
	ExpectEq("taco", buf.String())
}

func (t *BashTest) StandardInput() {
	script := path.Join(t.dir, "sink.sh")
	err := ioutil.WriteFile(
		script,
		[]byte("sink_write() { booze_out=$(wc -c); booze_out=${booze_out// /}; }\n"),
		0644)
	AssertEq(nil, err)

	t.env.Script = script

	res, err := t.invoke("sink_write", &handler.Call{
		Op:    booze.Write,
		Args:  []string{"/f", "5", "0"},
		Stdin: strings.NewReader("tacos"),
	})

	AssertEq(nil, err)
	ExpectEq("5", res.Output)
}

func (t *BashTest) OperationInEnvironment() {
	script := path.Join(t.dir, "op.sh")
	err := ioutil.WriteFile(
		script,
		[]byte("op_getattr() { booze_out=$BOOZE_OP; }\n"),
		0644)
	AssertEq(nil, err)

	t.env.Script = script

	res, err := t.invoke("op_getattr", &handler.Call{
		Op:   booze.Getattr,
		Args: []string{"/"},
	})

	AssertEq(nil, err)
	ExpectEq("getattr", res.Output)
}

func (t *BashTest) ThroughHandlerTable() {
	m, err := t.env.Mapping(t.ctx, "hello_handlers")
	AssertEq(nil, err)

	table := handler.Load(m, t.env, discardLogger())

	out, err := table.Invoke(t.ctx, &handler.Call{Op: booze.Readdir, Args: []string{"/"}})
	AssertEq(nil, err)
	ExpectEq("hello/dir", out.Text)

	_, err = table.Invoke(t.ctx, &handler.Call{Op: booze.Readdir, Args: []string{"/hello"}})
	ExpectThat(err, boozetesting.ErrnoIs(syscall.ENOTDIR))

	_, err = table.Invoke(t.ctx, &handler.Call{Op: booze.Mkdir, Args: []string{"/a", "493"}})
	ExpectThat(err, boozetesting.ErrnoIs(syscall.ENOSYS))
}

////////////////////////////////////////////////////////////////////////
// Exec
////////////////////////////////////////////////////////////////////////

type ExecTest struct {
	ctx context.Context
	env *shellenv.Exec
	dir string
}

var _ SetUpInterface = &ExecTest{}
var _ TearDownInterface = &ExecTest{}

func init() { RegisterTestSuite(&ExecTest{}) }

func (t *ExecTest) SetUp(ti *TestInfo) {
	var err error
	t.ctx = context.Background()
	t.env = &shellenv.Exec{
		Env:    []string{"TACO=burrito"},
		Logger: discardLogger(),
	}

	t.dir, err = ioutil.TempDir("", "shellenv_test")
	AssertEq(nil, err)
}

func (t *ExecTest) TearDown() {
	os.RemoveAll(t.dir)
}

// Write an executable shell script and return its path.
func (t *ExecTest) program(name string, body string) string {
	p := path.Join(t.dir, name)
	err := ioutil.WriteFile(p, []byte("#!/bin/sh\n"+body), 0755)
	AssertEq(nil, err)

	return p
}

func (t *ExecTest) ProgramNotFound() {
	_, ok := t.env.Resolve(path.Join(t.dir, "missing"))
	ExpectFalse(ok)
}

func (t *ExecTest) UnbalancedQuotes() {
	_, ok := t.env.Resolve("sh 'taco")
	ExpectFalse(ok)
}

func (t *ExecTest) ArgumentsAndEnvironment() {
	p := t.program("echo", `printf 'o%s %s %s\0' "$1" "$2" "$TACO" >&"$BOOZE_RESULT_FD"`)

	h, ok := t.env.Resolve(p + " 'first word'")
	AssertTrue(ok)

	res, err := h.Invoke(t.ctx, &handler.Call{Op: booze.Getattr, Args: []string{"/x"}})

	AssertEq(nil, err)
	ExpectFalse(res.Failed)
	ExpectEq("first word /x burrito", res.Output)
}

func (t *ExecTest) ExitStatusIsFailure() {
	p := t.program("fail", `printf 'e-5\0' >&3; exit 1`)

	h, ok := t.env.Resolve(p)
	AssertTrue(ok)

	res, err := h.Invoke(t.ctx, &handler.Call{Op: booze.Unlink, Args: []string{"/x"}})

	AssertEq(nil, err)
	ExpectTrue(res.Failed)
	ExpectEq(-5, res.Code)
}

func (t *ExecTest) MalformedFrameIsSilentFailure() {
	p := t.program("garbage", `printf 'garbage' >&3`)

	h, ok := t.env.Resolve(p)
	AssertTrue(ok)

	res, err := h.Invoke(t.ctx, &handler.Call{Op: booze.Unlink, Args: []string{"/x"}})

	AssertEq(nil, err)
	ExpectTrue(res.Failed)
	ExpectFalse(res.CodeSet)
}

////////////////////////////////////////////////////////////////////////
// Report
////////////////////////////////////////////////////////////////////////

type ReportTest struct {
}

func init() { RegisterTestSuite(&ReportTest{}) }

func (t *ReportTest) WritesFrame() {
	r, w, err := os.Pipe()
	AssertEq(nil, err)
	defer r.Close()
	defer w.Close()

	// Report closes the descriptor it is given.
	fd, err := unix.Dup(int(w.Fd()))
	AssertEq(nil, err)

	os.Setenv(shellenv.ResultFDEnv, strconv.Itoa(fd))
	defer os.Unsetenv(shellenv.ResultFDEnv)

	var res handler.Result
	res.SetOutput("taco")
	AssertEq(nil, shellenv.Report(res))

	w.Close()
	b, err := ioutil.ReadAll(r)
	AssertEq(nil, err)
	ExpectEq("otaco\x00", string(b))
}

func (t *ReportTest) MissingDescriptor() {
	os.Unsetenv(shellenv.ResultFDEnv)
	ExpectNe(nil, shellenv.Report(handler.Result{}))
}
