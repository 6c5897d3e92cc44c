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

package booze_test

import (
	"errors"
	"fmt"
	"math"
	"os"
	"syscall"
	"testing"

	"github.com/jacobsa/booze"
	. "github.com/jacobsa/oglematchers"
	. "github.com/jacobsa/ogletest"
)

func TestErrors(t *testing.T) { RunTests(t) }

////////////////////////////////////////////////////////////////////////
// Boilerplate
////////////////////////////////////////////////////////////////////////

type ErrorsTest struct {
}

func init() { RegisterTestSuite(&ErrorsTest{}) }

////////////////////////////////////////////////////////////////////////
// Tests
////////////////////////////////////////////////////////////////////////

func (t *ErrorsTest) NilIsSuccess() {
	ExpectEq(syscall.Errno(0), booze.Errno(nil))
}

func (t *ErrorsTest) NotImplemented() {
	err := booze.NotImplemented(booze.Readdir)

	ExpectEq(syscall.ENOSYS, booze.Errno(err))
	ExpectTrue(booze.IsNotImplemented(err))
	ExpectFalse(booze.IsUnsupported(err))
	ExpectThat(err, Error(HasSubstr("readdir")))
}

func (t *ErrorsTest) Unsupported() {
	err := booze.Unsupported(booze.Getxattr)

	ExpectEq(syscall.ENOSYS, booze.Errno(err))
	ExpectTrue(booze.IsUnsupported(err))
	ExpectFalse(booze.IsNotImplemented(err))
}

func (t *ErrorsTest) IOError() {
	err := booze.IOError("taco %d", 17)

	ExpectEq(syscall.EIO, booze.Errno(err))
	ExpectThat(err, Error(HasSubstr("taco 17")))
}

func (t *ErrorsTest) HandlerError_Negative() {
	err := booze.HandlerError(-2)
	ExpectEq(syscall.ENOENT, booze.Errno(err))

	code, ok := booze.HandlerCode(err)
	AssertTrue(ok)
	ExpectEq(-2, code)
}

func (t *ErrorsTest) HandlerError_Positive() {
	err := booze.HandlerError(int(syscall.EACCES))
	ExpectEq(syscall.EACCES, booze.Errno(err))
}

func (t *ErrorsTest) HandlerError_Limits() {
	ExpectEq(syscall.Errno(511), booze.Errno(booze.HandlerError(511)))
	ExpectEq(syscall.Errno(511), booze.Errno(booze.HandlerError(-511)))
	ExpectEq(syscall.EPERM, booze.Errno(booze.HandlerError(-1)))
}

func (t *ErrorsTest) HandlerError_OutOfRange() {
	codes := []int{512, -512, 1000, 1 << 40, -(1 << 40), math.MaxInt64, math.MinInt64}
	for _, code := range codes {
		err := booze.HandlerError(code)
		ExpectEq(syscall.ERANGE, booze.Errno(err), "code: %d", code)

		got, ok := booze.HandlerCode(err)
		ExpectTrue(ok, "code: %d", code)
		ExpectEq(code, got)
	}
}

func (t *ErrorsTest) HandlerError_Zero() {
	ExpectEq(nil, booze.HandlerError(0))
}

func (t *ErrorsTest) ResourceError_KeepsErrno() {
	cause := &os.PathError{Op: "pipe", Path: "", Err: syscall.EMFILE}
	err := booze.ResourceError(cause)

	ExpectEq(syscall.EMFILE, booze.Errno(err))
	ExpectTrue(errors.Is(err, syscall.EMFILE))
}

func (t *ErrorsTest) ResourceError_DefaultsToEIO() {
	err := booze.ResourceError(errors.New("taco"))
	ExpectEq(syscall.EIO, booze.Errno(err))
}

func (t *ErrorsTest) PlainErrno() {
	err := fmt.Errorf("wrapped: %w", syscall.EROFS)
	ExpectEq(syscall.EROFS, booze.Errno(err))
}

func (t *ErrorsTest) PlainError() {
	ExpectEq(syscall.EIO, booze.Errno(errors.New("taco")))
}

func (t *ErrorsTest) ParseOp() {
	op, ok := booze.ParseOp("getattr")
	ExpectTrue(ok)
	ExpectEq(booze.Getattr, op)

	_, ok = booze.ParseOp("frobnicate")
	ExpectFalse(ok)

	ExpectEq(26, len(booze.AllOps))
}
