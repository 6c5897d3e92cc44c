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

package booze

import (
	"errors"
	"fmt"
	"syscall"

	"github.com/ansel1/merry"
)

// Keys of the values attached to errors created by this package.
const (
	errnoKey = "errno"
	codeKey  = "handler_code"
)

var (
	// The operation has no handler registered for this mount, or the
	// registered identifier does not resolve in the execution environment.
	ErrNotImplemented = merry.New("operation not implemented").
				WithValue(errnoKey, syscall.ENOSYS)

	// The operation is never supported, whatever the handler mapping says.
	// Reported to the kernel exactly like ErrNotImplemented.
	ErrUnsupported = merry.New("operation not supported").
			WithValue(errnoKey, syscall.ENOSYS)

	// A handler failed without saying why, or broke the result protocol.
	ErrIO = merry.New("input/output error").
		WithValue(errnoKey, syscall.EIO)
)

// NotImplemented returns an error wrapping ErrNotImplemented for the given
// operation.
func NotImplemented(op Op) error {
	return merry.WrapSkipping(ErrNotImplemented, 1).Appendf("op %s", op)
}

// Unsupported returns an error wrapping ErrUnsupported for the given
// operation.
func Unsupported(op Op) error {
	return merry.WrapSkipping(ErrUnsupported, 1).Appendf("op %s", op)
}

// IOError returns an error that reports EIO, with a message describing the
// protocol violation.
func IOError(format string, a ...interface{}) error {
	return merry.WrapSkipping(fmt.Errorf(format, a...), 1).
		WithValue(errnoKey, syscall.EIO)
}

// The largest errno the kernel accepts in a reply.
const maxErrno = 511

// HandlerError returns the error for a handler that failed with the supplied
// code. Codes are errno values and may be given negated, as in the C
// convention for file system callbacks; both -2 and 2 mean ENOENT. A zero code
// means success and yields nil.
//
// Codes that are not a valid errno are reported as ERANGE. HandlerCode still
// returns the code as given.
func HandlerError(code int) error {
	if code == 0 {
		return nil
	}

	errno := syscall.ERANGE
	switch {
	case code > 0 && code <= maxErrno:
		errno = syscall.Errno(code)
	case code < 0 && code >= -maxErrno:
		errno = syscall.Errno(-code)
	}

	return merry.WrapSkipping(fmt.Errorf("handler failed with code %d", code), 1).
		WithValue(errnoKey, errno).
		WithValue(codeKey, code)
}

// ResourceError wraps a failure to acquire an OS resource (a pipe, a child
// process) on behalf of a handler call. The errno of the underlying error is
// kept if it has one.
func ResourceError(err error) error {
	if err == nil {
		return nil
	}

	return merry.WrapSkipping(err, 1).WithValue(errnoKey, Errno(err))
}

// Errno returns the error number that should be reported to the kernel for
// the supplied error. nil maps to zero, and errors that carry no number map
// to EIO.
func Errno(err error) syscall.Errno {
	if err == nil {
		return 0
	}

	if v, ok := merry.Value(err, errnoKey).(syscall.Errno); ok {
		return v
	}

	var e syscall.Errno
	if errors.As(err, &e) {
		return e
	}

	return syscall.EIO
}

// HandlerCode returns the code a handler reported, if the error came from
// HandlerError.
func HandlerCode(err error) (code int, ok bool) {
	code, ok = merry.Value(err, codeKey).(int)
	return
}

// IsNotImplemented reports whether the error says that no handler serves the
// operation.
func IsNotImplemented(err error) bool {
	return merry.Is(err, ErrNotImplemented)
}

// IsUnsupported reports whether the error says that the operation is never
// supported.
func IsUnsupported(err error) bool {
	return merry.Is(err, ErrUnsupported)
}
