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
)

// A handler implemented by an in-process function.
type HandlerFunc func(ctx context.Context, call *Call) Result

func (f HandlerFunc) Invoke(ctx context.Context, call *Call) (Result, error) {
	return f(ctx, call), nil
}

// Funcs is an execution environment of in-process functions, keyed by
// identifier. It is the environment of choice for tests and for programs
// that embed a file system.
type Funcs map[string]HandlerFunc

func (m Funcs) Resolve(id string) (h Handler, ok bool) {
	f, ok := m[id]
	if !ok || f == nil {
		return nil, false
	}

	h = f
	return
}

// Succeed returns a successful result with no output.
func Succeed() Result {
	return Result{}
}

// SucceedWith returns a successful result with the given output.
func SucceedWith(output string) Result {
	var r Result
	r.SetOutput(output)
	return r
}

// Fail returns a failed result carrying the given error code.
func Fail(code int) Result {
	r := Result{Failed: true}
	r.SetCode(code)
	return r
}

// FailWithoutCode returns a failed result that does not say why.
func FailWithoutCode() Result {
	return Result{Failed: true}
}
