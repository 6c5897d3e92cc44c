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

// Package handler maps operation names to externally registered handlers and
// implements the synchronous call/return protocol used to invoke them.
package handler

import (
	"context"
	"errors"
	"io"

	"github.com/jacobsa/booze"
)

// A request to a handler.
type Call struct {
	// The operation being served.
	Op booze.Op

	// Textual arguments, already encoded. See package codec.
	Args []string

	// If non-nil, the handler's standard input and output. Only the bulk read
	// and write operations set these; other handlers report through Result.
	Stdin  io.Reader
	Stdout io.Writer
}

// What a single handler invocation reported. It is private to the invocation
// that produced it, so nothing needs to be cleared between calls.
type Result struct {
	// Did the handler signal failure?
	Failed bool

	// The error code the handler reported, if CodeSet.
	Code    int
	CodeSet bool

	// The output the handler reported, if OutputSet.
	Output    string
	OutputSet bool
}

// SetCode records an error code in the result.
func (r *Result) SetCode(code int) {
	r.Code = code
	r.CodeSet = true
}

// SetOutput records output text in the result.
func (r *Result) SetOutput(s string) {
	r.Output = s
	r.OutputSet = true
}

// Returned by Handler.Invoke when the environment finds out only at call
// time that nothing answers to the handler's identifier.
var ErrUnresolved = errors.New("handler identifier does not resolve")

// A handler in some execution environment.
type Handler interface {
	// Run the handler to completion. A non-nil error means the handler could
	// not be run at all, as opposed to running and reporting failure through
	// the result.
	Invoke(ctx context.Context, call *Call) (Result, error)
}

// An execution environment in which handler identifiers are resolved.
type Environment interface {
	// Resolve the identifier, returning false if nothing by that name exists.
	Resolve(id string) (h Handler, ok bool)
}

// The optional text a successful handler produced.
type Output struct {
	Text string
	Set  bool
}
