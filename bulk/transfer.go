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

package bulk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/jacobsa/booze"
	"golang.org/x/sys/unix"
)

// ReadChild runs a read handler, which writes the requested data to stdout.
type ReadChild func(ctx context.Context, stdout io.Writer) error

// WriteChild runs a write handler, which consumes data from stdin and
// returns the number of bytes it consumed.
type WriteChild func(ctx context.Context, stdin io.Reader) (consumed int64, err error)

// Read runs the child with the payload pipe as its output and copies what it
// writes into dst. It returns the number of bytes received.
//
// If the child fails, its error is returned in preference to anything else.
// If it writes more than len(dst) bytes, the result is EIO. A child that exits
// without reporting anything has succeeded, so a short or empty payload is a
// short or empty read.
func Read(ctx context.Context, child ReadChild, dst []byte) (n int, err error) {
	ch, err := Open()
	if err != nil {
		return
	}

	defer ch.Close()

	// Written by the child before done is closed. The status word is only the
	// signal; the error itself says which kind of failure it was.
	var childErr error

	done := make(chan struct{})
	go func() {
		defer close(done)

		childErr = runChild(func() error { return child(ctx, ch.PayloadW) })
		ch.PayloadW.Close()

		if childErr != nil {
			s := status{Failed: 1, Value: int64(booze.Errno(childErr))}
			writeStatus(ch.StatusW, s)
		}

		ch.StatusW.Close()
	}()

	// Drain the payload, then look for one byte more than was asked for.
	n, readErr := readFull(ch.PayloadR, dst)
	oversize := false
	if readErr == nil && n == len(dst) {
		var probe [1]byte
		m, _ := retryRead(ch.PayloadR, probe[:])
		oversize = m > 0
	}

	// Anything still being written is unwanted. Closing our end unblocks a
	// child stuck on a full pipe.
	ch.PayloadR.Close()

	s, present, statusErr := readStatus(ch.StatusR)
	<-done

	// A child that failed only because we stopped listening wrote too much.
	brokenPipe := oversize && s.Failed != 0 && s.Value == int64(unix.EPIPE)

	switch {
	case statusErr != nil:
		err = statusErr

	case present && s.Failed != 0 && !brokenPipe:
		err = childFailure(s, childErr)

	case oversize:
		err = booze.IOError("read handler wrote more than the %d bytes requested", len(dst))

	case present:
		err = booze.IOError("unexpected status word from read child: %+v", s)

	case readErr != nil:
		err = booze.ResourceError(fmt.Errorf("reading payload: %w", readErr))
	}

	if err != nil {
		n = 0
	}

	return
}

// Write runs the child with the payload pipe as its input and feeds it src.
// It returns the number of bytes the child reports it consumed.
//
// The child must report a status word. A count larger than the number of
// bytes actually delivered, or a negative one, is EIO.
func Write(ctx context.Context, child WriteChild, src []byte) (n int, err error) {
	ch, err := Open()
	if err != nil {
		return
	}

	defer ch.Close()

	var childErr error

	done := make(chan struct{})
	go func() {
		defer close(done)

		var consumed int64
		childErr = runChild(func() (err error) {
			consumed, err = child(ctx, ch.PayloadR)
			return
		})

		// Stop accepting data. Unconsumed input makes our writer see EPIPE.
		ch.PayloadR.Close()

		s := status{Value: consumed}
		if childErr != nil {
			s = status{Failed: 1, Value: int64(booze.Errno(childErr))}
		}

		writeStatus(ch.StatusW, s)
		ch.StatusW.Close()
	}()

	sent, writeErr := writeAll(ch.PayloadW, src)
	ch.PayloadW.Close()

	s, present, statusErr := readStatus(ch.StatusR)
	<-done

	switch {
	case statusErr != nil:
		err = statusErr

	case !present:
		err = booze.IOError("write child reported no status")

	case s.Failed != 0:
		err = childFailure(s, childErr)

	case writeErr != nil && !errors.Is(writeErr, unix.EPIPE):
		err = booze.ResourceError(fmt.Errorf("writing payload: %w", writeErr))

	case s.Value < 0:
		err = booze.IOError("write handler reported a negative count: %d", s.Value)

	case s.Value > int64(sent):
		err = booze.IOError(
			"write handler reported %d bytes consumed, but only %d were sent",
			s.Value,
			sent)

	default:
		n = int(s.Value)
	}

	return
}

////////////////////////////////////////////////////////////////////////
// Helpers
////////////////////////////////////////////////////////////////////////

// Run f, turning a panic into an error.
func runChild(f func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = booze.IOError("bulk child panicked: %v", r)
		}
	}()

	err = f()
	return
}

// The error for a status word that reports failure. The child's own error is
// preferred, since the word carries only an errno.
func childFailure(s status, childErr error) error {
	if childErr != nil {
		return childErr
	}

	return s.err()
}

// Read from f, retrying reads interrupted by signals.
func retryRead(f *os.File, p []byte) (n int, err error) {
	for {
		n, err = f.Read(p)
		if errors.Is(err, unix.EINTR) {
			continue
		}

		return
	}
}

// Fill dst from f until it is full or f reaches EOF.
func readFull(f *os.File, dst []byte) (n int, err error) {
	for n < len(dst) {
		var m int
		m, err = retryRead(f, dst[n:])
		n += m

		if err == io.EOF {
			err = nil
			return
		}

		if err != nil {
			return
		}
	}

	return
}

// Write all of src to f, stopping early if the reader goes away. sent is the
// number of bytes that made it into the pipe.
func writeAll(f *os.File, src []byte) (sent int, err error) {
	for sent < len(src) {
		var m int
		m, err = f.Write(src[sent:])
		sent += m

		if errors.Is(err, unix.EINTR) {
			err = nil
			continue
		}

		if err != nil {
			return
		}
	}

	return
}
