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

// Package bulk moves file contents between the file system and a handler
// out of band, through a pipe, instead of through the handler's textual
// output.
//
// Each transfer uses a Channel made of two pipes: one for the payload and one
// for a fixed-size status word. The handler runs in a child context that owns
// the far ends of both pipes; the calling context owns the near ends. Every
// descriptor is closed before the transfer returns, whatever happened.
package bulk

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/jacobsa/booze"
)

// A status word. Written by the child, at most once, after it is done with
// the payload pipe.
type status struct {
	// Non-zero if the handler failed, in which case Value is its errno.
	// Otherwise Value is a byte count.
	Failed uint32
	_      uint32
	Value  int64
}

// The size of an encoded status word.
const statusSize = 16

var byteOrder = binary.LittleEndian

func (s status) encode() []byte {
	var buf bytes.Buffer
	if err := binary.Write(&buf, byteOrder, s); err != nil {
		panic(fmt.Sprintf("binary.Write: %v", err))
	}

	return buf.Bytes()
}

func decodeStatus(b []byte) (s status, err error) {
	err = binary.Read(bytes.NewReader(b), byteOrder, &s)
	return
}

// The error a failed status word stands for.
func (s status) err() error {
	if s.Failed == 0 {
		return nil
	}

	if s.Value == 0 {
		return booze.IOError("bulk handler failed with a zero errno")
	}

	return booze.HandlerError(int(s.Value))
}

// Channel is the pair of pipes used by one transfer.
type Channel struct {
	// The payload pipe. Data flows from PayloadW to PayloadR.
	PayloadR *os.File
	PayloadW *os.File

	// The status pipe. The child writes, the caller reads.
	StatusR *os.File
	StatusW *os.File
}

// Open creates the pipes of a channel. On failure nothing is left open.
func Open() (ch *Channel, err error) {
	c := &Channel{}

	c.PayloadR, c.PayloadW, err = os.Pipe()
	if err != nil {
		err = booze.ResourceError(fmt.Errorf("payload pipe: %w", err))
		return
	}

	c.StatusR, c.StatusW, err = os.Pipe()
	if err != nil {
		c.Close()
		err = booze.ResourceError(fmt.Errorf("status pipe: %w", err))
		return
	}

	ch = c
	return
}

// Close closes every end of both pipes that is still open. Ends closed
// earlier are skipped, so Close may be deferred right after Open.
func (c *Channel) Close() (err error) {
	for _, f := range []*os.File{c.PayloadR, c.PayloadW, c.StatusR, c.StatusW} {
		if f == nil {
			continue
		}

		if closeErr := f.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) && err == nil {
			err = closeErr
		}
	}

	return
}

// Write a status word to w.
func writeStatus(w io.Writer, s status) error {
	_, err := w.Write(s.encode())
	return err
}

// Read the status word from r, after the child has closed its end.
//
// A pipe that reaches EOF with nothing in it means the child had nothing to
// report. A partial word is a protocol violation.
func readStatus(r io.Reader) (s status, present bool, err error) {
	buf := make([]byte, statusSize)
	n, err := io.ReadFull(r, buf)

	switch {
	case n == 0 && err == io.EOF:
		err = nil
		return

	case err == io.ErrUnexpectedEOF:
		err = booze.IOError("torn status word: %d of %d bytes", n, statusSize)
		return

	case err != nil:
		err = booze.ResourceError(fmt.Errorf("reading status: %w", err))
		return
	}

	s, err = decodeStatus(buf)
	if err != nil {
		err = booze.IOError("decoding status word: %v", err)
		return
	}

	present = true
	return
}
