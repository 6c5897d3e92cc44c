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
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/jacobsa/booze/handler"
)

// Record tags in a result frame.
const (
	tagCode       = 'e'
	tagOutput     = 'o'
	tagUnresolved = 'u'
)

// A result frame is a sequence of NUL-terminated records written by the
// handler process to the result descriptor. Each record starts with a tag
// byte:
//
//	e<code>    the handler's error code, in decimal
//	o<text>    the handler's output
//	u          the handler identifier does not exist
//
// Later records of the same kind replace earlier ones. A frame that is cut
// off in the middle of a record is malformed.
func parseFrame(b []byte, res *handler.Result) (unresolved bool, err error) {
	if len(b) == 0 {
		return
	}

	if b[len(b)-1] != 0 {
		err = fmt.Errorf("result frame is not NUL-terminated: %q", b)
		return
	}

	for _, rec := range bytes.Split(b[:len(b)-1], []byte{0}) {
		if len(rec) == 0 {
			err = fmt.Errorf("empty record in result frame %q", b)
			return
		}

		switch rec[0] {
		case tagCode:
			// A code that does not parse is as good as no code at all.
			code, convErr := strconv.Atoi(strings.TrimSpace(string(rec[1:])))
			if convErr != nil {
				res.Code = 0
				res.CodeSet = false
				continue
			}

			res.SetCode(code)

		case tagOutput:
			res.SetOutput(string(rec[1:]))

		case tagUnresolved:
			unresolved = true

		default:
			err = fmt.Errorf("unknown record tag %q in result frame", rec[0])
			return
		}
	}

	return
}

// Encode a result frame. Handler processes written in Go can use this to
// report back.
func encodeFrame(res handler.Result) []byte {
	var buf bytes.Buffer
	if res.CodeSet {
		fmt.Fprintf(&buf, "%c%d\x00", tagCode, res.Code)
	}

	if res.OutputSet {
		buf.WriteByte(tagOutput)
		buf.WriteString(res.Output)
		buf.WriteByte(0)
	}

	return buf.Bytes()
}
