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

// Package codec converts between the typed values of file system operations
// and the text that handlers consume and produce.
//
// Arguments are rendered in decimal, including file modes and device
// numbers. Handler results are parsed strictly: a record with the wrong number
// of fields, or a field that does not parse, is an EIO error and nothing is
// filled in.
package codec

import (
	"fmt"
	"strconv"
	"time"
)

// Int renders a signed integer argument, for example an offset or a size.
func Int(v int64) string {
	return strconv.FormatInt(v, 10)
}

// Uint renders an unsigned integer argument, for example a uid.
func Uint(v uint64) string {
	return strconv.FormatUint(v, 10)
}

// Mode renders a Unix mode argument. Modes are passed in decimal, not octal.
func Mode(m uint32) string {
	return strconv.FormatUint(uint64(m), 10)
}

// Timespec renders a timestamp as seconds and nanoseconds, the latter padded
// to nine digits.
func Timespec(t time.Time) string {
	return fmt.Sprintf("%d.%09d", t.Unix(), t.Nanosecond())
}

// Bool renders a flag as 1 or 0.
func Bool(b bool) string {
	if b {
		return "1"
	}

	return "0"
}
