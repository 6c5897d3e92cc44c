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

// Package boozetesting contains helpers shared by the tests of several
// packages.
package boozetesting

import (
	"errors"
	"fmt"
	"syscall"

	"github.com/jacobsa/booze"
	"github.com/jacobsa/oglematchers"
)

// ErrnoIs returns a matcher for errors that the file system would report to
// the kernel as the given errno.
func ErrnoIs(want syscall.Errno) oglematchers.Matcher {
	return oglematchers.NewMatcher(
		func(c interface{}) error {
			err, ok := c.(error)
			if !ok || err == nil {
				return errors.New("which is not a non-nil error")
			}

			got := booze.Errno(err)
			if got != want {
				return fmt.Errorf("which maps to %v", got)
			}

			return nil
		},
		fmt.Sprintf("error mapping to %v", want))
}
