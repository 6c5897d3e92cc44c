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

package codec

import (
	"strings"

	"github.com/jacobsa/booze"
)

// ParseDirents splits a directory listing of names joined by '/'. The empty
// string is an empty listing, and a single trailing separator is allowed. An
// empty name anywhere else is an EIO error.
func ParseDirents(s string) (names []string, err error) {
	if s == "" {
		return
	}

	s = strings.TrimSuffix(s, "/")

	tmp := strings.Split(s, "/")
	for i, name := range tmp {
		if name == "" {
			err = booze.IOError("empty name at position %d in listing %q", i, s)
			return
		}
	}

	names = tmp
	return
}

// JoinDirents is the inverse of ParseDirents.
func JoinDirents(names []string) string {
	return strings.Join(names, "/")
}
