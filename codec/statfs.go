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
	"fmt"
	"strings"

	"github.com/jacobsa/booze"
)

const statFSFields = 7

// StatFS is the record a statfs handler prints: seven decimal fields in the
// order of the struct.
type StatFS struct {
	BlockSize       uint64
	Blocks          uint64
	BlocksFree      uint64
	BlocksAvailable uint64
	Files           uint64
	FilesFree       uint64
	NameMax         uint64
}

// ParseStatFS decodes a file system statistics record.
func ParseStatFS(s string) (st StatFS, err error) {
	fields := strings.Fields(s)
	if len(fields) != statFSFields {
		err = booze.IOError(
			"statfs record has %d fields, want %d: %q",
			len(fields),
			statFSFields,
			s)
		return
	}

	var tmp StatFS
	var p fieldParser

	tmp.BlockSize = p.unsigned(fields[0], "block size", 10, 64)
	tmp.Blocks = p.unsigned(fields[1], "blocks", 10, 64)
	tmp.BlocksFree = p.unsigned(fields[2], "free blocks", 10, 64)
	tmp.BlocksAvailable = p.unsigned(fields[3], "available blocks", 10, 64)
	tmp.Files = p.unsigned(fields[4], "files", 10, 64)
	tmp.FilesFree = p.unsigned(fields[5], "free files", 10, 64)
	tmp.NameMax = p.unsigned(fields[6], "name max", 10, 64)

	if p.err != nil {
		err = p.err
		return
	}

	st = tmp
	return
}

func (st StatFS) String() string {
	return fmt.Sprintf(
		"%d %d %d %d %d %d %d",
		st.BlockSize,
		st.Blocks,
		st.BlocksFree,
		st.BlocksAvailable,
		st.Files,
		st.FilesFree,
		st.NameMax)
}
