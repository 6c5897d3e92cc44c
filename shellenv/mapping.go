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
	"context"
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"os/exec"
)

// Prints the associative array named by $1 to descriptor 3 as alternating
// NUL-terminated keys and values.
const mappingPrelude = `
if [ -n "$BOOZE_SCRIPT" ]; then
	. "$BOOZE_SCRIPT" >&2
fi

booze_decl=$(declare -p -- "$1" 2>/dev/null) || exit 3
case $booze_decl in
	"declare -A"*) ;;
	*) exit 4 ;;
esac

declare -n booze_map=$1
for booze_key in "${!booze_map[@]}"; do
	printf '%s\0%s\0' "$booze_key" "${booze_map[$booze_key]}" >&3
done
`

var (
	// The named variable does not exist.
	ErrNoSuchMapping = errors.New("no such handler mapping")

	// The named variable is not an associative array.
	ErrNotAMapping = errors.New("handler mapping is not an associative array")
)

// Mapping reads the bash associative array with the given name, as declared
// by the script, for use with handler.Load.
func (b *Bash) Mapping(ctx context.Context, name string) (m map[string]string, err error) {
	if !bashIdentifier.MatchString(name) {
		err = fmt.Errorf("%w: bad variable name %q", ErrNoSuchMapping, name)
		return
	}

	if b.Script != "" {
		if _, err = os.Stat(b.Script); err != nil {
			err = fmt.Errorf("handler script: %w", err)
			return
		}
	}

	r, w, err := os.Pipe()
	if err != nil {
		err = fmt.Errorf("Pipe: %w", err)
		return
	}

	defer r.Close()

	cmd := b.command(ctx, mappingPrelude, name)
	cmd.ExtraFiles = []*os.File{w}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err = cmd.Start(); err != nil {
		w.Close()
		err = fmt.Errorf("Start: %w", err)
		return
	}

	w.Close()

	out, readErr := ioutil.ReadAll(r)
	waitErr := cmd.Wait()

	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		switch exitErr.ExitCode() {
		case 3:
			err = fmt.Errorf("%w: %q", ErrNoSuchMapping, name)
		case 4:
			err = fmt.Errorf("%w: %q", ErrNotAMapping, name)
		default:
			err = fmt.Errorf("reading %q: %v: %s", name, waitErr, stderr.Bytes())
		}

		return
	}

	if waitErr != nil {
		err = fmt.Errorf("Wait: %w", waitErr)
		return
	}

	if readErr != nil {
		err = fmt.Errorf("reading %q: %w", name, readErr)
		return
	}

	m, err = parsePairs(out)
	return
}

func parsePairs(b []byte) (m map[string]string, err error) {
	m = make(map[string]string)
	if len(b) == 0 {
		return
	}

	if b[len(b)-1] != 0 {
		err = fmt.Errorf("mapping output is not NUL-terminated")
		return
	}

	fields := bytes.Split(b[:len(b)-1], []byte{0})
	if len(fields)%2 != 0 {
		err = fmt.Errorf("mapping output has an odd number of fields")
		return
	}

	for i := 0; i < len(fields); i += 2 {
		m[string(fields[i])] = string(fields[i+1])
	}

	return
}
