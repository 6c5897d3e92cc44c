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

package samples_test

import (
	"io/ioutil"
	"os"
	"path"

	"github.com/jacobsa/booze/samples"
	. "github.com/jacobsa/oglematchers"
	. "github.com/jacobsa/ogletest"
)

// scratch.sh, mounted by the booze command over a temporary directory.
type ScratchTest struct {
	samples.SubprocessTest

	// The directory that scratch.sh mirrors.
	root string
}

func init() { RegisterTestSuite(&ScratchTest{}) }

func (t *ScratchTest) SetUp(ti *TestInfo) {
	var err error
	t.root, err = ioutil.TempDir("", "scratch_test")
	AssertEq(nil, err)

	t.Mapping = "scratch/booze.jsonc"
	t.MountEnv = []string{"SCRATCH_ROOT=" + t.root}
	t.MountFlags = []string{"--log-level=debug"}

	t.SubprocessTest.SetUp(ti)
}

func (t *ScratchTest) TearDown() {
	t.SubprocessTest.TearDown()
	os.RemoveAll(t.root)
}

////////////////////////////////////////////////////////////////////////
// Tests
////////////////////////////////////////////////////////////////////////

func (t *ScratchTest) EmptyRoot() {
	entries, err := ioutil.ReadDir(t.Dir)

	AssertEq(nil, err)
	ExpectEq(0, len(entries))
}

func (t *ScratchTest) ReadBackingFile() {
	err := ioutil.WriteFile(path.Join(t.root, "foo"), []byte("taco"), 0600)
	AssertEq(nil, err)

	contents, err := ioutil.ReadFile(path.Join(t.Dir, "foo"))
	AssertEq(nil, err)
	ExpectEq("taco", string(contents))

	fi, err := os.Stat(path.Join(t.Dir, "foo"))
	AssertEq(nil, err)
	ExpectEq(4, fi.Size())
	ExpectEq(0600, fi.Mode())
}

func (t *ScratchTest) CreateAndWrite() {
	err := ioutil.WriteFile(path.Join(t.Dir, "foo"), []byte("burrito"), 0644)
	AssertEq(nil, err)

	contents, err := ioutil.ReadFile(path.Join(t.root, "foo"))
	AssertEq(nil, err)
	ExpectEq("burrito", string(contents))
}

func (t *ScratchTest) WriteAtOffset() {
	err := ioutil.WriteFile(path.Join(t.root, "foo"), []byte("taco"), 0644)
	AssertEq(nil, err)

	f, err := os.OpenFile(path.Join(t.Dir, "foo"), os.O_RDWR, 0)
	t.ToClose = append(t.ToClose, f)
	AssertEq(nil, err)

	_, err = f.WriteAt([]byte("ll"), 1)
	AssertEq(nil, err)
	AssertEq(nil, f.Sync())

	contents, err := ioutil.ReadFile(path.Join(t.root, "foo"))
	AssertEq(nil, err)
	ExpectEq("tllo", string(contents))
}

func (t *ScratchTest) MkdirRenameRemove() {
	AssertEq(nil, os.Mkdir(path.Join(t.Dir, "dir"), 0700))
	AssertEq(nil, ioutil.WriteFile(path.Join(t.Dir, "dir/a"), []byte("x"), 0600))

	err := os.Rename(path.Join(t.Dir, "dir"), path.Join(t.Dir, "moved"))
	AssertEq(nil, err)

	contents, err := ioutil.ReadFile(path.Join(t.Dir, "moved/a"))
	AssertEq(nil, err)
	ExpectEq("x", string(contents))

	err = os.Remove(path.Join(t.Dir, "moved"))
	ExpectThat(err, Error(HasSubstr("not empty")))

	AssertEq(nil, os.Remove(path.Join(t.Dir, "moved/a")))
	AssertEq(nil, os.Remove(path.Join(t.Dir, "moved")))

	_, err = os.Stat(path.Join(t.root, "moved"))
	ExpectTrue(os.IsNotExist(err), "%v", err)
}

func (t *ScratchTest) TruncateAndChmod() {
	err := ioutil.WriteFile(path.Join(t.root, "foo"), []byte("enchilada"), 0644)
	AssertEq(nil, err)

	AssertEq(nil, os.Truncate(path.Join(t.Dir, "foo"), 3))
	AssertEq(nil, os.Chmod(path.Join(t.Dir, "foo"), 0600))

	fi, err := os.Stat(path.Join(t.root, "foo"))
	AssertEq(nil, err)
	ExpectEq(3, fi.Size())
	ExpectEq(0600, fi.Mode())
}

func (t *ScratchTest) Symlink() {
	AssertEq(nil, os.Symlink("target", path.Join(t.Dir, "link")))

	target, err := os.Readlink(path.Join(t.Dir, "link"))
	AssertEq(nil, err)
	ExpectEq("target", target)

	target, err = os.Readlink(path.Join(t.root, "link"))
	AssertEq(nil, err)
	ExpectEq("target", target)
}

func (t *ScratchTest) MissingFile() {
	_, err := os.Stat(path.Join(t.Dir, "missing"))
	ExpectTrue(os.IsNotExist(err), "%v", err)
}
