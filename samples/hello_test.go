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
	"context"
	"io/ioutil"
	"os"
	"path"
	"path/filepath"
	"syscall"

	"github.com/jacobsa/booze/samples"
	"github.com/jacobsa/booze/shellenv"
	. "github.com/jacobsa/oglematchers"
	. "github.com/jacobsa/ogletest"
)

// hello.sh, mounted in-process through the bash environment.
type HelloTest struct {
	samples.SampleTest
}

func init() { RegisterTestSuite(&HelloTest{}) }

func (t *HelloTest) SetUp(ti *TestInfo) {
	script, err := filepath.Abs("hello/hello.sh")
	AssertEq(nil, err)

	env := &shellenv.Bash{Script: script}
	t.Mapping, err = env.Mapping(context.Background(), "hello_handlers")
	AssertEq(nil, err)

	t.Env = env
	t.SampleTest.SetUp(ti)
}

////////////////////////////////////////////////////////////////////////
// Tests
////////////////////////////////////////////////////////////////////////

func (t *HelloTest) ReadDir_Root() {
	entries, err := ioutil.ReadDir(t.Dir)

	AssertEq(nil, err)
	AssertEq(2, len(entries))
	var fi os.FileInfo

	// dir
	fi = entries[0]
	ExpectEq("dir", fi.Name())
	ExpectTrue(fi.IsDir())
	ExpectEq(os.ModeDir|0555, fi.Mode())

	// hello
	fi = entries[1]
	ExpectEq("hello", fi.Name())
	ExpectEq(len("Hello, world!"), fi.Size())
	ExpectEq(0444, fi.Mode())
	ExpectFalse(fi.IsDir())
}

func (t *HelloTest) ReadDir_Dir() {
	entries, err := ioutil.ReadDir(path.Join(t.Dir, "dir"))

	AssertEq(nil, err)
	AssertEq(1, len(entries))
	ExpectEq("world", entries[0].Name())
}

func (t *HelloTest) ReadDir_NonExistent() {
	_, err := ioutil.ReadDir(path.Join(t.Dir, "foobar"))

	AssertNe(nil, err)
	ExpectThat(err, Error(HasSubstr("no such file")))
}

func (t *HelloTest) Stat_Hello() {
	fi, err := os.Stat(path.Join(t.Dir, "hello"))
	AssertEq(nil, err)

	ExpectEq("hello", fi.Name())
	ExpectEq(len("Hello, world!"), fi.Size())
	ExpectEq(0444, fi.Mode())
	ExpectEq(1, fi.Sys().(*syscall.Stat_t).Nlink)
}

func (t *HelloTest) ReadFile_Hello() {
	contents, err := ioutil.ReadFile(path.Join(t.Dir, "hello"))

	AssertEq(nil, err)
	ExpectEq("Hello, world!", string(contents))
}

func (t *HelloTest) ReadFile_World() {
	contents, err := ioutil.ReadFile(path.Join(t.Dir, "dir/world"))

	AssertEq(nil, err)
	ExpectEq("Hello, world!", string(contents))
}

func (t *HelloTest) ReadAt() {
	f, err := os.Open(path.Join(t.Dir, "hello"))
	t.ToClose = append(t.ToClose, f)
	AssertEq(nil, err)

	buf := make([]byte, 5)
	n, err := f.ReadAt(buf, 7)

	AssertEq(nil, err)
	ExpectEq("world", string(buf[:n]))
}

func (t *HelloTest) OpenForWriting() {
	_, err := os.OpenFile(path.Join(t.Dir, "hello"), os.O_RDWR, 0)
	ExpectTrue(os.IsPermission(err), "%v", err)
}

func (t *HelloTest) Mkdir_NotImplemented() {
	err := os.Mkdir(path.Join(t.Dir, "taco"), 0755)
	ExpectThat(err, Error(HasSubstr("not implemented")))
}

func (t *HelloTest) StatFS() {
	var st syscall.Statfs_t
	err := syscall.Statfs(t.Dir, &st)

	AssertEq(nil, err)
	ExpectEq(4096, st.Bsize)
	ExpectEq(4, st.Files)
}
