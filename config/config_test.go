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

package config_test

import (
	"io/ioutil"
	"os"
	"path"
	"testing"

	"github.com/jacobsa/booze/config"
	. "github.com/jacobsa/oglematchers"
	. "github.com/jacobsa/ogletest"
	"github.com/kylelemons/godebug/pretty"
)

func TestConfig(t *testing.T) { RunTests(t) }

type ConfigTest struct {
	dir string
}

var _ SetUpInterface = &ConfigTest{}
var _ TearDownInterface = &ConfigTest{}

func init() { RegisterTestSuite(&ConfigTest{}) }

func (t *ConfigTest) SetUp(ti *TestInfo) {
	var err error
	t.dir, err = ioutil.TempDir("", "config_test")
	AssertEq(nil, err)
}

func (t *ConfigTest) TearDown() {
	os.RemoveAll(t.dir)
}

func (t *ConfigTest) write(name string, contents string) string {
	p := path.Join(t.dir, name)
	AssertEq(nil, ioutil.WriteFile(p, []byte(contents), 0644))
	return p
}

func (t *ConfigTest) IsFile() {
	ExpectTrue(config.IsFile("booze.yaml"))
	ExpectTrue(config.IsFile("/etc/booze.YML"))
	ExpectTrue(config.IsFile("booze.json"))
	ExpectTrue(config.IsFile("booze.jsonc"))
	ExpectFalse(config.IsFile("hello_handlers"))
	ExpectFalse(config.IsFile("booze.sh"))
}

func (t *ConfigTest) YAML() {
	p := t.write("booze.yaml", `
environment: bash
script: hello.sh
dir: /srv
handlers:
  getattr: hello_getattr
  readdir: hello_readdir
`)

	m, err := config.Load(p)
	AssertEq(nil, err)

	expected := &config.Mapping{
		Environment: config.EnvironmentBash,
		Script:      path.Join(t.dir, "hello.sh"),
		Dir:         "/srv",
		Handlers: map[string]string{
			"getattr": "hello_getattr",
			"readdir": "hello_readdir",
		},
	}

	if diff := pretty.Compare(expected, m); diff != "" {
		AddFailure("Mapping differs (-want +got):\n%s", diff)
	}
}

func (t *ConfigTest) JSONWithComments() {
	p := t.write("booze.jsonc", `
// Served by programs on $PATH.
{
  "environment": "exec",
  "handlers": {
    "getattr": "my-getattr --verbose",
    /* not yet */
    "read": "cat-range", // trailing comma
  },
}
`)

	m, err := config.Load(p)
	AssertEq(nil, err)

	ExpectEq(config.EnvironmentExec, m.Environment)
	ExpectEq("", m.Script)
	ExpectEq("my-getattr --verbose", m.Handlers["getattr"])
	ExpectEq("cat-range", m.Handlers["read"])
}

func (t *ConfigTest) UnknownEnvironment() {
	p := t.write("booze.yml", "environment: python\nhandlers: {}\n")

	_, err := config.Load(p)
	ExpectThat(err, Error(HasSubstr("unknown environment")))
}

func (t *ConfigTest) NoHandlers() {
	p := t.write("booze.yml", "environment: bash\n")

	_, err := config.Load(p)
	ExpectThat(err, Error(HasSubstr("no handlers")))
}

func (t *ConfigTest) HandlersNotAMapping() {
	p := t.write("booze.yaml", "handlers: [getattr, readdir]\n")

	_, err := config.Load(p)
	ExpectNe(nil, err)
}

func (t *ConfigTest) MissingFile() {
	_, err := config.Load(path.Join(t.dir, "missing.yaml"))
	ExpectThat(err, Error(HasSubstr("reading")))
}

func (t *ConfigTest) UnknownExtension() {
	_, err := config.Parse([]byte("{}"), ".toml")
	ExpectThat(err, Error(HasSubstr("extension")))
}

func (t *ConfigTest) SampleMappings() {
	hello, err := config.Load("../samples/hello/booze.yaml")
	AssertEq(nil, err)
	ExpectEq("hello_getattr", hello.Handlers["getattr"])
	ExpectThat(hello.Script, HasSubstr("samples/hello/hello.sh"))

	scratch, err := config.Load("../samples/scratch/booze.jsonc")
	AssertEq(nil, err)
	ExpectEq("scratch_write", scratch.Handlers["write"])
}
