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

// Package logging sets up the logger shared by a mount.
package logging

import (
	"fmt"
	"io"
	"log"

	"github.com/sirupsen/logrus"
)

// New returns a logger writing to w at the named level ("debug", "info",
// ...) in the named format ("text" or "json").
func New(w io.Writer, level string, format string) (logger *logrus.Logger, err error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return
	}

	var formatter logrus.Formatter
	switch format {
	case "text":
		formatter = &logrus.TextFormatter{DisableColors: true, FullTimestamp: true}
	case "json":
		formatter = &logrus.JSONFormatter{}
	default:
		err = fmt.Errorf("unknown log format %q", format)
		return
	}

	logger = logrus.New()
	logger.SetOutput(w)
	logger.SetFormatter(formatter)
	logger.SetLevel(lvl)

	return
}

// StdLogger returns a *log.Logger whose lines become entries at the given
// level, for libraries that want one. Close the returned closer when done
// with the logger.
func StdLogger(
	entry *logrus.Entry,
	level logrus.Level) (l *log.Logger, closer io.Closer) {
	w := entry.WriterLevel(level)

	l = log.New(w, "", 0)
	closer = w
	return
}
