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

// booze mounts a file system whose operations are served by shell handlers.
//
// Usage:
//
//	booze [flags] MAPPING MOUNTPOINT
//
// MAPPING is either a mapping file (.yaml, .yml, .json, .jsonc) or the name of
// a bash associative array, declared by the script given with --script, from
// operation names to handler function names.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"

	"github.com/google/uuid"
	"github.com/jacobsa/booze/boozefs"
	"github.com/jacobsa/booze/config"
	"github.com/jacobsa/booze/handler"
	"github.com/jacobsa/booze/internal/logging"
	"github.com/jacobsa/booze/shellenv"
	"github.com/jacobsa/fuse"
	"github.com/jacobsa/timeutil"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
)

var fScript = pflag.String("script", "", "Bash script defining the handler functions.")
var fShell = pflag.String("shell", "bash", "Shell used to run bash handlers.")
var fEnv = pflag.String("env", config.EnvironmentBash, "Handler environment: bash or exec.")
var fReadMode = pflag.String("read-mode", "stream", "How read handlers return data: stream or text.")

var fDirectIO = pflag.Bool("direct-io", false, "Bypass the kernel page cache for file contents.")
var fReadOnly = pflag.Bool("read-only", false, "Mount in read-only mode.")
var fFSName = pflag.String("fsname", "booze", "File system name shown in the mount table.")
var fAttrTTL = pflag.Duration("attr-ttl", 0, "How long the kernel may cache attributes.")
var fEntryTTL = pflag.Duration("entry-ttl", 0, "How long the kernel may cache directory entries.")

var fFuseDebug = pflag.Bool("fuse-debug", false, "Log every FUSE request and response.")
var fLogLevel = pflag.String("log-level", "info", "Minimum level of log messages.")
var fLogFormat = pflag.String("log-format", "text", "Log format: text or json.")
var fMetricsListen = pflag.String("metrics-listen", "", "Address to serve metrics and status on, if any.")

var fReadyFD = pflag.Int("ready-fd", -1, "FD to signal when mounted.")

// Connections accepted at once by the metrics listener.
const maxMetricsConnections = 16

// Set in the environment of every handler.
const (
	mountIDEnv    = "BOOZE_MOUNT_ID"
	mountPointEnv = "BOOZE_MOUNT_POINT"
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [flags] MAPPING MOUNTPOINT\n\nFlags:\n", os.Args[0])
	pflag.PrintDefaults()
}

func main() {
	pflag.CommandLine.MarkHidden("ready-fd")
	pflag.Usage = usage
	pflag.Parse()

	if pflag.NArg() != 2 {
		pflag.Usage()
		os.Exit(2)
	}

	if err := run(pflag.Arg(0), pflag.Arg(1)); err != nil {
		fmt.Fprintf(os.Stderr, "booze: %v\n", err)
		os.Exit(1)
	}
}

func run(mappingArg string, mountPoint string) (err error) {
	logger, err := logging.New(os.Stderr, *fLogLevel, *fLogFormat)
	if err != nil {
		return
	}

	readMode, ok := boozefs.ParseReadMode(*fReadMode)
	if !ok {
		err = fmt.Errorf("unknown read mode %q", *fReadMode)
		return
	}

	mountID := uuid.New().String()
	entry := logger.WithField("mount_id", mountID)

	// Load the handlers.
	extraEnv := []string{
		fmt.Sprintf("%s=%s", mountIDEnv, mountID),
		fmt.Sprintf("%s=%s", mountPointEnv, mountPoint),
	}

	mapping, env, err := loadHandlers(
		context.Background(),
		mappingArg,
		extraEnv,
		entry.WithField("component", "handler"))

	if err != nil {
		err = fmt.Errorf("loading handlers: %w", err)
		return
	}

	table := handler.Load(mapping, env, entry.WithField("component", "table"))
	defer table.Unload()

	ops := boozefs.NewOps(table, &boozefs.OpsConfig{
		ReadMode: readMode,
		Logger:   entry.WithField("component", "ops"),
	})

	server := boozefs.NewServer(ops, &boozefs.Config{
		Clock:        timeutil.RealClock(),
		AttributeTTL: *fAttrTTL,
		EntryTTL:     *fEntryTTL,
		DirectIO:     *fDirectIO,
		Logger:       entry.WithField("component", "fs"),
	})

	// Mount.
	fuseEntry := entry.WithField("component", "fuse")
	errorLogger, errorCloser := logging.StdLogger(fuseEntry, logrus.ErrorLevel)
	defer errorCloser.Close()

	cfg := &fuse.MountConfig{
		FSName:      *fFSName,
		Subtype:     "booze",
		ReadOnly:    *fReadOnly,
		ErrorLogger: errorLogger,
	}

	if *fFuseDebug {
		debugLogger, debugCloser := logging.StdLogger(fuseEntry, logrus.InfoLevel)
		defer debugCloser.Close()
		cfg.DebugLogger = debugLogger
	}

	mfs, err := fuse.Mount(mountPoint, server, cfg)
	if err != nil {
		err = fmt.Errorf("Mount: %w", err)
		return
	}

	entry.WithFields(logrus.Fields{
		"mount_point": mountPoint,
		"handlers":    len(table.Ops()),
	}).Info("Mounted")

	if *fReadyFD >= 0 {
		signalReady(*fReadyFD)
	}

	go unmountOnSignal(mountPoint, entry)

	// Serve metrics, if asked, until the file system is unmounted.
	var srv *http.Server
	var l net.Listener
	if *fMetricsListen != "" {
		if l, err = net.Listen("tcp", *fMetricsListen); err != nil {
			fuse.Unmount(mountPoint)
			mfs.Join(context.Background())
			err = fmt.Errorf("Listen: %w", err)
			return
		}

		l = netutil.LimitListener(l, maxMetricsConnections)
		srv = &http.Server{Handler: newRouter(table)}
		entry.WithField("address", l.Addr().String()).Info("Serving metrics")
	}

	var group errgroup.Group
	group.Go(func() (err error) {
		err = mfs.Join(context.Background())
		if srv != nil {
			srv.Close()
		}

		if err != nil {
			err = fmt.Errorf("Join: %w", err)
		}

		return
	})

	if srv != nil {
		group.Go(func() (err error) {
			err = srv.Serve(l)
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}

			// Take the mount down with us.
			fuse.Unmount(mountPoint)
			return fmt.Errorf("Serve: %w", err)
		})
	}

	err = group.Wait()
	if err == nil {
		entry.Info("Unmounted")
	}

	return
}

// Build the handler mapping and the environment that runs the handlers.
func loadHandlers(
	ctx context.Context,
	mappingArg string,
	extraEnv []string,
	logger *logrus.Entry) (mapping map[string]string, env handler.Environment, err error) {
	if !config.IsFile(mappingArg) {
		if *fEnv != config.EnvironmentBash {
			err = fmt.Errorf("a mapping array requires --env=%s", config.EnvironmentBash)
			return
		}

		bash := &shellenv.Bash{
			Shell:  *fShell,
			Script: *fScript,
			Env:    extraEnv,
			Logger: logger,
		}

		mapping, err = bash.Mapping(ctx, mappingArg)
		env = bash
		return
	}

	m, err := config.Load(mappingArg)
	if err != nil {
		return
	}

	mapping = m.Handlers

	envName := m.Environment
	if envName == "" {
		envName = *fEnv
	}

	switch envName {
	case config.EnvironmentBash:
		bash := &shellenv.Bash{
			Shell:  *fShell,
			Script: *fScript,
			Dir:    m.Dir,
			Env:    extraEnv,
			Logger: logger,
		}

		if m.Shell != "" {
			bash.Shell = m.Shell
		}

		if m.Script != "" {
			bash.Script = m.Script
		}

		env = bash

	case config.EnvironmentExec:
		env = &shellenv.Exec{
			Dir:    m.Dir,
			Env:    extraEnv,
			Logger: logger,
		}

	default:
		err = fmt.Errorf("unknown environment %q", envName)
	}

	return
}

// Tell whoever started us that the file system is ready.
func signalReady(fd int) {
	f := os.NewFile(uintptr(fd), "ready")
	defer f.Close()

	f.Write([]byte{'r'})
}

func unmountOnSignal(mountPoint string, logger *logrus.Entry) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, unix.SIGINT, unix.SIGTERM)

	for sig := range c {
		logger.WithField("signal", sig).Info("Unmounting")
		if err := fuse.Unmount(mountPoint); err != nil {
			logger.WithError(err).Error("Unmount")
		}
	}
}
