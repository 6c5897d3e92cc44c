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

// Package metrics exports Prometheus metrics about dispatched operations.
package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/jacobsa/booze"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sys/unix"
)

var (
	registerOnce sync.Once

	operationDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "booze",
			Subsystem: "fs",
			Name:      "operation_duration_seconds",
			Help:      "Amount of time spent per dispatched operation, in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		},
		[]string{"operation", "status_code"})

	unimplementedOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "booze",
			Subsystem: "fs",
			Name:      "unimplemented_operations_total",
			Help:      "Operations answered with ENOSYS, by reason.",
		},
		[]string{"operation", "reason"})

	bulkBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "booze",
			Subsystem: "bulk",
			Name:      "bytes_total",
			Help:      "Bytes moved through bulk transfer channels.",
		},
		[]string{"direction"})
)

// Register adds the collectors to the default registry. Calls after the
// first have no effect.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(operationDurationSeconds)
		prometheus.MustRegister(unimplementedOperations)
		prometheus.MustRegister(bulkBytes)
	})
}

// StatusCode returns the label recorded for an operation's outcome: "OK", or
// the symbolic errno name.
func StatusCode(err error) string {
	if err == nil {
		return "OK"
	}

	errno := booze.Errno(err)

	// Use unix.ErrnoName() instead of syscall.Errno.Error(), which differs
	// between operating systems.
	if name := unix.ErrnoName(errno); name != "" {
		return name
	}

	return fmt.Sprintf("errno_%d", errno)
}

// ObserveOperation records how long an operation took and how it ended.
func ObserveOperation(op booze.Op, err error, start time.Time, stop time.Time) {
	operationDurationSeconds.
		WithLabelValues(op.String(), StatusCode(err)).
		Observe(stop.Sub(start).Seconds())

	switch {
	case booze.IsUnsupported(err):
		unimplementedOperations.WithLabelValues(op.String(), "unsupported").Inc()
	case booze.IsNotImplemented(err):
		unimplementedOperations.WithLabelValues(op.String(), "no_handler").Inc()
	}
}

// Directions for AddBulkBytes.
const (
	DirectionRead  = "read"
	DirectionWrite = "write"
)

// AddBulkBytes records n bytes moved through a bulk channel.
func AddBulkBytes(direction string, n int) {
	if n > 0 {
		bulkBytes.WithLabelValues(direction).Add(float64(n))
	}
}
