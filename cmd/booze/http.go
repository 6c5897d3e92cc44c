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

package main

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/jacobsa/booze/handler"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Routes for the metrics listener:
//
//	/metrics   Prometheus metrics
//	/handlers  the handler table, one "op id" line per mapped operation
//	/healthz   always "ok" while the process runs
func newRouter(table *handler.Table) *mux.Router {
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/handlers", handlersHandler(table)).Methods(http.MethodGet)
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "ok")
	}).Methods(http.MethodGet)

	return router
}

func handlersHandler(table *handler.Table) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		for _, op := range table.Ops() {
			id, ok := table.ID(op)
			if !ok {
				continue
			}

			fmt.Fprintf(w, "%s %s\n", op, id)
		}
	}
}
