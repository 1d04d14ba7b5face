// Copyright 2018 The Kura Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package admin

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"

	"github.com/improbable-eng/grpc-web/go/grpcweb"
	"github.com/kurafs/zus/pkg/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/soheilhy/cmux"
	"google.golang.org/grpc"
)

// Start listens on addr and serves the admin endpoints there. See Serve.
func Start(logger *log.Logger, addr string, src Source, gatherer prometheus.Gatherer) (wait func(), shutdown func(), err error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, err
	}
	wait, shutdown = Serve(logger, lis, src, gatherer)
	return wait, shutdown, nil
}

// Serve multiplexes gRPC and HTTP over lis. HTTP carries /metrics and
// grpc-web. wait blocks until every server has returned; shutdown stops
// them and closes lis.
func Serve(logger *log.Logger, lis net.Listener, src Source, gatherer prometheus.Gatherer) (wait func(), shutdown func()) {
	var wg sync.WaitGroup

	// Match connections in order: first grpc, then everything else for web.
	// grpc-go clients wait for the server's SETTINGS frame before sending
	// headers, so the matcher has to write it.
	mux := cmux.New(lis)
	grpcL := mux.MatchWithWriters(cmux.HTTP2MatchHeaderFieldPrefixSendSettings("content-type", "application/grpc"))
	httpL := mux.Match(cmux.Any())

	grpcServer := grpc.NewServer()
	RegisterAdminServer(grpcServer, newAdminServer(logger, src))

	web := grpcweb.WrapServer(grpcServer)
	routes := http.NewServeMux()
	routes.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	routes.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if web.IsGrpcWebRequest(r) || web.IsAcceptableGrpcCorsRequest(r) {
			web.ServeHTTP(w, r)
			return
		}
		http.NotFound(w, r)
	})
	httpServer := &http.Server{Handler: routes}

	addr := lis.Addr().String()
	wg.Add(1)
	go func() {
		defer wg.Done()

		logger.Infof("serving admin RPC on %s", addr)
		if err := grpcServer.Serve(grpcL); err != nil && !closed(err) {
			logger.Errorf("grpc server error: %v", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()

		logger.Infof("serving admin HTTP on %s", addr)
		if err := httpServer.Serve(httpL); err != nil && !closed(err) {
			logger.Errorf("http server error: %v", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()

		if err := mux.Serve(); err != nil && !closed(err) {
			logger.Errorf("cmux server error: %v", err)
		}
	}()

	shutdown = func() {
		grpcServer.Stop()
		httpServer.Shutdown(context.Background())
		lis.Close()
	}
	return wg.Wait, shutdown
}

func closed(err error) bool {
	return errors.Is(err, net.ErrClosed) ||
		errors.Is(err, http.ErrServerClosed) ||
		errors.Is(err, cmux.ErrListenerClosed) ||
		errors.Is(err, cmux.ErrServerClosed) ||
		errors.Is(err, grpc.ErrServerStopped)
}
