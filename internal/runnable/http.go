/*
Copyright 2025 The Kubernetes Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package runnable

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/manager"
)

// ShutdownTimeout bounds how long in-flight requests may take once the server is asked to stop.
const ShutdownTimeout = 10 * time.Second

// HTTPServer converts the given HTTP server into a runnable. The server name is just being used for logging.
// When srv.TLSConfig is set the listener serves TLS with the certificates it provides.
func HTTPServer(name string, srv *http.Server, port int) manager.Runnable {
	return manager.RunnableFunc(func(ctx context.Context) error {
		// Use "name" key as that is what manager.Server does as well.
		log := ctrl.Log.WithValues("name", name)
		log.Info("HTTP server starting")

		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
		if err != nil {
			return fmt.Errorf("HTTP server failed to listen - %w", err)
		}
		return serve(ctx, name, srv, lis)
	})
}

func serve(ctx context.Context, name string, srv *http.Server, lis net.Listener) error {
	log := ctrl.Log.WithValues("name", name)
	log.Info("HTTP server listening", "address", lis.Addr().String(), "tls", srv.TLSConfig != nil)

	// Terminate the server on context closed. Make sure the goroutine does not leak.
	doneCh := make(chan struct{})
	defer close(doneCh)
	go func() {
		select {
		case <-ctx.Done():
			log.Info("HTTP server shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Error(err, "HTTP server did not shut down gracefully")
			}
		case <-doneCh:
		}
	}()

	if srv.TLSConfig != nil {
		err := srv.ServeTLS(lis, "", "")
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed - %w", err)
		}
	} else if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed - %w", err)
	}
	log.Info("HTTP server terminated")
	return nil
}
