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

package common

import (
	"context"
	"crypto/tls"
	"fmt"
	"path/filepath"
	"sync/atomic"

	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/zetxqx/elevator-dispatch/pkg/common/filewatch"
	"github.com/zetxqx/elevator-dispatch/pkg/common/observability/logging"
)

const (
	certFile = "tls.crt"
	keyFile  = "tls.key"
)

// CertReloader serves the key pair found in a directory and picks up replacements without a restart.
type CertReloader struct {
	dir  string
	cert atomic.Pointer[tls.Certificate]
}

// LoadKeyPair reads tls.crt and tls.key from dir.
func LoadKeyPair(dir string) (*tls.Certificate, error) {
	cert, err := tls.LoadX509KeyPair(filepath.Join(dir, certFile), filepath.Join(dir, keyFile))
	if err != nil {
		return nil, fmt.Errorf("failed to load key pair from %q: %w", dir, err)
	}
	return &cert, nil
}

// NewCertReloader starts serving init and reloads the pair from dir whenever it changes, until ctx is done. A pair
// that fails to load is logged and the previous one is kept.
func NewCertReloader(ctx context.Context, dir string, init *tls.Certificate) (*CertReloader, error) {
	r := &CertReloader{dir: dir}
	r.cert.Store(init)

	logger := log.FromContext(ctx).WithName("cert-reloader").WithValues("path", dir)
	err := filewatch.Watch(ctx, dir, filewatch.DefaultDebounce, func() {
		cert, err := LoadKeyPair(dir)
		if err != nil {
			logger.Error(err, "Failed to reload TLS certificate")
			return
		}
		r.cert.Store(cert)
		logger.V(logging.VERBOSE).Info("Reloaded TLS certificate")
	})
	if err != nil {
		return nil, fmt.Errorf("failed to watch certificates: %w", err)
	}
	return r, nil
}

// Get returns the current certificate.
func (r *CertReloader) Get() *tls.Certificate {
	return r.cert.Load()
}

// TLSConfig returns a server config that always presents the current certificate.
func (r *CertReloader) TLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		GetCertificate: func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
			return r.Get(), nil
		},
	}
}
