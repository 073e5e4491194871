// Copyright 2018-2024 CERN
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
//
// In applying this license, CERN does not waive the privileges and immunities
// granted to it by virtue of its status as an Intergovernmental Organization
// or submit itself to any jurisdiction.

// Package rhttp mounts the registered HTTP services on one server and
// runs the shared middleware chain around them.
package rhttp

import (
	"context"
	"net"
	"net/http"
	"path"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/roadmetrics/collector/pkg/rhttp/global"
	"github.com/rs/zerolog"
)

// Config is a function that customizes the server.
type Config func(*Server)

// WithServices sets the services to expose.
func WithServices(services map[string]global.Service) Config {
	return func(s *Server) {
		s.services = services
	}
}

// WithMiddlewares sets the middleware chain, outermost first.
func WithMiddlewares(mws []func(http.Handler) http.Handler) Config {
	return func(s *Server) {
		s.middlewares = mws
	}
}

// WithCertAndKeyFiles enables TLS with the given material.
func WithCertAndKeyFiles(cert, key string) Config {
	return func(s *Server) {
		s.certFile = cert
		s.keyFile = key
	}
}

// WithLogger sets the server logger.
func WithLogger(log zerolog.Logger) Config {
	return func(s *Server) {
		s.log = log
	}
}

// InitServices constructs every configured service from the registry.
func InitServices(conf map[string]map[string]interface{}, log *zerolog.Logger) (map[string]global.Service, error) {
	services := map[string]global.Service{}
	for name, cfg := range conf {
		newFunc, ok := global.Services[name]
		if !ok {
			return nil, errors.Errorf("http service %s does not exist", name)
		}
		svcLog := log.With().Str("service", name).Logger()
		svc, err := newFunc(cfg, &svcLog)
		if err != nil {
			return nil, errors.Wrapf(err, "http service %s could not be started", name)
		}
		services[name] = svc
		log.Info().Msgf("http service enabled: %s@/%s", name, svc.Prefix())
	}
	return services, nil
}

// Unprotected returns the full paths that skip the auth middleware.
func Unprotected(services map[string]global.Service) []string {
	var paths []string
	for _, svc := range services {
		for _, p := range svc.Unprotected() {
			paths = append(paths, path.Join("/", svc.Prefix(), p))
		}
	}
	return paths
}

// Server serves the mounted services.
type Server struct {
	httpServer  *http.Server
	listener    net.Listener
	services    map[string]global.Service
	middlewares []func(http.Handler) http.Handler
	certFile    string
	keyFile     string
	log         zerolog.Logger
}

// New returns a new server.
func New(c ...Config) (*Server, error) {
	s := &Server{
		httpServer: &http.Server{},
		services:   map[string]global.Service{},
		log:        zerolog.Nop(),
	}
	for _, cc := range c {
		cc(s)
	}

	mux := chi.NewRouter()
	for _, svc := range s.services {
		mux.Mount(path.Join("/", svc.Prefix()), svc.Handler())
	}

	var handler http.Handler = mux
	for i := len(s.middlewares) - 1; i >= 0; i-- {
		handler = s.middlewares[i](handler)
	}
	s.httpServer.Handler = handler
	return s, nil
}

// Start starts the server on the given listener.
func (s *Server) Start(ln net.Listener) error {
	s.listener = ln

	var err error
	if s.certFile != "" && s.keyFile != "" {
		s.log.Info().Msgf("https server listening at https://%s", ln.Addr())
		err = s.httpServer.ServeTLS(ln, s.certFile, s.keyFile)
	} else {
		s.log.Info().Msgf("http server listening at http://%s", ln.Addr())
		err = s.httpServer.Serve(ln)
	}
	if err == nil || err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop shuts the server down with a short deadline.
func (s *Server) Stop() error {
	s.closeServices()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

// GracefulStop drains in-flight requests before shutting down.
func (s *Server) GracefulStop() error {
	s.closeServices()
	return s.httpServer.Shutdown(context.Background())
}

func (s *Server) closeServices() {
	for name, svc := range s.services {
		if err := svc.Close(); err != nil {
			s.log.Error().Err(err).Msgf("error closing service %q", name)
		} else {
			s.log.Info().Msgf("service %q correctly closed", name)
		}
	}
}
