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

// Collectord is the measurement collector daemon. It loads a TOML
// config, mounts the registered HTTP services behind the shared
// middleware chain and serves until interrupted.
package main

import (
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/BurntSushi/toml"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/roadmetrics/collector/internal/http/interceptors/appctx"
	"github.com/roadmetrics/collector/internal/http/interceptors/auth"
	"github.com/roadmetrics/collector/internal/http/interceptors/log"
	"github.com/roadmetrics/collector/pkg/logger"
	"github.com/roadmetrics/collector/pkg/rhttp"

	// Load storage drivers and HTTP services.
	_ "github.com/roadmetrics/collector/internal/http/services/loader"
	_ "github.com/roadmetrics/collector/pkg/storage/loader"
)

// version is set at build time via -ldflags.
var version = "devel"

type coreConf struct {
	Log  logConf  `toml:"log"`
	HTTP httpConf `toml:"http"`
}

type logConf struct {
	Level string `toml:"level"`
	Mode  string `toml:"mode"`
}

type httpConf struct {
	Host        string                            `toml:"host"`
	Port        int                               `toml:"port"`
	CertFile    string                            `toml:"certfile"`
	KeyFile     string                            `toml:"keyfile"`
	Middlewares map[string]map[string]interface{} `toml:"middlewares"`
	Services    map[string]map[string]interface{} `toml:"services"`
}

func main() {
	confPath := flag.String("c", "/etc/collector/collectord.toml", "config file")
	testConf := flag.Bool("t", false, "test configuration and exit")
	showVersion := flag.Bool("version", false, "show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("collectord " + version)
		os.Exit(0)
	}

	conf := &coreConf{}
	if _, err := toml.DecodeFile(*confPath, conf); err != nil {
		fmt.Fprintf(os.Stderr, "error reading config %s: %v\n", *confPath, err)
		os.Exit(1)
	}
	if *testConf {
		fmt.Println("config ok")
		os.Exit(0)
	}

	lg, err := logger.New(logger.WithLevel(orDefault(conf.Log.Level, "info")), logger.WithMode(orDefault(conf.Log.Mode, "console")))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error creating logger: %v\n", err)
		os.Exit(1)
	}
	lg.Info().Str("version", version).Str("config", *confPath).Msg("collectord starting")

	srv, err := newServer(conf, lg)
	if err != nil {
		lg.Error().Err(err).Msg("error initializing server")
		os.Exit(2)
	}

	addr := fmt.Sprintf("%s:%d", conf.HTTP.Host, orDefaultInt(conf.HTTP.Port, 8080))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		lg.Error().Err(err).Str("addr", addr).Msg("error binding listener")
		os.Exit(2)
	}

	go handleSignals(srv, lg)

	if err := srv.Start(ln); err != nil {
		lg.Error().Err(err).Msg("error serving http")
		os.Exit(2)
	}
}

func newServer(conf *coreConf, lg *zerolog.Logger) (*rhttp.Server, error) {
	services, err := rhttp.InitServices(conf.HTTP.Services, lg)
	if err != nil {
		return nil, err
	}

	authMW, err := auth.New(conf.HTTP.Middlewares["auth"], rhttp.Unprotected(services))
	if err != nil {
		return nil, err
	}

	corsMW := cors.New(cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"Location", "Range"},
	}).Handler

	opts := []rhttp.Config{
		rhttp.WithServices(services),
		rhttp.WithLogger(*lg),
		rhttp.WithMiddlewares([]func(http.Handler) http.Handler{
			corsMW,
			appctx.New(*lg),
			log.New(),
			authMW,
		}),
	}
	if conf.HTTP.CertFile != "" && conf.HTTP.KeyFile != "" {
		opts = append(opts, rhttp.WithCertAndKeyFiles(conf.HTTP.CertFile, conf.HTTP.KeyFile))
	}
	return rhttp.New(opts...)
}

func handleSignals(srv *rhttp.Server, lg *zerolog.Logger) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	sig := <-ch
	lg.Info().Str("signal", sig.String()).Msg("shutting down")
	if err := srv.GracefulStop(); err != nil {
		lg.Error().Err(err).Msg("error during graceful shutdown")
		os.Exit(1)
	}
}

func orDefault(v, d string) string {
	if v == "" {
		return d
	}
	return v
}

func orDefaultInt(v, d int) int {
	if v == 0 {
		return d
	}
	return v
}
