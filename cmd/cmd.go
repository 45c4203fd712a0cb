// Copyright 2023 The CubeFS Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/cubefs/cubefs/blobstore/common/config"
	"github.com/cubefs/cubefs/blobstore/common/profile"
	"github.com/cubefs/cubefs/blobstore/common/rpc"
	"github.com/cubefs/cubefs/blobstore/common/trace"
	"github.com/cubefs/cubefs/blobstore/util/errors"
	"github.com/cubefs/cubefs/blobstore/util/log"
	_ "github.com/cubefs/cubefs/blobstore/util/version"

	"github.com/cubefs/objectdb/server"
)

const (
	defaultHttpBindPort = 9500
	defaultStorePath    = "./run/store"
	defaultAuditLogDir  = "./run/audit_log"

	// rocksdb keeps a file handle per sst, raise the soft limit when it is low
	minOpenFiles    = 102400
	wantedOpenFiles = 1024000
)

// Config is the daemon config file, the engine config plus process settings.
type Config struct {
	server.Config

	HttpBindPort  uint32    `json:"http_bind_port"`
	MaxProcessors int       `json:"max_processors"`
	LogLevel      log.Level `json:"log_level"`
}

func main() {
	config.Init("f", "", "objectdb.json")

	cfg := &Config{}
	if err := config.Load(cfg); err != nil {
		log.Fatal(errors.Detail(err))
	}
	setDefaults(cfg)
	log.SetOutputLevel(cfg.LogLevel)
	handleLogLevel()
	if err := raiseOpenFileLimit(); err != nil {
		log.Fatalf("raise open file limit failed: %s", err)
	}

	span, ctx := trace.StartSpanFromContext(context.Background(), "objectdb")
	svr, err := server.NewServer(ctx, &cfg.Config)
	if err != nil {
		log.Fatal(errors.Detail(err))
	}
	httpServer := server.NewHttpServer(svr)
	addr := fmt.Sprintf(":%d", cfg.HttpBindPort)
	httpServer.Serve(addr, &cfg.AuditLog)
	span.Infof("objectdb listening on %s, store path %q", addr, cfg.StoreConfig.Path)

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGTERM, syscall.SIGINT)
	sig := <-ch
	span.Infof("received signal %s, shutting down", sig)

	httpServer.Stop()
	svr.Close()
}

// handleLogLevel lets the log level be read and changed through the profile port.
func handleLogLevel() {
	path, handler := log.ChangeDefaultLevelHandler()
	serve := func(c *rpc.Context) { handler.ServeHTTP(c.Writer, c.Request) }
	for _, method := range []string{http.MethodGet, http.MethodPost} {
		profile.HandleFunc(method, path, serve)
	}
}

func raiseOpenFileLimit() error {
	var limit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &limit); err != nil {
		return err
	}
	if limit.Cur >= minOpenFiles && limit.Max >= minOpenFiles {
		log.Infof("open file limit %d/%d", limit.Cur, limit.Max)
		return nil
	}
	old := limit
	limit.Cur, limit.Max = wantedOpenFiles, wantedOpenFiles
	if err := syscall.Setrlimit(syscall.RLIMIT_NOFILE, &limit); err != nil {
		return err
	}
	log.Infof("open file limit raised from %d/%d to %d/%d", old.Cur, old.Max, limit.Cur, limit.Max)
	return nil
}

func setDefaults(cfg *Config) {
	if cfg.HttpBindPort == 0 {
		cfg.HttpBindPort = defaultHttpBindPort
	}
	if cfg.StoreConfig.Path == "" {
		cfg.StoreConfig.Path = defaultStorePath
	}
	if cfg.AuditLog.LogDir == "" {
		cfg.AuditLog.LogDir = defaultAuditLogDir
	}
	if cfg.MaxProcessors > 0 {
		runtime.GOMAXPROCS(cfg.MaxProcessors)
	}
	for _, def := range cfg.Tables {
		if def.Name == "" {
			log.Fatalf("table config without name: %+v", def)
		}
	}
}
