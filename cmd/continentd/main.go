// Copyright 2024 Edgectx, Inc.
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

// continentd is the single binary of the system. `continentd api` serves
// the HTTP surface and starts pipelines; `continentd worker` hosts the
// workflow and activity executors. Both read the same environment config.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpillora/backoff"
	"github.com/rs/zerolog"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/edgectx/continentd/api"
	"github.com/edgectx/continentd/cache"
	"github.com/edgectx/continentd/conf"
	"github.com/edgectx/continentd/pipeline"
	"github.com/edgectx/continentd/store"
)

var (
	app     = kingpin.New("continentd", "Versioned dataset distribution and per-user view projection.")
	debug   = app.Flag("debug", "Enable debug logging.").Bool()
	apiCmd  = app.Command("api", "Run the HTTP API server.")
	workCmd = app.Command("worker", "Run the pipeline worker.")
)

func main() {
	cmd := kingpin.MustParse(app.Parse(os.Args[1:]))

	log := zerolog.New(os.Stderr).With().Timestamp().Logger()
	if *debug {
		log = log.Level(zerolog.DebugLevel)
	} else {
		log = log.Level(zerolog.InfoLevel)
	}

	cfg, err := conf.FromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}

	switch cmd {
	case apiCmd.FullCommand():
		runAPI(cfg, log.With().Str("role", "api").Logger())
	case workCmd.FullCommand():
		runWorker(cfg, log.With().Str("role", "worker").Logger())
	}
}

// dial brings up all three backends, retrying each with jittered backoff
// until it answers. The compose topology starts everything at once, so
// transient refusals at boot are the norm.
func dial(cfg conf.Config, log zerolog.Logger) (*store.Store, *cache.Cache, client.Client) {
	st, err := store.Open(cfg.MySQLDSN, cfg.DBPoolSize, log)
	if err != nil {
		log.Fatal().Err(err).Msg("open mysql")
	}
	waitFor(log, "mysql", func() error {
		return st.DB().Ping()
	})

	hc, err := cache.Open(cfg.RedisURL, log)
	if err != nil {
		log.Fatal().Err(err).Msg("open redis")
	}
	waitFor(log, "redis", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return hc.Ping(ctx)
	})

	var tc client.Client
	waitFor(log, "temporal", func() error {
		var err error
		tc, err = client.Dial(client.Options{HostPort: cfg.TemporalTarget})
		return err
	})

	return st, hc, tc
}

func waitFor(log zerolog.Logger, name string, probe func() error) {
	b := &backoff.Backoff{Min: 250 * time.Millisecond, Max: 10 * time.Second, Jitter: true}
	for {
		err := probe()
		if err == nil {
			log.Info().Str("backend", name).Msg("connected")
			return
		}
		d := b.Duration()
		log.Warn().Err(err).Str("backend", name).Dur("retry_in", d).Msg("backend not ready")
		time.Sleep(d)
	}
}

func runAPI(cfg conf.Config, log zerolog.Logger) {
	st, hc, tc := dial(cfg, log)
	defer st.Close()
	defer hc.Close()
	defer tc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := st.Init(ctx); err != nil {
		log.Fatal().Err(err).Msg("init schema")
	}

	engine := api.NewEngine(tc, st, hc, cfg.TaskQueue, log)
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: api.NewServer(engine, log).Handler(),
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("api listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("serve")
		}
	}()

	<-done
	log.Info().Msg("shutting down")
	shutCtx, shutCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutCancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		log.Warn().Err(err).Msg("shutdown")
	}
}

func runWorker(cfg conf.Config, log zerolog.Logger) {
	st, hc, tc := dial(cfg, log)
	defer st.Close()
	defer hc.Close()
	defer tc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := st.Init(ctx); err != nil {
		log.Fatal().Err(err).Msg("init schema")
	}

	w := worker.New(tc, cfg.TaskQueue, worker.Options{})
	pipeline.Register(w, pipeline.NewActivities(st, hc, log))

	log.Info().Str("task_queue", cfg.TaskQueue).Msg("worker starting")
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatal().Err(err).Msg("worker")
	}
}
