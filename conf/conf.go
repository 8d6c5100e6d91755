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

// Package conf loads process configuration from the environment. Every
// knob has a default suited to the docker-compose topology, so a bare
// environment yields a runnable config.
package conf

import (
	"fmt"
	"os"
	"strconv"

	"github.com/pkg/errors"
)

// Defaults for the compose topology.
const (
	DefaultMySQLHost  = "mysql"
	DefaultMySQLPort  = 3306
	DefaultMySQLUser  = "edge"
	DefaultMySQLPass  = "edgepass"
	DefaultMySQLDB    = "edge"
	DefaultRedisURL   = "redis://redis:6379/0"
	DefaultTemporal   = "temporal:7233"
	DefaultTaskQueue  = "edge-tq"
	DefaultHTTPAddr   = ":8080"
	DefaultDBPoolSize = 12
)

// Config holds everything a continentd process needs to come up.
type Config struct {
	MySQLDSN       string
	RedisURL       string
	TemporalTarget string
	TaskQueue      string
	HTTPAddr       string
	DBPoolSize     int
}

// FromEnv assembles a config from the environment. MYSQL_DSN wins over the
// per-field MySQL variables when both are set.
func FromEnv() (Config, error) {
	cfg := Config{
		MySQLDSN:       os.Getenv("MYSQL_DSN"),
		RedisURL:       envOr("REDIS_URL", DefaultRedisURL),
		TemporalTarget: envOr("TEMPORAL_TARGET", DefaultTemporal),
		TaskQueue:      envOr("TASK_QUEUE", DefaultTaskQueue),
		HTTPAddr:       envOr("HTTP_ADDR", DefaultHTTPAddr),
		DBPoolSize:     DefaultDBPoolSize,
	}

	if raw := os.Getenv("DB_POOL_SIZE"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return Config{}, errors.Errorf("malformed DB_POOL_SIZE %q", raw)
		}
		cfg.DBPoolSize = n
	}

	if cfg.MySQLDSN == "" {
		port := DefaultMySQLPort
		if raw := os.Getenv("MYSQL_PORT"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				return Config{}, errors.Errorf("malformed MYSQL_PORT %q", raw)
			}
			port = n
		}
		cfg.MySQLDSN = fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
			envOr("MYSQL_USER", DefaultMySQLUser),
			envOr("MYSQL_PASS", DefaultMySQLPass),
			envOr("MYSQL_HOST", DefaultMySQLHost),
			port,
			envOr("MYSQL_DB", DefaultMySQLDB))
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
