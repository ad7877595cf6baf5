/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/uptrace/bun"
)

// BaseDatabaseFactory creates and manages a configured database manager and
// provides helpers for initialization, health checks, and statistics.
type BaseDatabaseFactory struct {
	manager AbstractDatabaseManager
	logger  Logger
}

// NewDatabaseFactory returns a new database factory using the global logger.
func NewDatabaseFactory() *BaseDatabaseFactory {
	return &BaseDatabaseFactory{
		logger: GetLogger(),
	}
}

// SupportedTypes lists the primary ConnectionConfig.Type values; "postgresql"
// and "sqlite3" are accepted as aliases.
var SupportedTypes = []string{"mysql", "postgres", "sqlite"}

// CreateFromConfig constructs a database manager from the given connection
// configuration, applying environment overrides and setting the factory logger.
func (f *BaseDatabaseFactory) CreateFromConfig(cfg *ConnectionConfig, migrate ...DataMigrateConfig) (AbstractDatabaseManager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database configuration cannot be empty")
	}

	f.overrideFromEnv(cfg)

	if _, ok := drivers[cfg.Type]; !ok {
		return nil, fmt.Errorf("unsupported database type: %s, supported types: %v", cfg.Type, SupportedTypes)
	}

	manager := NewDatabaseManager(cfg, migrate...)
	manager.SetLogger(f.logger)

	f.manager = manager
	return manager, nil
}

// envBinding applies one DB_* variable to a ConnectionConfig. Values that
// fail to parse are ignored.
type envBinding struct {
	name  string
	apply func(cfg *ConnectionConfig, value string) error
}

func envString(field func(*ConnectionConfig) *string) func(*ConnectionConfig, string) error {
	return func(cfg *ConnectionConfig, v string) error {
		*field(cfg) = v
		return nil
	}
}

func envInt(field func(*ConnectionConfig) *int) func(*ConnectionConfig, string) error {
	return func(cfg *ConnectionConfig, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*field(cfg) = n
		return nil
	}
}

func envBool(field func(*ConnectionConfig) *bool) func(*ConnectionConfig, string) error {
	return func(cfg *ConnectionConfig, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*field(cfg) = b
		return nil
	}
}

// envDuration accepts Go durations ("750ms") and plain seconds ("5").
func envDuration(field func(*ConnectionConfig) *time.Duration) func(*ConnectionConfig, string) error {
	return func(cfg *ConnectionConfig, v string) error {
		if n, err := strconv.Atoi(v); err == nil {
			*field(cfg) = time.Duration(n) * time.Second
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*field(cfg) = d
		return nil
	}
}

var envBindings = []envBinding{
	{"DB_TYPE", envString(func(c *ConnectionConfig) *string { return &c.Type })},
	{"DB_HOST", envString(func(c *ConnectionConfig) *string { return &c.Host })},
	{"DB_PORT", envInt(func(c *ConnectionConfig) *int { return &c.Port })},
	{"DB_USERNAME", envString(func(c *ConnectionConfig) *string { return &c.Username })},
	{"DB_PASSWORD", envString(func(c *ConnectionConfig) *string { return &c.Password })},
	{"DB_NAME", envString(func(c *ConnectionConfig) *string { return &c.DBName })},
	{"DB_SSLMODE", envString(func(c *ConnectionConfig) *string { return &c.SSLMode })},
	{"DB_MAX_IDLE_CONNS", envInt(func(c *ConnectionConfig) *int { return &c.MaxIdleConns })},
	{"DB_MAX_OPEN_CONNS", envInt(func(c *ConnectionConfig) *int { return &c.MaxOpenConns })},
	{"DB_CONN_MAX_LIFETIME", envDuration(func(c *ConnectionConfig) *time.Duration { return &c.ConnMaxLifetime })},
	{"DB_ENABLE_RECONNECT", envBool(func(c *ConnectionConfig) *bool { return &c.EnableReconnect })},
	{"DB_RECONNECT_INTERVAL", envDuration(func(c *ConnectionConfig) *time.Duration { return &c.ReconnectInterval })},
	{"DB_HEALTH_CHECK_INTERVAL", envDuration(func(c *ConnectionConfig) *time.Duration { return &c.HealthCheckInterval })},
	{"DB_ENABLE_QUERY_LOG", envBool(func(c *ConnectionConfig) *bool { return &c.EnableQueryLog })},
	{"DB_SLOW_QUERY_TIME", envDuration(func(c *ConnectionConfig) *time.Duration { return &c.SlowQueryTime })},
}

// overrideFromEnv applies the DB_* environment variables to cfg.
func (f *BaseDatabaseFactory) overrideFromEnv(cfg *ConnectionConfig) {
	for _, b := range envBindings {
		v, ok := os.LookupEnv(b.name)
		if !ok || v == "" {
			continue
		}
		if err := b.apply(cfg, v); err != nil && f.logger != nil {
			f.logger.Warn("Ignoring invalid environment value", "name", b.name, "error", err)
		}
	}
}

// InitializeDatabase connects to the database and optionally runs migrations.
func (f *BaseDatabaseFactory) InitializeDatabase(ctx context.Context, runMigrations bool) error {
	if f.manager == nil {
		return fmt.Errorf("database manager not created")
	}

	if err := f.manager.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	if runMigrations {
		if err := f.manager.RunMigrations(ctx); err != nil {
			return fmt.Errorf("failed to run database migrations: %w", err)
		}
	}
	f.logger.Info("Database initialization completed!")
	return nil
}

// GetManager returns the underlying database manager.
func (f *BaseDatabaseFactory) GetManager() AbstractDatabaseManager {
	return f.manager
}

// GetDB returns the Bun database instance, or nil if not initialized.
func (f *BaseDatabaseFactory) GetDB() *bun.DB {
	if f.manager == nil {
		return nil
	}
	return f.manager.GetDB()
}

// SetLogger sets the logger on the factory and the underlying manager.
func (f *BaseDatabaseFactory) SetLogger(logger Logger) {
	f.logger = logger
	if f.manager != nil {
		f.manager.SetLogger(logger)
	}
}

// Close closes the database connection managed by the factory.
func (f *BaseDatabaseFactory) Close() error {
	if f.manager == nil {
		return nil
	}
	return f.manager.Disconnect()
}

// GetHealthStatus returns the current database health status from the manager.
func (f *BaseDatabaseFactory) GetHealthStatus(ctx context.Context) *HealthStatus {
	if f.manager == nil {
		return &HealthStatus{
			Healthy:       false,
			Connected:     false,
			LastError:     "Database manager not initialized",
			LastCheckTime: time.Now(),
		}
	}
	return f.manager.HealthCheck(ctx)
}

// GetStats returns database connection statistics from the manager.
func (f *BaseDatabaseFactory) GetStats() *DBStats {
	if f.manager == nil {
		return &DBStats{}
	}
	return f.manager.GetStats()
}
