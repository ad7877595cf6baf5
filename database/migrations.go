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
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"

	"github.com/tomoncle/entorm/entity"
)

// MigrationManager creates one table per registered entity: the primary
// column, one column per indexed property (each with an index) and the
// JSON props column.
type MigrationManager struct {
	db        *bun.DB
	logger    Logger
	entities  *entity.Registry
	fkEnabled bool
	fkFile    string
}

// Migration represents an applied migration record stored in the database.
type Migration struct {
	bun.BaseModel `bun:"table:entorm_migrations"`

	Version     string    `bun:"version,pk"`
	Name        string    `bun:"name"`
	AppliedAt   time.Time `bun:"applied_at"`
	Description string    `bun:"description"`
}

// MigrationFunc is a migration step executed within a transaction.
type MigrationFunc func(ctx context.Context, db bun.IDB) error

// MigrationItem describes a single migration version.
type MigrationItem struct {
	Version     string
	Name        string
	Description string
	Up          MigrationFunc
}

// NewMigrationManager returns a manager creating the tables of entities.
func NewMigrationManager(db *bun.DB, logger Logger, entities *entity.Registry) *MigrationManager {
	if logger == nil {
		logger = NopLogger{}
	}
	return &MigrationManager{db: db, logger: logger, entities: entities}
}

// EnableForeignKeys adds a step creating constraints for parent references.
// file optionally names a YAML constraint list merged over the derived ones.
func (mm *MigrationManager) EnableForeignKeys(enabled bool, file string) {
	mm.fkEnabled = enabled
	mm.fkFile = file
}

// RunMigrations creates the migration tracking table if needed and executes
// all pending steps in order. Applied steps are skipped; a table whose
// layout changed since it was created is reported, not altered.
func (mm *MigrationManager) RunMigrations(ctx context.Context) error {
	if _, ok := os.LookupEnv("BUNDEBUG_MIGRATION"); !ok {
		EnableBunSqlSilent(true)
		defer EnableBunSqlSilent(false)
	}
	if mm.db == nil {
		return fmt.Errorf("database not initialized")
	}

	if _, err := mm.db.NewCreateTable().Model((*Migration)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	migrations, err := mm.Migrations()
	if err != nil {
		return err
	}
	for _, migration := range migrations {
		if err := mm.runMigration(ctx, migration); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", migration.Version, err)
		}
	}
	mm.logger.Info("Database migrations completed!")
	return nil
}

// Migrations lists the steps for the registered entities, parents first.
func (mm *MigrationManager) Migrations() ([]MigrationItem, error) {
	configs, err := mm.entities.Ordered()
	if err != nil {
		return nil, err
	}
	name := mm.db.Dialect().Name()

	var items []MigrationItem
	for _, cfg := range configs {
		table, err := buildTableSpec(name, cfg, mm.entities)
		if err != nil {
			return nil, err
		}
		items = append(items, MigrationItem{
			Version:     "001_" + cfg.Table,
			Name:        "create_" + cfg.Table,
			Description: "signature=" + table.signature(),
			Up:          table.create,
		})
	}
	if mm.fkEnabled {
		fkm, err := NewForeignKeyManager(mm.logger, mm.entities, mm.fkFile)
		if err != nil {
			return nil, err
		}
		items = append(items, MigrationItem{
			Version:     "002_foreign_keys",
			Name:        "add_foreign_keys",
			Description: "Add foreign key constraints for parent references",
			Up:          fkm.AddAllForeignKeys,
		})
	}
	return items, nil
}

func (mm *MigrationManager) runMigration(ctx context.Context, migration MigrationItem) error {
	var applied Migration
	err := mm.db.NewSelect().Model(&applied).Where("version = ?", migration.Version).Limit(1).Scan(ctx)
	if err == nil {
		if applied.Description != migration.Description {
			mm.logger.Warn("Table layout changed since it was created, migrate it manually",
				"version", migration.Version, "applied", applied.Description, "wanted", migration.Description)
		}
		return nil
	}
	if is, kind := IsSqlError(err); !is || kind != NoRowsErr {
		return err
	}

	tx, err := mm.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	var committed bool
	defer func() {
		if !committed {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				mm.logger.Error("Failed to rollback transaction", "error", rollbackErr)
			}
		}
	}()

	if err := migration.Up(ctx, tx); err != nil {
		return err
	}
	record := &Migration{
		Version:     migration.Version,
		Name:        migration.Name,
		AppliedAt:   time.Now(),
		Description: migration.Description,
	}
	if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	mm.logger.Info("Migration executed successfully", "version", migration.Version, "name", migration.Name)
	return nil
}

// GetAppliedMigrations returns migration records ordered by version.
func (mm *MigrationManager) GetAppliedMigrations(ctx context.Context) ([]Migration, error) {
	var migrations []Migration
	err := mm.db.NewSelect().Model(&migrations).Order("version ASC").Scan(ctx)
	return migrations, err
}

type columnSpec struct {
	Name    string
	Type    string
	Primary bool
	Indexed bool
}

type tableSpec struct {
	dialect dialect.Name
	table   string
	columns []columnSpec
}

func buildTableSpec(name dialect.Name, cfg *entity.Config, reg *entity.Registry) (*tableSpec, error) {
	layout := &tableSpec{dialect: name, table: cfg.Table}
	for _, p := range cfg.Properties {
		if !p.Indexed {
			continue
		}
		typ, err := columnType(name, p, reg)
		if err != nil {
			return nil, err
		}
		layout.columns = append(layout.columns, columnSpec{
			Name:    p.Column,
			Type:    typ,
			Primary: p.Primary,
			Indexed: !p.Primary,
		})
	}
	layout.columns = append(layout.columns, columnSpec{Name: cfg.PropsColumn, Type: propsType(name)})
	return layout, nil
}

func (t *tableSpec) signature() string {
	parts := make([]string, len(t.columns))
	for i, c := range t.columns {
		parts[i] = fmt.Sprintf("%s:%s:%t:%t", strings.ToLower(c.Name), strings.ToLower(c.Type), c.Primary, c.Indexed)
	}
	sum := sha256.Sum256([]byte(t.table + "|" + strings.Join(parts, ",")))
	return hex.EncodeToString(sum[:])[:16]
}

func (t *tableSpec) create(ctx context.Context, db bun.IDB) error {
	defs := make([]string, len(t.columns))
	args := make([]interface{}, 0, len(t.columns)+1)
	args = append(args, bun.Ident(t.table))
	for i, c := range t.columns {
		def := "? " + c.Type
		if c.Primary && !strings.Contains(strings.ToUpper(c.Type), "PRIMARY KEY") {
			def += " PRIMARY KEY"
		}
		defs[i] = def
		args = append(args, bun.Ident(c.Name))
	}
	query := "CREATE TABLE IF NOT EXISTS ? (" + strings.Join(defs, ", ") + ")"
	if _, err := db.NewRaw(query, args...).Exec(ctx); err != nil {
		return fmt.Errorf("failed to create table %s: %w", t.table, err)
	}

	for _, c := range t.columns {
		if !c.Indexed {
			continue
		}
		name := bun.Ident(fmt.Sprintf("idx_%s_%s", t.table, c.Name))
		query := "CREATE INDEX IF NOT EXISTS ? ON ? (?)"
		if t.dialect == dialect.MySQL {
			query = "CREATE INDEX ? ON ? (?)"
		}
		if _, err := db.NewRaw(query, name, bun.Ident(t.table), bun.Ident(c.Name)).Exec(ctx); err != nil {
			if is, kind := IsSqlError(err); is && kind == ExistIndexErr {
				continue
			}
			return fmt.Errorf("failed to create index on %s.%s: %w", t.table, c.Name, err)
		}
	}
	return nil
}

func propsType(name dialect.Name) string {
	if name == dialect.MySQL {
		return "LONGTEXT"
	}
	return "TEXT"
}

// columnType picks the DDL type of an indexed column. Parent references take
// the type of the referenced primary; converted values are stored as text.
func columnType(name dialect.Name, p *entity.PropConfig, reg *entity.Registry) (string, error) {
	if p.SQLType != "" {
		return p.SQLType, nil
	}
	if p.Parent {
		parent, err := reg.For(p.TypeRef)
		if err != nil {
			return "", err
		}
		return inferSQLType(name, parent.Primary().ValueType(), false), nil
	}
	if p.Converter != "" {
		return inferSQLType(name, reflect.TypeOf(""), false), nil
	}
	return inferSQLType(name, p.ValueType(), p.AutoIncrement), nil
}

func inferSQLType(name dialect.Name, rt reflect.Type, autoIncrement bool) string {
	if rt == nil {
		return "TEXT"
	}
	if rt.Kind() == reflect.Ptr {
		rt = rt.Elem()
	}
	switch rt.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		switch {
		case autoIncrement && name == dialect.MySQL:
			return "bigint AUTO_INCREMENT"
		case autoIncrement && name == dialect.PG:
			return "bigserial"
		case autoIncrement:
			return "INTEGER PRIMARY KEY AUTOINCREMENT"
		case name == dialect.MySQL, name == dialect.PG:
			return "bigint"
		default:
			return "INTEGER"
		}
	case reflect.Float32, reflect.Float64:
		switch name {
		case dialect.MySQL:
			return "double"
		case dialect.PG:
			return "double precision"
		default:
			return "REAL"
		}
	case reflect.String:
		switch name {
		case dialect.MySQL:
			return "varchar(255)"
		case dialect.PG:
			return "text"
		default:
			return "TEXT"
		}
	case reflect.Bool:
		switch name {
		case dialect.MySQL:
			return "tinyint(1)"
		case dialect.PG:
			return "boolean"
		default:
			return "BOOLEAN"
		}
	default:
		if name == dialect.MySQL {
			return "varchar(255)"
		}
		return "TEXT"
	}
}
