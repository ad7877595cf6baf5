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
	"path/filepath"
	"strings"

	"github.com/uptrace/bun"
	"gopkg.in/yaml.v3"

	"github.com/tomoncle/entorm/entity"
)

var validFKActions = []string{"CASCADE", "RESTRICT", "SET NULL", "NO ACTION"}

// ForeignKeyConstraint describes a foreign key relationship between tables.
type ForeignKeyConstraint struct {
	Table           string
	Column          string
	ReferenceTable  string
	ReferenceColumn string
	OnDelete        string // CASCADE, RESTRICT, SET NULL, NO ACTION
	OnUpdate        string
	ConstraintName  string
}

// GenerateConstraintName returns the explicit name or a derived name.
func (fk *ForeignKeyConstraint) GenerateConstraintName() string {
	if fk.ConstraintName != "" {
		return fk.ConstraintName
	}
	return fmt.Sprintf("fk_%s_%s", fk.Table, fk.Column)
}

func (fk *ForeignKeyConstraint) key() string {
	return strings.ToLower(fk.Table + "." + fk.Column)
}

// query returns the ALTER TABLE statement adding the constraint with its
// identifier arguments. Actions are validated before use.
func (fk *ForeignKeyConstraint) query() (string, []interface{}) {
	q := "ALTER TABLE ? ADD CONSTRAINT ? FOREIGN KEY (?) REFERENCES ? (?)"
	if fk.OnDelete != "" {
		q += " ON DELETE " + strings.ToUpper(fk.OnDelete)
	}
	if fk.OnUpdate != "" {
		q += " ON UPDATE " + strings.ToUpper(fk.OnUpdate)
	}
	return q, []interface{}{
		bun.Ident(fk.Table), bun.Ident(fk.GenerateConstraintName()), bun.Ident(fk.Column),
		bun.Ident(fk.ReferenceTable), bun.Ident(fk.ReferenceColumn),
	}
}

// ForeignKeyConfig is the YAML structure that lists foreign key constraints.
type ForeignKeyConfig struct {
	ForeignKeys []ForeignKeyConstraintConfig `yaml:"foreign_keys"`
}

// ForeignKeyConstraintConfig describes a single foreign key in configuration.
type ForeignKeyConstraintConfig struct {
	Table           string `yaml:"table"`
	Column          string `yaml:"column"`
	ReferenceTable  string `yaml:"reference_table"`
	ReferenceColumn string `yaml:"reference_column"`
	OnDelete        string `yaml:"on_delete,omitempty"`
	OnUpdate        string `yaml:"on_update,omitempty"`
	ConstraintName  string `yaml:"constraint_name,omitempty"`
	Description     string `yaml:"description,omitempty"`
}

// ToForeignKeyConstraint converts the config entry into a runtime constraint.
func (fkc *ForeignKeyConstraintConfig) ToForeignKeyConstraint() ForeignKeyConstraint {
	return ForeignKeyConstraint{
		Table:           fkc.Table,
		Column:          fkc.Column,
		ReferenceTable:  fkc.ReferenceTable,
		ReferenceColumn: fkc.ReferenceColumn,
		OnDelete:        fkc.OnDelete,
		OnUpdate:        fkc.OnUpdate,
		ConstraintName:  fkc.ConstraintName,
	}
}

// ForeignKeyManager adds one constraint per parent reference of the
// registered entities. Entries of an optional YAML file replace the derived
// constraint on the same table and column or add new ones.
type ForeignKeyManager struct {
	constraints []ForeignKeyConstraint
	logger      Logger
	configPath  string
}

// NewForeignKeyManager derives constraints from entities and merges the
// YAML file at configPath when it is set.
func NewForeignKeyManager(logger Logger, entities *entity.Registry, configPath string) (*ForeignKeyManager, error) {
	if logger == nil {
		logger = NopLogger{}
	}
	fkm := &ForeignKeyManager{logger: logger, configPath: configPath}
	derived, err := deriveForeignKeys(entities)
	if err != nil {
		return nil, err
	}
	fkm.constraints = derived
	if configPath != "" {
		configured, err := loadForeignKeyFile(configPath)
		if err != nil {
			return nil, err
		}
		fkm.constraints = mergeForeignKeys(derived, configured)
	}
	if errs := fkm.ValidateConstraints(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid foreign key constraints: %v", errs)
	}
	return fkm, nil
}

func deriveForeignKeys(entities *entity.Registry) ([]ForeignKeyConstraint, error) {
	if entities == nil {
		return nil, nil
	}
	var out []ForeignKeyConstraint
	for _, cfg := range entities.Configs() {
		for _, p := range cfg.Properties {
			if !p.Parent {
				continue
			}
			parent, err := entities.For(p.TypeRef)
			if err != nil {
				return nil, err
			}
			out = append(out, ForeignKeyConstraint{
				Table:           cfg.Table,
				Column:          p.Column,
				ReferenceTable:  parent.Table,
				ReferenceColumn: parent.PrimaryColumn(),
			})
		}
	}
	return out, nil
}

func loadForeignKeyFile(path string) ([]ForeignKeyConstraint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read foreign key file: %w", err)
	}
	var config ForeignKeyConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse foreign key file: %w", err)
	}
	constraints := make([]ForeignKeyConstraint, 0, len(config.ForeignKeys))
	for _, fkConfig := range config.ForeignKeys {
		constraints = append(constraints, fkConfig.ToForeignKeyConstraint())
	}
	return constraints, nil
}

func mergeForeignKeys(derived, configured []ForeignKeyConstraint) []ForeignKeyConstraint {
	out := append([]ForeignKeyConstraint(nil), derived...)
	index := make(map[string]int, len(out))
	for i, c := range out {
		index[c.key()] = i
	}
	for _, c := range configured {
		if i, ok := index[c.key()]; ok {
			out[i] = c
			continue
		}
		index[c.key()] = len(out)
		out = append(out, c)
	}
	return out
}

// ReloadConfig re-reads the YAML file over the current constraints.
func (fkm *ForeignKeyManager) ReloadConfig() error {
	if fkm.configPath == "" {
		return fmt.Errorf("no foreign key file configured")
	}
	configured, err := loadForeignKeyFile(fkm.configPath)
	if err != nil {
		return err
	}
	fkm.constraints = mergeForeignKeys(fkm.constraints, configured)
	return nil
}

// ExportToConfig writes the current constraints as a YAML file, creating
// directories as needed.
func (fkm *ForeignKeyManager) ExportToConfig(outputPath string) error {
	config := ForeignKeyConfig{ForeignKeys: make([]ForeignKeyConstraintConfig, 0, len(fkm.constraints))}
	for _, c := range fkm.constraints {
		config.ForeignKeys = append(config.ForeignKeys, ForeignKeyConstraintConfig{
			Table:           c.Table,
			Column:          c.Column,
			ReferenceTable:  c.ReferenceTable,
			ReferenceColumn: c.ReferenceColumn,
			OnDelete:        c.OnDelete,
			OnUpdate:        c.OnUpdate,
			ConstraintName:  c.ConstraintName,
			Description:     fmt.Sprintf("%s.%s -> %s.%s", c.Table, c.Column, c.ReferenceTable, c.ReferenceColumn),
		})
	}
	data, err := yaml.Marshal(&config)
	if err != nil {
		return fmt.Errorf("failed to serialize foreign keys: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return os.WriteFile(outputPath, data, 0o644)
}

// AddAllForeignKeys adds every constraint. Failures are logged and skipped,
// so a constraint that already exists does not abort the migration.
func (fkm *ForeignKeyManager) AddAllForeignKeys(ctx context.Context, db bun.IDB) error {
	for _, constraint := range fkm.constraints {
		q, args := constraint.query()
		if _, err := db.NewRaw(q, args...).Exec(ctx); err != nil {
			fkm.logger.Debug("Failed to add foreign key constraint",
				"constraint", constraint.GenerateConstraintName(), "error", err.Error())
			continue
		}
		fkm.logger.Debug("Added foreign key constraint", "constraint", constraint.GenerateConstraintName())
	}
	return nil
}

// RemoveForeignKey drops a named foreign key from a table.
func (fkm *ForeignKeyManager) RemoveForeignKey(ctx context.Context, db bun.IDB, tableName, constraintName string) error {
	_, err := db.NewRaw("ALTER TABLE ? DROP CONSTRAINT ?", bun.Ident(tableName), bun.Ident(constraintName)).Exec(ctx)
	return err
}

// GetConstraintsByTable returns the constraints defined for a table.
func (fkm *ForeignKeyManager) GetConstraintsByTable(tableName string) []ForeignKeyConstraint {
	var result []ForeignKeyConstraint
	for _, constraint := range fkm.constraints {
		if strings.EqualFold(constraint.Table, tableName) {
			result = append(result, constraint)
		}
	}
	return result
}

// ListAllConstraints returns all constraints.
func (fkm *ForeignKeyManager) ListAllConstraints() []ForeignKeyConstraint {
	return fkm.constraints
}

// ValidateConstraints checks the constraints for missing names and unknown
// referential actions.
func (fkm *ForeignKeyManager) ValidateConstraints() []error {
	var errs []error
	for _, c := range fkm.constraints {
		switch {
		case c.Table == "":
			errs = append(errs, fmt.Errorf("table name cannot be empty"))
		case c.Column == "":
			errs = append(errs, fmt.Errorf("column name cannot be empty: %s", c.Table))
		case c.ReferenceTable == "":
			errs = append(errs, fmt.Errorf("reference table name cannot be empty: %s.%s", c.Table, c.Column))
		case c.ReferenceColumn == "":
			errs = append(errs, fmt.Errorf("reference column name cannot be empty: %s.%s -> %s", c.Table, c.Column, c.ReferenceTable))
		}
		for _, action := range []string{c.OnDelete, c.OnUpdate} {
			if action != "" && !validAction(action) {
				errs = append(errs, fmt.Errorf("invalid referential action %s on %s", action, c.GenerateConstraintName()))
			}
		}
	}
	return errs
}

func validAction(action string) bool {
	for _, a := range validFKActions {
		if strings.EqualFold(action, a) {
			return true
		}
	}
	return false
}
