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

package repository

import (
	"context"
	"fmt"

	"github.com/tomoncle/entorm/database"
	"github.com/tomoncle/entorm/entity"
	"github.com/tomoncle/entorm/types"
)

// SpawnFromRow turns a stored row of entityType into an entity. The row
// needs the primary column and the props column. A cached instance with the
// same primary value is returned as is.
func (r *Repository) SpawnFromRow(ctx context.Context, entityType string, row database.Row) (entity.Entity, error) {
	cfg, err := r.entities.For(entityType)
	if err != nil {
		return nil, err
	}
	raw, ok := row[cfg.PrimaryColumn()]
	if !ok || raw == nil {
		return nil, types.Configurationf("%s row has no value in primary column %s", entityType, cfg.PrimaryColumn())
	}
	primary, err := cfg.Primary().Coerce(raw)
	if err != nil {
		return nil, err
	}
	if e, ok := r.cache.Get(entityType, primary); ok {
		return e, nil
	}

	props, err := r.parseRow(ctx, cfg, row)
	if err != nil {
		return nil, err
	}
	props[cfg.PrimaryProperty] = primary

	e, err := spawn(cfg, props)
	if err != nil {
		return nil, err
	}
	r.cachePut(entityType, primary, e)
	return e, nil
}

// parseRow decodes the props blob into domain values keyed by property name.
func (r *Repository) parseRow(ctx context.Context, cfg *entity.Config, row database.Row) (map[string]interface{}, error) {
	var blob types.JsonObject
	if err := blob.Scan(row[cfg.PropsColumn]); err != nil {
		return nil, types.NewPropertyValidation(cfg.PropsColumn, "json", err)
	}

	props := make(map[string]interface{}, len(blob))
	for column, value := range blob {
		p, ok := cfg.PropertyForColumn(column)
		if !ok {
			r.logger.Debug("Ignoring unknown stored column", "entity", cfg.Type, "column", column)
			continue
		}
		if value == nil {
			props[p.Name] = nil
			continue
		}

		switch {
		case p.Parent:
			parent, err := r.Get(ctx, p.TypeRef, value)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", cfg.Type, p.Name, err)
			}
			props[p.Name] = parent
		case p.Converter != "":
			c, err := r.converterFor(cfg, p)
			if err != nil {
				return nil, err
			}
			v, err := c.ConvertForDomain(ctx, value)
			if err != nil {
				return nil, err
			}
			props[p.Name] = v
		default:
			props[p.Name] = value
		}
	}
	return props, nil
}

// spawn builds the entity: constructor properties go to the constructor,
// missing ones as nil, the rest are assigned afterwards.
func spawn(cfg *entity.Config, props map[string]interface{}) (entity.Entity, error) {
	args := make(entity.Args, len(cfg.ConstructorProperties))
	for _, name := range cfg.ConstructorProperties {
		args[name] = props[name]
	}
	e, err := cfg.New(args)
	if err != nil {
		return nil, err
	}
	if !cfg.Owns(e) {
		return nil, types.Configurationf("constructor of %s returned %T", cfg.Type, e)
	}

	for _, p := range cfg.Properties {
		if p.Constructor {
			continue
		}
		v, ok := props[p.Name]
		if !ok {
			continue
		}
		if err := p.Assign(e, v); err != nil {
			return nil, err
		}
	}
	return e, nil
}
