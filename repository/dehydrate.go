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
	"errors"

	"github.com/goccy/go-json"

	"github.com/tomoncle/entorm/database"
	"github.com/tomoncle/entorm/entity"
	"github.com/tomoncle/entorm/types"
)

// generateRow turns e into a row: indexed properties as columns plus the
// props blob holding every set property. Unset properties are not written.
func (r *Repository) generateRow(ctx context.Context, cfg *entity.Config, e entity.Entity, creating bool) (database.Row, error) {
	if u, ok := e.(entity.Updater); ok {
		u.OnUpdate()
	}
	if creating {
		if c, ok := e.(entity.Creator); ok {
			c.OnCreate()
		}
		for _, p := range cfg.Properties {
			if p.Generator == nil {
				continue
			}
			if _, set, err := p.Value(e); err != nil {
				return nil, err
			} else if !set {
				if err := p.Assign(e, p.Generator()); err != nil {
					return nil, err
				}
			}
		}
	}

	row := make(database.Row)
	blob := make(map[string]interface{}, len(cfg.Properties))
	for _, p := range cfg.Properties {
		v, set, err := p.Value(e)
		if err != nil {
			return nil, err
		}
		if !set {
			continue
		}
		v, err = r.storageValue(ctx, cfg, p, v)
		if err != nil {
			return nil, err
		}
		if err := r.validatorFor(p).Validate(v, p.Name); err != nil {
			return nil, err
		}
		blob[p.Column] = v
		if p.Indexed {
			row[p.Column] = v
		}
	}

	data, err := json.Marshal(blob)
	if err != nil {
		return nil, types.NewPropertyValidation(cfg.PropsColumn, "json", err)
	}
	row[cfg.PropsColumn] = string(data)
	return row, nil
}

// storageValue maps a set domain value to its storage scalar: parents to
// their primary value, converted properties through their converter.
func (r *Repository) storageValue(ctx context.Context, cfg *entity.Config, p *entity.PropConfig, v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	switch {
	case p.Parent:
		parent, ok := v.(entity.Entity)
		if !ok {
			return v, nil
		}
		primary, err := r.entities.PrimaryValue(parent)
		if err != nil {
			return nil, err
		}
		if primary == nil {
			return nil, types.NewPropertyValidation(p.Name, "parent",
				errors.New("referenced "+parent.EntityType()+" has no primary value"))
		}
		return primary, nil
	case p.Converter != "":
		c, err := r.converterFor(cfg, p)
		if err != nil {
			return nil, err
		}
		return c.ConvertForDatabase(ctx, v)
	default:
		return v, nil
	}
}

func (r *Repository) insert(ctx context.Context, e entity.Entity) error {
	cfg, err := r.entities.ForEntity(e)
	if err != nil {
		return err
	}
	row, err := r.generateRow(ctx, cfg, e, true)
	if err != nil {
		return err
	}

	pk := cfg.Primary()
	returning := ""
	if _, set := row[pk.Column]; !set {
		if !pk.AutoIncrement {
			return types.NewPropertyValidation(pk.Name, "primary", errors.New("primary value is not set"))
		}
		returning = pk.Column
	}

	res, err := r.adapter.Insert(ctx, cfg.Table, row, returning)
	if err != nil {
		return database.WrapError("insert into "+cfg.Table, err)
	}
	if returning != "" {
		if !res.HasLastInsertID {
			return database.WrapError("insert into "+cfg.Table, errors.New("no generated primary value reported"))
		}
		if err := pk.Assign(e, res.LastInsertID); err != nil {
			return err
		}
	}

	primary, err := cfg.PrimaryValue(e)
	if err != nil {
		return err
	}
	key, err := primaryKey(cfg, primary)
	if err != nil {
		return err
	}
	r.cachePut(cfg.Type, key, e)
	return nil
}

func (r *Repository) update(ctx context.Context, e entity.Entity) error {
	cfg, err := r.entities.ForEntity(e)
	if err != nil {
		return err
	}
	primary, err := cfg.PrimaryValue(e)
	if err != nil {
		return err
	}
	if primary == nil {
		return types.InvalidArgumentf("%s has no primary value to update", cfg.Type)
	}
	key, err := primaryKey(cfg, primary)
	if err != nil {
		return err
	}
	// one live instance per (type, primary)
	cached, isCached := r.cache.Get(cfg.Type, key)
	if isCached && cached != e {
		return types.InvalidArgumentf("another %s instance with primary %v is already loaded", cfg.Type, key)
	}

	row, err := r.generateRow(ctx, cfg, e, false)
	if err != nil {
		return err
	}
	delete(row, cfg.PrimaryColumn())

	res, err := r.adapter.Update(ctx, cfg.Table, row, []database.Condition{database.Eq(cfg.PrimaryColumn(), key)})
	if err != nil {
		return database.WrapError("update "+cfg.Table, err)
	}
	if res.Affected == 0 {
		return types.NewEntityNotFound(cfg.Type, key)
	}
	if !isCached {
		r.cachePut(cfg.Type, key, e)
	}
	return nil
}

// delete removes every referencing child before the row itself. seen holds
// the rows already being deleted so reference cycles terminate.
func (r *Repository) delete(ctx context.Context, cfg *entity.Config, key interface{}, seen map[string]struct{}) error {
	id := cfg.Type + "/" + cacheKey(key)
	if _, ok := seen[id]; ok {
		return nil
	}
	seen[id] = struct{}{}

	for _, child := range r.entities.Children(cfg.Type) {
		childCfg, err := r.entities.For(child.Type)
		if err != nil {
			return err
		}
		rows, err := r.adapter.Select(ctx, database.SelectQuery{
			Table:   childCfg.Table,
			Columns: []string{childCfg.PrimaryColumn()},
			Where:   []database.Condition{database.Eq(child.Column, key)},
		})
		if err != nil {
			return database.WrapError("select "+childCfg.Table, err)
		}
		for _, row := range rows {
			childKey, err := primaryKey(childCfg, row[childCfg.PrimaryColumn()])
			if err != nil {
				return err
			}
			if _, ok := seen[child.Type+"/"+cacheKey(childKey)]; ok {
				continue
			}
			r.logger.Debug("Cascading delete", "parent", cfg.Type, "primary", key, "child", child.Type, "child_primary", childKey)
			if err := r.delete(ctx, childCfg, childKey, seen); err != nil {
				return err
			}
		}
	}

	res, err := r.adapter.Delete(ctx, cfg.Table, []database.Condition{database.Eq(cfg.PrimaryColumn(), key)})
	if err != nil {
		return database.WrapError("delete from "+cfg.Table, err)
	}
	if res.Affected == 0 {
		return types.NewEntityNotFound(cfg.Type, key)
	}
	r.cacheEvict(cfg.Type, key)
	return nil
}
