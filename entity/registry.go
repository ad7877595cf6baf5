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

package entity

import (
	"sync"

	"github.com/tomoncle/entorm/types"
)

// ChildRef is one parent-reference column of a child entity type.
type ChildRef struct {
	Type     string
	Property string
	Column   string
}

// Registry holds the Config of every entity type known to a repository and
// a parent to children index used by cascading deletes.
type Registry struct {
	mu       sync.RWMutex
	configs  map[string]*Config
	order    []string
	children map[string][]ChildRef
}

// NewRegistry returns a registry holding cfgs.
func NewRegistry(cfgs ...*Config) (*Registry, error) {
	r := &Registry{
		configs:  make(map[string]*Config),
		children: make(map[string][]ChildRef),
	}
	if err := r.Register(cfgs...); err != nil {
		return nil, err
	}
	return r, nil
}

// Register adds entity configs. Types and tables must be unique.
func (r *Registry) Register(cfgs ...*Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cfg := range cfgs {
		if cfg == nil {
			return types.Configurationf("nil entity config")
		}
		if _, dup := r.configs[cfg.Type]; dup {
			return types.Configurationf("entity type %s registered twice", cfg.Type)
		}
		for _, other := range r.configs {
			if other.Table == cfg.Table {
				return types.Configurationf("entity types %s and %s share table %s", other.Type, cfg.Type, cfg.Table)
			}
		}
		r.configs[cfg.Type] = cfg
		r.order = append(r.order, cfg.Type)
		for _, p := range cfg.Properties {
			if p.Parent {
				r.children[p.TypeRef] = append(r.children[p.TypeRef], ChildRef{
					Type:     cfg.Type,
					Property: p.Name,
					Column:   p.Column,
				})
			}
		}
	}
	return nil
}

// For returns the config of entityType.
func (r *Registry) For(entityType string) (*Config, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.configs[entityType]
	if !ok {
		return nil, types.Configurationf("entity type %s is not registered", entityType)
	}
	return cfg, nil
}

// ForEntity returns the config of e's type.
func (r *Registry) ForEntity(e Entity) (*Config, error) {
	if e == nil {
		return nil, types.InvalidArgumentf("nil entity")
	}
	return r.For(e.EntityType())
}

// PrimaryValue returns the primary value of e.
func (r *Registry) PrimaryValue(e Entity) (interface{}, error) {
	cfg, err := r.ForEntity(e)
	if err != nil {
		return nil, err
	}
	return cfg.PrimaryValue(e)
}

// Children lists the parent-reference columns pointing at entityType.
func (r *Registry) Children(entityType string) []ChildRef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	refs := r.children[entityType]
	out := make([]ChildRef, len(refs))
	copy(out, refs)
	return out
}

// Configs returns all configs in registration order.
func (r *Registry) Configs() []*Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Config, 0, len(r.order))
	for _, t := range r.order {
		out = append(out, r.configs[t])
	}
	return out
}

// Validate checks that every parent reference names a registered type.
func (r *Registry) Validate() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.order {
		for _, p := range r.configs[t].Properties {
			if p.Parent {
				if _, ok := r.configs[p.TypeRef]; !ok {
					return types.Configurationf("%s.%s references unregistered type %s", t, p.Name, p.TypeRef)
				}
			}
		}
	}
	return nil
}

// Ordered returns the configs with every parent type before its children.
// Self references are allowed; other reference cycles are a configuration
// error.
func (r *Registry) Ordered() ([]*Config, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(r.order))
	out := make([]*Config, 0, len(r.order))

	var visit func(t string) error
	visit = func(t string) error {
		switch state[t] {
		case done:
			return nil
		case visiting:
			return types.Configurationf("reference cycle through %s", t)
		}
		state[t] = visiting
		for _, p := range r.configs[t].Properties {
			if p.Parent && p.TypeRef != t {
				if err := visit(p.TypeRef); err != nil {
					return err
				}
			}
		}
		state[t] = done
		out = append(out, r.configs[t])
		return nil
	}
	for _, t := range r.order {
		if err := visit(t); err != nil {
			return nil, err
		}
	}
	return out, nil
}
