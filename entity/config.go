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
	"github.com/tomoncle/entorm/types"
)

// DefaultPropsColumn holds the JSON blob of every entity unless overridden.
const DefaultPropsColumn = "props"

// Config is the static description of one entity type. It is built once
// with Define and never mutated afterwards.
type Config struct {
	Type                  string
	Table                 string
	PrimaryProperty       string
	PropsColumn           string
	Properties            []*PropConfig
	ColumnToProperty      map[string]string
	ParentColumnByType    map[string]string
	ConstructorProperties []string

	byName    map[string]*PropConfig
	construct func(Args) (Entity, error)
}

// Property returns the named property or a configuration error.
func (c *Config) Property(name string) (*PropConfig, error) {
	if p, ok := c.byName[name]; ok {
		return p, nil
	}
	return nil, types.Configurationf("property %s is not declared on %s", name, c.Type)
}

// PropertyForColumn resolves a storage column to its property.
func (c *Config) PropertyForColumn(column string) (*PropConfig, bool) {
	name, ok := c.ColumnToProperty[column]
	if !ok {
		return nil, false
	}
	return c.byName[name], true
}

// Primary returns the primary property.
func (c *Config) Primary() *PropConfig { return c.byName[c.PrimaryProperty] }

// PrimaryColumn returns the column of the primary property.
func (c *Config) PrimaryColumn() string { return c.Primary().Column }

// PrimaryValue returns the primary value of e, nil when unset.
func (c *Config) PrimaryValue(e Entity) (interface{}, error) {
	if err := c.check(e); err != nil {
		return nil, err
	}
	v, _, err := c.Primary().Value(e)
	return v, err
}

// Owns reports whether e is an instance of this entity type: it must
// report the type name and be the Go type the properties were declared on.
func (c *Config) Owns(e Entity) bool {
	if e == nil || e.EntityType() != c.Type {
		return false
	}
	_, err := c.Primary().get(e)
	return err == nil
}

// New constructs an entity from its constructor arguments.
func (c *Config) New(args Args) (Entity, error) {
	if args == nil {
		args = Args{}
	}
	return c.construct(args)
}

func (c *Config) check(e Entity) error {
	if !c.Owns(e) {
		return types.InvalidArgumentf("%T is not a %s entity", e, c.Type)
	}
	return nil
}

// Builder assembles the Config of entity type E.
type Builder[E Entity] struct {
	cfg       *Config
	props     []*PropConfig
	ctor      func(Args) (E, error)
	ctorProps []string
	newFn     func() E
}

// Define starts the Config of entity type typ. newFn returns an empty
// instance and is used when no constructor is declared.
func Define[E Entity](typ string, newFn func() E) *Builder[E] {
	return &Builder[E]{
		cfg: &Config{
			Type:        typ,
			Table:       TableName(typ),
			PropsColumn: DefaultPropsColumn,
		},
		newFn: newFn,
	}
}

// Table overrides the default table name.
func (b *Builder[E]) Table(table string) *Builder[E] {
	b.cfg.Table = table
	return b
}

// PropsColumn overrides the JSON blob column.
func (b *Builder[E]) PropsColumn(column string) *Builder[E] {
	b.cfg.PropsColumn = column
	return b
}

// Prop declares properties in storage order.
func (b *Builder[E]) Prop(props ...*PropBuilder[E]) *Builder[E] {
	for _, p := range props {
		b.props = append(b.props, p.prop)
	}
	return b
}

// Constructor declares a constructor receiving the named properties. The
// remaining properties are assigned after construction.
func (b *Builder[E]) Constructor(fn func(Args) (E, error), props ...string) *Builder[E] {
	b.ctor = fn
	b.ctorProps = props
	return b
}

// Build validates the declaration and returns the Config.
func (b *Builder[E]) Build() (*Config, error) {
	cfg := b.cfg
	if cfg.Type == "" {
		return nil, types.Configurationf("entity type name is empty")
	}
	if cfg.Table == "" {
		return nil, types.Configurationf("%s has no table", cfg.Type)
	}
	if cfg.PropsColumn == "" {
		return nil, types.Configurationf("%s has no props column", cfg.Type)
	}
	if b.newFn == nil && b.ctor == nil {
		return nil, types.Configurationf("%s has neither a constructor nor a factory", cfg.Type)
	}

	cfg.Properties = b.props
	cfg.byName = make(map[string]*PropConfig, len(b.props))
	cfg.ColumnToProperty = make(map[string]string, len(b.props))
	cfg.ParentColumnByType = make(map[string]string)

	for _, p := range b.props {
		if p.Name == "" || p.Column == "" {
			return nil, types.Configurationf("%s declares a property without name or column", cfg.Type)
		}
		if _, dup := cfg.byName[p.Name]; dup {
			return nil, types.Configurationf("%s declares property %s twice", cfg.Type, p.Name)
		}
		if other, dup := cfg.ColumnToProperty[p.Column]; dup {
			return nil, types.Configurationf("%s: properties %s and %s share column %s", cfg.Type, other, p.Name, p.Column)
		}
		if p.Column == cfg.PropsColumn {
			return nil, types.Configurationf("%s: property %s uses the props column %s", cfg.Type, p.Name, p.Column)
		}
		if p.Primary {
			if cfg.PrimaryProperty != "" {
				return nil, types.Configurationf("%s declares more than one primary property", cfg.Type)
			}
			cfg.PrimaryProperty = p.Name
		}
		if p.Parent {
			if p.TypeRef == "" {
				return nil, types.Configurationf("%s: parent property %s has no referenced type", cfg.Type, p.Name)
			}
			if col, dup := cfg.ParentColumnByType[p.TypeRef]; dup {
				return nil, types.Configurationf("%s: properties %s and %s both reference parent %s",
					cfg.Type, cfg.ColumnToProperty[col], p.Name, p.TypeRef)
			}
			cfg.ParentColumnByType[p.TypeRef] = p.Column
		}
		cfg.byName[p.Name] = p
		cfg.ColumnToProperty[p.Column] = p.Name
	}
	if cfg.PrimaryProperty == "" {
		return nil, types.Configurationf("%s declares no primary property", cfg.Type)
	}

	for _, name := range b.ctorProps {
		p, ok := cfg.byName[name]
		if !ok {
			return nil, types.Configurationf("%s: constructor property %s is not declared", cfg.Type, name)
		}
		p.Constructor = true
	}
	cfg.ConstructorProperties = append([]string(nil), b.ctorProps...)

	ctor, newFn := b.ctor, b.newFn
	cfg.construct = func(args Args) (Entity, error) {
		if ctor != nil {
			e, err := ctor(args)
			if err != nil {
				return nil, err
			}
			return e, nil
		}
		return newFn(), nil
	}
	return cfg, nil
}

// MustBuild is Build for package-level declarations; it panics on error.
func (b *Builder[E]) MustBuild() *Config {
	cfg, err := b.Build()
	if err != nil {
		panic(err)
	}
	return cfg
}
