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

package converter

import (
	"context"
	"fmt"
	"strings"

	"github.com/tomoncle/entorm/entity"
	"github.com/tomoncle/entorm/types"
)

const (
	typeSeparator    = ":"
	primarySeparator = ";"
)

// collectionConverter stores a *entity.Collection as the list of its member
// primaries. Without a fixed member type the stored form is "Type:1;2;3",
// with one it is "1;2;3".
type collectionConverter struct {
	scope     Scope
	fixedType string
}

func collectionFactory(s Scope) (Converter, error) {
	if s.Resolver == nil {
		return nil, types.Configurationf("%s.%s: collection converter needs a resolver", s.EntityType, s.PropertyName())
	}
	return &collectionConverter{scope: s, fixedType: s.TypeRef()}, nil
}

func (c *collectionConverter) ConvertForDatabase(_ context.Context, value interface{}) (interface{}, error) {
	coll, ok := value.(*entity.Collection)
	if !ok {
		return nil, c.scope.fail(KeyCollection, fmt.Errorf("%T is not a collection", value))
	}
	memberType := coll.Type()
	if c.fixedType != "" && c.fixedType != memberType {
		return nil, c.scope.fail(KeyCollection, fmt.Errorf("collection of %s, want %s", memberType, c.fixedType))
	}

	primaries, err := coll.PrimaryValues()
	if err != nil {
		return nil, c.scope.fail(KeyCollection, err)
	}
	parts := make([]string, len(primaries))
	for i, p := range primaries {
		if p == nil {
			return nil, c.scope.fail(KeyCollection, fmt.Errorf("member %d has no primary value", i))
		}
		parts[i] = fmt.Sprint(p)
	}
	joined := strings.Join(parts, primarySeparator)
	if c.fixedType == "" {
		joined = memberType + typeSeparator + joined
	}
	return joined, nil
}

func (c *collectionConverter) ConvertForDomain(ctx context.Context, value interface{}) (interface{}, error) {
	raw, ok := value.(string)
	if !ok {
		return nil, c.scope.fail(KeyCollection, fmt.Errorf("expected a primary list, got %T", value))
	}
	memberType := c.fixedType
	if memberType == "" {
		var found bool
		memberType, raw, found = strings.Cut(raw, typeSeparator)
		if !found {
			return nil, c.scope.fail(KeyCollection, fmt.Errorf("missing member type in %q", value))
		}
	}

	cfg, err := c.scope.Resolver.Registry().For(memberType)
	if err != nil {
		return nil, err
	}
	coll, err := entity.NewCollection(cfg)
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return coll, nil
	}
	for _, primary := range strings.Split(raw, primarySeparator) {
		e, err := c.scope.Resolver.Get(ctx, memberType, primary)
		if err != nil {
			return nil, err
		}
		if err := coll.Add(e); err != nil {
			return nil, err
		}
	}
	return coll, nil
}
