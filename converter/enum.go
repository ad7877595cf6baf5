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

	"github.com/tomoncle/entorm/types"
)

type enumConverter struct {
	scope Scope
	cases []types.BaseEnum
}

func (r *Registry) enumFactory(s Scope) (Converter, error) {
	r.mu.RLock()
	cases, ok := r.enums[s.TypeRef()]
	r.mu.RUnlock()
	if !ok {
		return nil, types.Configurationf("%s.%s: enum set %q is not registered", s.EntityType, s.PropertyName(), s.TypeRef())
	}
	return &enumConverter{scope: s, cases: cases}, nil
}

// ConvertForDatabase stores the lower-cased case name.
func (c *enumConverter) ConvertForDatabase(_ context.Context, value interface{}) (interface{}, error) {
	e, ok := value.(types.BaseEnum)
	if !ok {
		return nil, c.scope.fail(KeyEnum, fmt.Errorf("%T is not an enum", value))
	}
	if !e.IsValid() {
		return nil, c.scope.fail(KeyEnum, fmt.Errorf("invalid case %v", e))
	}
	return strings.ToLower(e.Name()), nil
}

func (c *enumConverter) ConvertForDomain(_ context.Context, value interface{}) (interface{}, error) {
	name, ok := value.(string)
	if !ok {
		return nil, c.scope.fail(KeyEnum, fmt.Errorf("expected a case name, got %T", value))
	}
	e, ok := types.EnumByName(name, c.cases...)
	if !ok {
		return nil, c.scope.fail(KeyEnum, fmt.Errorf("case %q doesn't exist", name))
	}
	return e, nil
}
