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
	"sync"

	"github.com/tomoncle/entorm/entity"
)

var (
	defaultRegistryMu sync.Mutex
	defaultRegistry   *entity.Registry
)

func registry() *entity.Registry {
	defaultRegistryMu.Lock()
	defer defaultRegistryMu.Unlock()
	if defaultRegistry == nil {
		defaultRegistry, _ = entity.NewRegistry()
	}
	return defaultRegistry
}

// RegisterEntity adds entity configs to the process-wide registry used by
// migrations and the global repository. It is meant for init functions and
// panics on a duplicate type or table.
func RegisterEntity(cfgs ...*entity.Config) {
	if err := registry().Register(cfgs...); err != nil {
		panic(err)
	}
}

// RegisteredEntities returns the process-wide entity registry.
func RegisteredEntities() *entity.Registry {
	return registry()
}

// ResetRegisteredEntities drops every registered entity. Tests use it to
// start from an empty registry.
func ResetRegisteredEntities() {
	defaultRegistryMu.Lock()
	defer defaultRegistryMu.Unlock()
	defaultRegistry, _ = entity.NewRegistry()
}
