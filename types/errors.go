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

package types

import (
	"errors"
	"fmt"
)

// Error kinds returned by the repository. Every failing repository or query
// operation returns an error matching exactly one of them with errors.Is.
var (
	ErrEntityNotFound     = errors.New("entity not found")
	ErrPropertyValidation = errors.New("property validation failed")
	ErrDatabase           = errors.New("database error")
	ErrConfiguration      = errors.New("configuration error")
	ErrInvalidArgument    = errors.New("invalid argument")
)

// EntityNotFoundError reports a lookup or a single-row write that matched no row.
type EntityNotFoundError struct {
	Entity  string
	Primary interface{}
}

func (e *EntityNotFoundError) Error() string {
	if e.Primary == nil {
		return fmt.Sprintf("%s: %s", ErrEntityNotFound, e.Entity)
	}
	return fmt.Sprintf("%s: %s(%v)", ErrEntityNotFound, e.Entity, e.Primary)
}

func (e *EntityNotFoundError) Is(target error) bool { return target == ErrEntityNotFound }

// NewEntityNotFound returns an EntityNotFoundError for the given type and primary value.
func NewEntityNotFound(entity string, primary interface{}) error {
	return &EntityNotFoundError{Entity: entity, Primary: primary}
}

// PropertyValidationError names the property and the rule that rejected its
// storage value. Err carries the underlying cause for converter failures.
type PropertyValidationError struct {
	Property string
	Rule     string
	Err      error
}

func (e *PropertyValidationError) Error() string {
	msg := fmt.Sprintf("%s failed: %s", e.Property, e.Rule)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PropertyValidationError) Is(target error) bool { return target == ErrPropertyValidation }

func (e *PropertyValidationError) Unwrap() error { return e.Err }

// NewPropertyValidation returns a PropertyValidationError.
func NewPropertyValidation(property, rule string, cause error) error {
	return &PropertyValidationError{Property: property, Rule: rule, Err: cause}
}

// DatabaseError wraps an adapter failure. Kind is the classified SQL error
// name when the driver error could be recognised.
type DatabaseError struct {
	Op   string
	Kind string
	Err  error
}

func (e *DatabaseError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("%s: %s (%s): %v", ErrDatabase, e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", ErrDatabase, e.Op, e.Err)
}

func (e *DatabaseError) Is(target error) bool { return target == ErrDatabase }

func (e *DatabaseError) Unwrap() error { return e.Err }

// ConfigurationError reports an undeclared type, property or column.
type ConfigurationError struct {
	Msg string
}

func (e *ConfigurationError) Error() string { return fmt.Sprintf("%s: %s", ErrConfiguration, e.Msg) }

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// Configurationf formats a ConfigurationError.
func Configurationf(format string, args ...interface{}) error {
	return &ConfigurationError{Msg: fmt.Sprintf(format, args...)}
}

// InvalidArgumentf formats an error wrapping ErrInvalidArgument.
func InvalidArgumentf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
