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
	"time"
)

// DatetimeLayout is the canonical stored form of time values.
const DatetimeLayout = time.RFC3339Nano

type datetimeConverter struct {
	scope Scope
}

func datetimeFactory(s Scope) (Converter, error) {
	return &datetimeConverter{scope: s}, nil
}

func (c *datetimeConverter) ConvertForDatabase(_ context.Context, value interface{}) (interface{}, error) {
	switch t := value.(type) {
	case time.Time:
		return t.Format(DatetimeLayout), nil
	case *time.Time:
		return t.Format(DatetimeLayout), nil
	}
	return nil, c.scope.fail(KeyDatetime, fmt.Errorf("%T is not a time", value))
}

func (c *datetimeConverter) ConvertForDomain(_ context.Context, value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case time.Time:
		return v, nil
	case string:
		t, err := time.Parse(DatetimeLayout, v)
		if err != nil {
			return nil, c.scope.fail(KeyDatetime, err)
		}
		return t, nil
	}
	return nil, c.scope.fail(KeyDatetime, fmt.Errorf("expected a timestamp, got %T", value))
}
