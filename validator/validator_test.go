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

package validator

import (
	"errors"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomoncle/entorm/types"
)

func ruleOf(t *testing.T, err error) string {
	t.Helper()
	require.Error(t, err)
	require.ErrorIs(t, err, types.ErrPropertyValidation)
	var pve *types.PropertyValidationError
	require.True(t, errors.As(err, &pve))
	return pve.Rule
}

func TestRules_FirstFailureWins(t *testing.T) {
	r := Rules{NotEmpty: true, MaxLength: Length(5)}

	assert.Equal(t, RuleNotEmpty, ruleOf(t, r.Validate("", "name")))
	assert.Equal(t, RuleMaxLength, ruleOf(t, r.Validate("toolong", "name")))
	assert.NoError(t, r.Validate("ok", "name"))
}

func TestRules_ErrorNamesProperty(t *testing.T) {
	err := Rules{NotEmpty: true}.Validate("", "title")
	var pve *types.PropertyValidationError
	require.True(t, errors.As(err, &pve))
	assert.Equal(t, "title", pve.Property)
	assert.Contains(t, err.Error(), "title failed: notEmpty")
}

func TestRules_NonScalar(t *testing.T) {
	assert.Equal(t, RuleScalar, ruleOf(t, Rules{}.Validate([]string{"a"}, "tags")))
	assert.Equal(t, RuleScalar, ruleOf(t, Rules{}.Validate(map[string]int{}, "tags")))
	assert.NoError(t, Rules{}.Validate(nil, "tags"))
	assert.NoError(t, Rules{}.Validate(false, "flag"))
	assert.NoError(t, Rules{NotEmpty: true}.Validate(false, "flag"))
}

func TestRules_NoHTML(t *testing.T) {
	r := Rules{NoHTML: true}
	assert.Equal(t, RuleNoHTML, ruleOf(t, r.Validate("hello <b>world</b>", "bio")))
	assert.NoError(t, r.Validate("1 < 2 and 3 > 2", "bio"))
}

func TestRules_Class(t *testing.T) {
	cases := []struct {
		class Class
		value string
		ok    bool
	}{
		{ClassAlphaNumeric, "abc123", true},
		{ClassAlphaNumeric, "abc-123", false},
		{ClassAlphabetic, "abc", true},
		{ClassAlphabetic, "abc1", false},
		{ClassNumeric, "0123", true},
		{ClassNumeric, "12.3", false},
		{ClassNumeric, "", false},
	}
	for _, c := range cases {
		err := Rules{Class: c.class}.Validate(c.value, "p")
		if c.ok {
			assert.NoError(t, err, "%s %q", c.class, c.value)
		} else {
			assert.Equal(t, "class="+string(c.class), ruleOf(t, err))
		}
	}
}

func TestRules_Filter(t *testing.T) {
	cases := []struct {
		filter Filter
		value  string
		ok     bool
	}{
		{FilterEmail, "jane@example.com", true},
		{FilterEmail, "Jane <jane@example.com>", false},
		{FilterURL, "https://example.com/a", true},
		{FilterURL, "example.com", false},
		{FilterIP, "10.0.0.1", true},
		{FilterIP, "10.0.0", false},
		{FilterInt, "-42", true},
		{FilterInt, "4.2", false},
		{FilterFloat, "4.2", true},
		{FilterBool, "yes", true},
		{FilterBool, "nope", false},
		{FilterDomain, "sub.example.com", true},
		{FilterDomain, "-bad.com", false},
	}
	for _, c := range cases {
		err := Rules{Filter: c.filter}.Validate(c.value, "p")
		if c.ok {
			assert.NoError(t, err, "%s %q", c.filter, c.value)
		} else {
			assert.Equal(t, "filter="+string(c.filter), ruleOf(t, err))
		}
	}
}

func TestRules_RegexAndLength(t *testing.T) {
	r := Rules{Regex: regexp.MustCompile(`^[a-z]+$`), MinLength: Length(3)}
	assert.Equal(t, RuleRegex, ruleOf(t, r.Validate("ABC", "slug")))
	assert.Equal(t, RuleMinLength, ruleOf(t, r.Validate("ab", "slug")))
	assert.NoError(t, r.Validate("abc", "slug"))
}

func TestRules_NumericBounds(t *testing.T) {
	r := Rules{Min: Bound(1), Max: Bound(10)}
	assert.NoError(t, r.Validate(int64(5), "qty"))
	assert.NoError(t, r.Validate("7", "qty"))
	assert.Equal(t, RuleMin, ruleOf(t, r.Validate(0, "qty")))
	assert.Equal(t, RuleMax, ruleOf(t, r.Validate(10.5, "qty")))
	assert.Equal(t, RuleMin, ruleOf(t, r.Validate("many", "qty")))
}

func TestRules_IsZero(t *testing.T) {
	assert.True(t, Rules{}.IsZero())
	assert.False(t, Rules{NotEmpty: true}.IsZero())
}
