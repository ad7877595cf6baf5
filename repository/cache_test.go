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
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

type countingLocker struct {
	sync.Mutex
	locks int
}

func (l *countingLocker) Lock() {
	l.Mutex.Lock()
	l.locks++
}

func TestIdentityCache(t *testing.T) {
	c := NewIdentityCache()
	a := &author{ID: "7"}

	c.Put("Author", int64(7), a)
	got, ok := c.Get("Author", "7")
	assert.True(t, ok)
	assert.Same(t, a, got)

	_, ok = c.Get("Post", int64(7))
	assert.False(t, ok)
	assert.Equal(t, 1, c.Len("Author"))

	prev, ok := c.Evict("Author", "7")
	assert.True(t, ok)
	assert.Same(t, a, prev)
	_, ok = c.Evict("Author", "7")
	assert.False(t, ok)

	c.Put("Author", "x", a)
	c.Put("Tag", 1, &tag{ID: 1})
	c.Clear()
	assert.Zero(t, c.Len("Author"))
	assert.Zero(t, c.Len("Tag"))
}

func TestIdentityCacheLocker(t *testing.T) {
	l := &countingLocker{}
	c := NewIdentityCache(WithLocker(l))

	c.Put("Tag", 1, &tag{ID: 1})
	c.Get("Tag", 1)
	c.Len("Tag")
	assert.Equal(t, 3, l.locks)
}
