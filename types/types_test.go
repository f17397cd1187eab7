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
	"testing"

	"github.com/stretchr/testify/assert"
)

type color int

const (
	red color = iota
	darkBlue
)

func (c color) IsValid() bool { return c == red || c == darkBlue }
func (c color) Number() int   { return int(c) }
func (c color) String() string {
	if c == darkBlue {
		return "DarkBlue"
	}
	return "Red"
}
func (c color) Desc() string { return "a color" }
func (c color) Name() string {
	if c == darkBlue {
		return "dark-blue"
	}
	return "red"
}

func TestParseEnum(t *testing.T) {
	for _, text := range []string{"dark-blue", "DARK_BLUE", "DarkBlue", " dark blue "} {
		got, ok := ParseEnum(text, red, darkBlue)
		assert.True(t, ok, text)
		assert.Equal(t, darkBlue, got, text)
	}
	_, ok := ParseEnum("green", red, darkBlue)
	assert.False(t, ok)
}

func TestPageRequest(t *testing.T) {
	req := NewPageRequest(0, -5, nil)
	assert.Equal(t, 0, req.Offset())
	assert.Equal(t, 1, req.Page)
	assert.Equal(t, 10, req.PageSize)

	assert.Equal(t, 40, NewPageRequest(3, 20, nil, "id DESC").Offset())

	p := NewPagination[struct{}](NewPageRequest(2, 0, NewQueryFilter("a = ?", 1)))
	assert.Equal(t, 2, p.Page)
	assert.Equal(t, 10, p.PageSize)
	assert.NotNil(t, p.Items)
}
