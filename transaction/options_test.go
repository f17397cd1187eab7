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

package transaction

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaultOptionsIsZeroValue(t *testing.T) {
	assert.Equal(t, Options{}, DefaultOptions())
	assert.Equal(t, IsolationUnspecified, DefaultOptions().Isolation)
	assert.Equal(t, ScopeRequired, DefaultOptions().Scope)
	assert.Equal(t, AsyncFlowEnabled, DefaultOptions().AsyncFlow)
	assert.Zero(t, DefaultOptions().Timeout)
}

func TestIsolationLevelText(t *testing.T) {
	cases := map[string]IsolationLevel{
		"read-committed":  IsolationReadCommitted,
		"ReadCommitted":   IsolationReadCommitted,
		"READ_COMMITTED":  IsolationReadCommitted,
		"serializable":    IsolationSerializable,
		"repeatable read": IsolationRepeatableRead,
		"snapshot":        IsolationSnapshot,
		"unspecified":     IsolationUnspecified,
	}
	for text, want := range cases {
		var got IsolationLevel
		require.NoError(t, got.UnmarshalText([]byte(text)), text)
		assert.Equal(t, want, got, text)
	}

	var bad IsolationLevel
	assert.ErrorIs(t, bad.UnmarshalText([]byte("chaos")), ErrInvalidOptions)
}

func TestIsolationLevelSQL(t *testing.T) {
	assert.Equal(t, sql.LevelDefault, IsolationUnspecified.SQL())
	assert.Equal(t, sql.LevelReadUncommitted, IsolationReadUncommitted.SQL())
	assert.Equal(t, sql.LevelReadCommitted, IsolationReadCommitted.SQL())
	assert.Equal(t, sql.LevelRepeatableRead, IsolationRepeatableRead.SQL())
	assert.Equal(t, sql.LevelSerializable, IsolationSerializable.SQL())
	assert.Equal(t, sql.LevelSnapshot, IsolationSnapshot.SQL())
}

func TestOptionsYAML(t *testing.T) {
	var opts Options
	err := yaml.Unmarshal([]byte("isolation: serializable\nscope: requires-new\nasync_flow: suppressed\ntimeout: 3s\n"), &opts)
	require.NoError(t, err)
	assert.Equal(t, Options{
		Isolation: IsolationSerializable,
		Scope:     ScopeRequiresNew,
		AsyncFlow: AsyncFlowSuppressed,
		Timeout:   3 * time.Second,
	}, opts)

	out, err := yaml.Marshal(opts)
	require.NoError(t, err)
	assert.Contains(t, string(out), "isolation: serializable")
	assert.Contains(t, string(out), "scope: requires-new")
}

func TestOptionsValidate(t *testing.T) {
	assert.NoError(t, DefaultOptions().Validate())
	assert.ErrorIs(t, Options{Isolation: IsolationLevel(42)}.Validate(), ErrInvalidOptions)
	assert.ErrorIs(t, Options{Scope: ScopeOption(-1)}.Validate(), ErrInvalidOptions)
	assert.ErrorIs(t, Options{AsyncFlow: AsyncFlowOption(9)}.Validate(), ErrInvalidOptions)
	assert.ErrorIs(t, Options{Timeout: -time.Second}.Validate(), ErrInvalidOptions)
}
