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
	"fmt"
	"time"

	"github.com/tomoncle/transact/types"
)

// IsolationLevel is the consistency guarantee requested for a unit of work.
type IsolationLevel int

const (
	// IsolationUnspecified leaves the choice to the database provider.
	IsolationUnspecified IsolationLevel = iota
	IsolationReadUncommitted
	IsolationReadCommitted
	IsolationRepeatableRead
	IsolationSerializable
	IsolationSnapshot
)

var isolationNames = [...]string{"unspecified", "read-uncommitted", "read-committed", "repeatable-read", "serializable", "snapshot"}

var isolationDescs = [...]string{
	"provider default isolation",
	"dirty reads allowed",
	"only committed data is visible",
	"rows read once stay stable",
	"transactions behave as if run one after another",
	"reads see a snapshot taken at transaction start",
}

// IsolationLevels lists every valid isolation level.
func IsolationLevels() []IsolationLevel {
	return []IsolationLevel{IsolationUnspecified, IsolationReadUncommitted, IsolationReadCommitted,
		IsolationRepeatableRead, IsolationSerializable, IsolationSnapshot}
}

func (l IsolationLevel) IsValid() bool { return l >= IsolationUnspecified && l <= IsolationSnapshot }

func (l IsolationLevel) Number() int {
	if !l.IsValid() {
		return types.IllegalValue
	}
	return int(l)
}

func (l IsolationLevel) Name() string {
	if !l.IsValid() {
		return types.IllegalName
	}
	return isolationNames[l]
}

func (l IsolationLevel) String() string { return l.Name() }

func (l IsolationLevel) Desc() string {
	if !l.IsValid() {
		return types.IllegalDesc
	}
	return isolationDescs[l]
}

// SQL maps the level onto database/sql.
func (l IsolationLevel) SQL() sql.IsolationLevel {
	switch l {
	case IsolationReadUncommitted:
		return sql.LevelReadUncommitted
	case IsolationReadCommitted:
		return sql.LevelReadCommitted
	case IsolationRepeatableRead:
		return sql.LevelRepeatableRead
	case IsolationSerializable:
		return sql.LevelSerializable
	case IsolationSnapshot:
		return sql.LevelSnapshot
	default:
		return sql.LevelDefault
	}
}

func (l IsolationLevel) MarshalText() ([]byte, error) { return []byte(l.Name()), nil }

func (l *IsolationLevel) UnmarshalText(text []byte) error {
	v, ok := types.ParseEnum(string(text), IsolationLevels()...)
	if !ok {
		return fmt.Errorf("%w: unknown isolation level %q", ErrInvalidOptions, string(text))
	}
	*l = v
	return nil
}

// ScopeOption decides how a new scope relates to an ambient transaction.
type ScopeOption int

const (
	// ScopeRequired joins the ambient transaction, or starts one if there is none.
	ScopeRequired ScopeOption = iota
	// ScopeRequiresNew always starts an independent transaction.
	ScopeRequiresNew
	// ScopeSuppress runs without any ambient transaction.
	ScopeSuppress
)

var scopeNames = [...]string{"required", "requires-new", "suppress"}

var scopeDescs = [...]string{
	"join the ambient transaction or create one",
	"always create a new transaction",
	"run outside any transaction",
}

// ScopeOptions lists every valid scope option.
func ScopeOptions() []ScopeOption {
	return []ScopeOption{ScopeRequired, ScopeRequiresNew, ScopeSuppress}
}

func (o ScopeOption) IsValid() bool { return o >= ScopeRequired && o <= ScopeSuppress }

func (o ScopeOption) Number() int {
	if !o.IsValid() {
		return types.IllegalValue
	}
	return int(o)
}

func (o ScopeOption) Name() string {
	if !o.IsValid() {
		return types.IllegalName
	}
	return scopeNames[o]
}

func (o ScopeOption) String() string { return o.Name() }

func (o ScopeOption) Desc() string {
	if !o.IsValid() {
		return types.IllegalDesc
	}
	return scopeDescs[o]
}

func (o ScopeOption) MarshalText() ([]byte, error) { return []byte(o.Name()), nil }

func (o *ScopeOption) UnmarshalText(text []byte) error {
	v, ok := types.ParseEnum(string(text), ScopeOptions()...)
	if !ok {
		return fmt.Errorf("%w: unknown scope option %q", ErrInvalidOptions, string(text))
	}
	*o = v
	return nil
}

// AsyncFlowOption controls whether the ambient scope follows work spawned
// through Go and NewGroup.
type AsyncFlowOption int

const (
	AsyncFlowEnabled AsyncFlowOption = iota
	AsyncFlowSuppressed
)

// AsyncFlowOptions lists every valid async flow option.
func AsyncFlowOptions() []AsyncFlowOption {
	return []AsyncFlowOption{AsyncFlowEnabled, AsyncFlowSuppressed}
}

func (f AsyncFlowOption) IsValid() bool { return f == AsyncFlowEnabled || f == AsyncFlowSuppressed }

func (f AsyncFlowOption) Number() int {
	if !f.IsValid() {
		return types.IllegalValue
	}
	return int(f)
}

func (f AsyncFlowOption) Name() string {
	switch f {
	case AsyncFlowEnabled:
		return "enabled"
	case AsyncFlowSuppressed:
		return "suppressed"
	default:
		return types.IllegalName
	}
}

func (f AsyncFlowOption) String() string { return f.Name() }

func (f AsyncFlowOption) Desc() string {
	switch f {
	case AsyncFlowEnabled:
		return "spawned work stays enlisted"
	case AsyncFlowSuppressed:
		return "spawned work runs outside the transaction"
	default:
		return types.IllegalDesc
	}
}

func (f AsyncFlowOption) MarshalText() ([]byte, error) { return []byte(f.Name()), nil }

func (f *AsyncFlowOption) UnmarshalText(text []byte) error {
	v, ok := types.ParseEnum(string(text), AsyncFlowOptions()...)
	if !ok {
		return fmt.Errorf("%w: unknown async flow option %q", ErrInvalidOptions, string(text))
	}
	*f = v
	return nil
}

// Options configures one unit of work. The zero value equals DefaultOptions.
type Options struct {
	Isolation IsolationLevel  `json:"isolation" yaml:"isolation"`
	Scope     ScopeOption     `json:"scope" yaml:"scope"`
	AsyncFlow AsyncFlowOption `json:"async_flow" yaml:"async_flow"`
	// Timeout bounds the lifetime of a root transaction; zero means no limit.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// DefaultOptions returns provider-default isolation, required propagation
// and async flow enabled.
func DefaultOptions() Options {
	return Options{
		Isolation: IsolationUnspecified,
		Scope:     ScopeRequired,
		AsyncFlow: AsyncFlowEnabled,
	}
}

// Validate reports the first out-of-range field.
func (o Options) Validate() error {
	switch {
	case !o.Isolation.IsValid():
		return fmt.Errorf("%w: isolation level %d", ErrInvalidOptions, int(o.Isolation))
	case !o.Scope.IsValid():
		return fmt.Errorf("%w: scope option %d", ErrInvalidOptions, int(o.Scope))
	case !o.AsyncFlow.IsValid():
		return fmt.Errorf("%w: async flow option %d", ErrInvalidOptions, int(o.AsyncFlow))
	case o.Timeout < 0:
		return fmt.Errorf("%w: negative timeout %s", ErrInvalidOptions, o.Timeout)
	}
	return nil
}
