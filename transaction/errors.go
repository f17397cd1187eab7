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

import "errors"

var (
	// ErrInvalidOptions is returned by Begin for out-of-range options.
	ErrInvalidOptions = errors.New("transaction: invalid options")
	// ErrScopeClosed is returned when enlisting into a scope that was already closed.
	ErrScopeClosed = errors.New("transaction: scope already closed")
	// ErrIsolationMismatch is returned when a joining scope asks for a different isolation level.
	ErrIsolationMismatch = errors.New("transaction: isolation level differs from the ambient transaction")
	// ErrTransactionAborted is returned when a completed root scope is closed after a
	// joined scope was closed without completing.
	ErrTransactionAborted = errors.New("transaction: aborted by a nested scope")
	// ErrPartialCommit is returned when a commit fails after earlier locators already committed.
	ErrPartialCommit = errors.New("transaction: partially committed")
)

// Outcome is the terminal state of a closed scope.
type Outcome int

const (
	// RolledBack means every enlisted transaction was discarded.
	RolledBack Outcome = iota
	// Committed means every enlisted transaction was committed.
	Committed
	// Deferred is reported by a joined scope; its root decides the outcome.
	Deferred
)

func (o Outcome) String() string {
	switch o {
	case Committed:
		return "committed"
	case RolledBack:
		return "rolled-back"
	case Deferred:
		return "deferred"
	default:
		return "unknown"
	}
}
