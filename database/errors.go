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
	"database/sql"
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
)

type SQLError int

const (
	UnknownErr SQLError = iota
	NoRowsErr
	NoTableErr
	NoColumnErr
	DuplicateKeyErr
	NotNullViolationErr
	ForeignKeyViolationErr
	CheckConstraintViolationErr
	DataTruncatedErr
	SerializationFailureErr
	DeadlockErr
	LockTimeoutErr
)

var sqlErrorNames = map[SQLError]string{
	UnknownErr:                  "unknown",
	NoRowsErr:                   "no-rows",
	NoTableErr:                  "no-table",
	NoColumnErr:                 "no-column",
	DuplicateKeyErr:             "duplicate-key",
	NotNullViolationErr:         "not-null-violation",
	ForeignKeyViolationErr:      "foreign-key-violation",
	CheckConstraintViolationErr: "check-constraint-violation",
	DataTruncatedErr:            "data-truncated",
	SerializationFailureErr:     "serialization-failure",
	DeadlockErr:                 "deadlock",
	LockTimeoutErr:              "lock-timeout",
}

func (e SQLError) String() string {
	if s, ok := sqlErrorNames[e]; ok {
		return s
	}
	return sqlErrorNames[UnknownErr]
}

// Retryable reports whether a unit of work failing with this kind can be
// run again from the start.
func (e SQLError) Retryable() bool {
	return e == SerializationFailureErr || e == DeadlockErr || e == LockTimeoutErr
}

var mysqlCodes = map[uint16]SQLError{
	1146: NoTableErr,
	1054: NoColumnErr,
	1062: DuplicateKeyErr,
	1048: NotNullViolationErr,
	1216: ForeignKeyViolationErr,
	1217: ForeignKeyViolationErr,
	1451: ForeignKeyViolationErr,
	1452: ForeignKeyViolationErr,
	3819: CheckConstraintViolationErr,
	1265: DataTruncatedErr,
	1406: DataTruncatedErr,
	1213: DeadlockErr,
	1205: LockTimeoutErr,
}

var pqCodes = map[pq.ErrorCode]SQLError{
	"42P01": NoTableErr,
	"42703": NoColumnErr,
	"23505": DuplicateKeyErr,
	"23502": NotNullViolationErr,
	"23503": ForeignKeyViolationErr,
	"23514": CheckConstraintViolationErr,
	"22001": DataTruncatedErr,
	"40001": SerializationFailureErr,
	"40P01": DeadlockErr,
	"55P03": LockTimeoutErr,
}

// ClassifySQLError maps a driver error to its kind. The second result is
// false when err is not recognised as a database error.
func ClassifySQLError(err error) (SQLError, bool) {
	if err == nil {
		return UnknownErr, false
	}
	if errors.Is(err, sql.ErrNoRows) {
		return NoRowsErr, true
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlCodes[mysqlErr.Number], true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqCodes[pqErr.Code], true
	}

	// sqlite and wrapped drivers only expose text.
	s := strings.ToLower(err.Error())
	switch {
	case strings.Contains(s, "no such table"):
		return NoTableErr, true
	case strings.Contains(s, "no such column"):
		return NoColumnErr, true
	case strings.Contains(s, "unique constraint failed"), strings.Contains(s, "sqlstate 23505"):
		return DuplicateKeyErr, true
	case strings.Contains(s, "not null constraint failed"), strings.Contains(s, "sqlstate 23502"):
		return NotNullViolationErr, true
	case strings.Contains(s, "foreign key constraint failed"), strings.Contains(s, "sqlstate 23503"):
		return ForeignKeyViolationErr, true
	case strings.Contains(s, "check constraint failed"), strings.Contains(s, "sqlstate 23514"):
		return CheckConstraintViolationErr, true
	case strings.Contains(s, "sqlstate 40001"):
		return SerializationFailureErr, true
	case strings.Contains(s, "database is locked"), strings.Contains(s, "sqlstate 40p01"):
		return DeadlockErr, true
	}
	return UnknownErr, false
}
