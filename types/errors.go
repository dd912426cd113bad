// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package types

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrSessionNotFound is returned when a get or append targets a session
	// the backend does not know and does not auto-create.
	ErrSessionNotFound = errors.New("session not found")

	// ErrBackendUnavailable is returned when the backing store cannot be
	// reached.
	ErrBackendUnavailable = errors.New("session backend unavailable")

	// ErrOperationTimeout is returned when a remote long-running operation
	// does not complete within the polling budget.
	ErrOperationTimeout = errors.New("long-running operation timed out")
)

// StaleWriteError reports an optimistic-concurrency violation: the caller's
// session snapshot is older than what storage holds, so persisting the append
// would overwrite a concurrent writer's work. Callers must re-fetch the
// session and retry.
type StaleWriteError struct {
	// SessionUpdateTime is the caller's last known update time.
	SessionUpdateTime time.Time

	// StorageUpdateTime is the update time currently in storage.
	StorageUpdateTime time.Time
}

// Error returns a string representation of the [StaleWriteError].
func (e *StaleWriteError) Error() string {
	return fmt.Sprintf(
		"session lastUpdateTime %s is earlier than the update time in storage %s",
		e.SessionUpdateTime.UTC().Format(time.DateTime),
		e.StorageUpdateTime.UTC().Format(time.DateTime),
	)
}

// ValidationError is the error type for malformed identifiers or arguments.
type ValidationError string

// Error returns a string representation of the [ValidationError].
func (e ValidationError) Error() string {
	return string(e)
}

// NotImplementedError is the error type for unimplemented behavior.
type NotImplementedError string

// Error returns a string representation of the [NotImplementedError].
func (e NotImplementedError) Error() string {
	return string(e)
}
