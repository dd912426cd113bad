// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package types

import (
	"context"
	"time"
)

// GetSessionConfig is the configuration of getting a session.
type GetSessionConfig struct {
	// NumRecentEvents limits the returned history to the last n events when
	// positive.
	NumRecentEvents int

	// AfterTimestamp, when non-zero, restricts the returned history to events
	// strictly newer than the given time.
	AfterTimestamp time.Time
}

// ListEventsResponse is the response of listing events in a session.
type ListEventsResponse struct {
	Events        []*Event
	NextPageToken string
}

// SessionService is an interface for managing sessions and their events.
//
// All implementations share the appendEvent contract: a partial event is kept
// in the caller's in-process session only, while a committed event atomically
// applies its state delta (scope-routed across the session, app and user
// layers) and joins the durable event log.
type SessionService interface {
	// CreateSession creates a new session with the given parameters.
	//
	// A zero sessionID asks the service to generate one. The initial state, if
	// any, is applied as already committed, not as a pending delta.
	CreateSession(ctx context.Context, appName, userID, sessionID string, state map[string]any) (*Session, error)

	// GetSession retrieves a specific session, with the shared app and user
	// scope values merged into its state.
	//
	// The returned error wraps [ErrSessionNotFound] when no such session
	// exists.
	GetSession(ctx context.Context, appName, userID, sessionID string, config *GetSessionConfig) (*Session, error)

	// ListSessions lists the sessions of a user. The returned sessions carry
	// no state and no events.
	ListSessions(ctx context.Context, appName, userID string) ([]*Session, error)

	// DeleteSession removes a specific session. Deleting an absent session is
	// not an error.
	DeleteSession(ctx context.Context, appName, userID, sessionID string) error

	// AppendEvent appends an event to a session, committing its state delta.
	AppendEvent(ctx context.Context, session *Session, event *Event) (*Event, error)

	// ListEvents retrieves the committed events of a session.
	ListEvents(ctx context.Context, appName, userID, sessionID string) (*ListEventsResponse, error)

	// Close releases the resources held by the service.
	Close() error
}
