// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package types

import (
	"time"
)

// Session represents a series of interactions between a user and agents.
//
// A session is identified by the composite key (AppName, UserID, ID); the ID
// is unique within one (AppName, UserID) pair. State holds the session's
// effective state; backends return it with the shared app: and user: scope
// values merged in.
type Session struct {
	// ID is the session identifier, unique within (AppName, UserID).
	ID string

	// AppName is the name of the application owning the session.
	AppName string

	// UserID is the id of the user owning the session.
	UserID string

	// State is the state of the session.
	State *State

	// Events is the ordered event history of the session.
	Events []*Event

	// LastUpdateTime is the last update time of the session.
	//
	// For durable backends this mirrors storage's update time and drives the
	// optimistic concurrency check on append.
	LastUpdateTime time.Time
}

// NewSession creates a new session with the given parameters.
func NewSession(appName, userID, id string, state map[string]any, lastUpdateTime time.Time) *Session {
	return &Session{
		ID:             id,
		AppName:        appName,
		UserID:         userID,
		State:          NewState(state, nil),
		Events:         []*Event{},
		LastUpdateTime: lastUpdateTime,
	}
}

// AddEvent appends events to this session's in-memory history.
func (s *Session) AddEvent(events ...*Event) {
	s.Events = append(s.Events, events...)
}

// RecentEvents returns the most recent n events, or all events when n is not
// positive or exceeds the history length.
func (s *Session) RecentEvents(n int) []*Event {
	if n <= 0 || n > len(s.Events) {
		return s.Events
	}
	return s.Events[len(s.Events)-n:]
}

// EventsAfter returns the events strictly newer than t.
func (s *Session) EventsAfter(t time.Time) []*Event {
	var events []*Event
	for _, event := range s.Events {
		if event.Timestamp.After(t) {
			events = append(events, event)
		}
	}
	return events
}
