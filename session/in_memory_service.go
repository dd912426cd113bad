// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	deepcopy "github.com/tiendc/go-deepcopy"

	"github.com/go-a2a/sessionstore/types"
)

// InMemoryService is an in-memory implementation of the [types.SessionService].
//
// It is the authoritative in-process session registry: all reads return deep
// copies with the shared app and user scope values merged in, and all access
// is serialized through an internal lock so concurrent callers never observe
// a half-applied commit.
type InMemoryService struct {
	// sessions is a map from app name to a map from user ID to a map from session ID to session.
	sessions map[string]map[string]map[string]*types.Session

	// appState is a map from app name to the app-wide state container.
	appState map[string]*types.State

	// userState is a map from app name to a map from user ID to the per-user state container.
	userState map[string]map[string]*types.State

	logger *slog.Logger
	mu     sync.RWMutex
}

var _ types.SessionService = (*InMemoryService)(nil)

// NewInMemoryService creates a new [InMemoryService].
func NewInMemoryService(opts ...ServiceOption) *InMemoryService {
	o := applyOptions(opts)

	return &InMemoryService{
		sessions:  make(map[string]map[string]map[string]*types.Session),
		appState:  make(map[string]*types.State),
		userState: make(map[string]map[string]*types.State),
		logger:    o.logger,
	}
}

// CreateSession creates a new session.
//
// The caller-supplied initial state is treated as already committed: the
// session-scope part becomes the new session's base value, and app:/user:
// prefixed entries are committed straight into the shared scope containers.
func (s *InMemoryService) CreateSession(ctx context.Context, appName, userID, sessionID string, state map[string]any) (*types.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	s.logger.InfoContext(ctx, "Creating session",
		slog.String("app_name", appName),
		slog.String("user_id", userID),
		slog.String("session_id", sessionID),
	)

	ds := types.SplitDelta(state)

	if len(ds.App) > 0 {
		s.appStateLocked(appName).Update(ds.App)
	}
	if len(ds.User) > 0 {
		s.userStateLocked(appName, userID).Update(ds.User)
	}

	sess := types.NewSession(appName, userID, sessionID, ds.Session, time.Now())

	if _, ok := s.sessions[appName]; !ok {
		s.sessions[appName] = make(map[string]map[string]*types.Session)
	}
	if _, ok := s.sessions[appName][userID]; !ok {
		s.sessions[appName][userID] = make(map[string]*types.Session)
	}
	s.sessions[appName][userID][sessionID] = sess

	copied, err := copySession(sess)
	if err != nil {
		return nil, err
	}

	return s.mergeStateLocked(appName, userID, copied), nil
}

// GetSession retrieves a session by ID.
//
// The returned session is a deep copy with the current app and user scope
// values merged in, so state committed through other sessions of the same
// user after this session's creation is visible.
func (s *InMemoryService) GetSession(ctx context.Context, appName, userID, sessionID string, config *types.GetSessionConfig) (*types.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[appName][userID][sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: session %s for user %s in app %s", types.ErrSessionNotFound, sessionID, userID, appName)
	}

	copied, err := copySession(sess)
	if err != nil {
		return nil, err
	}

	if config != nil {
		if !config.AfterTimestamp.IsZero() {
			copied.Events = copied.EventsAfter(config.AfterTimestamp)
		}
		if config.NumRecentEvents > 0 {
			copied.Events = copied.RecentEvents(config.NumRecentEvents)
		}
	}

	return s.mergeStateLocked(appName, userID, copied), nil
}

// ListSessions lists all sessions of a user. The returned sessions carry no
// events and no state.
func (s *InMemoryService) ListSessions(ctx context.Context, appName, userID string) ([]*types.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make([]*types.Session, 0, len(s.sessions[appName][userID]))
	for _, sess := range s.sessions[appName][userID] {
		sessions = append(sessions, types.NewSession(sess.AppName, sess.UserID, sess.ID, nil, sess.LastUpdateTime))
	}

	return sessions, nil
}

// DeleteSession deletes a session. Deleting an absent session is a no-op.
func (s *InMemoryService) DeleteSession(ctx context.Context, appName, userID, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.InfoContext(ctx, "Deleting session",
		slog.String("app_name", appName),
		slog.String("user_id", userID),
		slog.String("session_id", sessionID),
	)

	if _, ok := s.sessions[appName][userID]; !ok {
		return nil
	}
	delete(s.sessions[appName][userID], sessionID)

	return nil
}

// AppendEvent appends an event to a session.
//
// A partial event is recorded in the caller's in-process history only. A
// committed event has its state delta partitioned by scope and committed into
// the session, app, and user state containers atomically with the append.
func (s *InMemoryService) AppendEvent(ctx context.Context, sess *types.Session, event *types.Event) (*types.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if event.ID == "" {
		event.ID = types.NewEventID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if event.Partial {
		sess.AddEvent(event)
		return event, nil
	}

	s.logger.InfoContext(ctx, "Appending event to session",
		slog.String("app_name", sess.AppName),
		slog.String("user_id", sess.UserID),
		slog.String("session_id", sess.ID),
		slog.String("event_id", event.ID),
	)

	ds := types.SplitDelta(event.StateDelta())

	// The caller's session state is the merged view, so the commit carries
	// the app/user entries re-prefixed alongside the session-scope ones.
	sess.State.Update(types.MergeState(ds.App, ds.User, ds.Session))
	sess.AddEvent(event)
	sess.LastUpdateTime = event.Timestamp

	stored, ok := s.sessions[sess.AppName][sess.UserID][sess.ID]
	if !ok {
		return event, nil
	}

	if len(ds.App) > 0 {
		s.appStateLocked(sess.AppName).Update(ds.App)
	}
	if len(ds.User) > 0 {
		s.userStateLocked(sess.AppName, sess.UserID).Update(ds.User)
	}
	stored.State.Update(ds.Session)
	stored.AddEvent(event)
	stored.LastUpdateTime = event.Timestamp

	return event, nil
}

// ListEvents lists the committed events of a session.
func (s *InMemoryService) ListEvents(ctx context.Context, appName, userID, sessionID string) (*types.ListEventsResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[appName][userID][sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: session %s for user %s in app %s", types.ErrSessionNotFound, sessionID, userID, appName)
	}

	copied, err := copySession(sess)
	if err != nil {
		return nil, err
	}

	return &types.ListEventsResponse{Events: copied.Events}, nil
}

// Close implements [types.SessionService]. It is a no-op for the in-memory service.
func (s *InMemoryService) Close() error {
	return nil
}

// appStateLocked returns the app-wide state container, creating it lazily.
// Callers must hold s.mu.
func (s *InMemoryService) appStateLocked(appName string) *types.State {
	st, ok := s.appState[appName]
	if !ok {
		st = types.NewState(nil, nil)
		s.appState[appName] = st
	}
	return st
}

// userStateLocked returns the per-user state container, creating it lazily.
// Callers must hold s.mu.
func (s *InMemoryService) userStateLocked(appName, userID string) *types.State {
	if _, ok := s.userState[appName]; !ok {
		s.userState[appName] = make(map[string]*types.State)
	}
	st, ok := s.userState[appName][userID]
	if !ok {
		st = types.NewState(nil, nil)
		s.userState[appName][userID] = st
	}
	return st
}

// mergeStateLocked merges the shared app and user scope values into the
// session's state view. Callers must hold s.mu.
func (s *InMemoryService) mergeStateLocked(appName, userID string, sess *types.Session) *types.Session {
	var appState, userState map[string]any
	if st, ok := s.appState[appName]; ok {
		appState = st.ToMap()
	}
	if st, ok := s.userState[appName][userID]; ok {
		userState = st.ToMap()
	}

	sess.State = types.NewState(types.MergeState(appState, userState, sess.State.ToMap()), nil)
	return sess
}

// copySession creates a deep copy of a session, so mutations on the returned
// session never leak into the stored one.
func copySession(sess *types.Session) (*types.Session, error) {
	var state map[string]any
	if err := deepcopy.Copy(&state, sess.State.ToMap()); err != nil {
		return nil, fmt.Errorf("copy session state: %w", err)
	}

	events := make([]*types.Event, 0, len(sess.Events))
	if err := deepcopy.Copy(&events, sess.Events); err != nil {
		return nil, fmt.Errorf("copy session events: %w", err)
	}

	copied := types.NewSession(sess.AppName, sess.UserID, sess.ID, state, sess.LastUpdateTime)
	copied.Events = events

	return copied, nil
}
