// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package session provides stateful conversation tracking and state management for agent interactions.
//
// The session package implements the types.SessionService interface for managing user sessions,
// conversation history, and state persistence across agent interactions. Sessions are organized
// hierarchically by application and user for proper isolation and management.
//
// # Backends
//
// Three implementations of the same contract are provided:
//
//   - InMemoryService: authoritative in-process registry, reference implementation
//   - DatabaseService: durable relational backend with optimistic-concurrency writes
//   - VertexAIService: managed remote backend with best-effort event mirroring
//
// # Session Organization
//
// Sessions are organized hierarchically:
//
//	{appName} -> {userID} -> {sessionID} -> Session
//
// This structure provides:
//   - Application isolation: Each app has separate session storage
//   - User isolation: Each user's sessions are kept separate
//   - Session isolation: Individual conversations are tracked separately
//
// # State Management
//
// The package supports three tiers of durable state plus an ephemeral one,
// selected by key prefix:
//
//   - App State ("app:"): Shared across all users of an application
//   - User State ("user:"): Specific to a user across all their sessions
//   - Session State (no prefix): Specific to a single conversation session
//   - Temporary State ("temp:"): Dropped on commit, never persisted
//
// A state delta attached to an event is partitioned once into a
// types.DeltaSet and committed into the matching layers when the event is
// appended. The state returned by GetSession and CreateSession is the merged
// view of all three durable layers.
//
// # Basic Usage
//
// Creating a session service:
//
//	service := session.NewInMemoryService()
//
// Creating and managing sessions:
//
//	// Create a new session
//	sess, err := service.CreateSession(ctx, "myapp", "user123", "", nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	// Append an event that updates state
//	event := types.NewEvent().
//		WithAuthor("agent").
//		WithActions(types.NewEventActions().WithStateDelta(map[string]any{
//			"step":       1,
//			"user:theme": "dark",
//		}))
//	if _, err := service.AppendEvent(ctx, sess, event); err != nil {
//		log.Fatal(err)
//	}
//
//	// Retrieve it later, trimmed to the recent history
//	sess, err = service.GetSession(ctx, "myapp", "user123", sess.ID, &types.GetSessionConfig{
//		NumRecentEvents: 10,
//	})
//
// # Durable Backends
//
// The relational backend takes an explicit connection pool and owns its
// lifecycle:
//
//	svc, err := session.OpenDatabaseService(ctx, "sqlite://sessions.db")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer svc.Close()
//
// Appending with a stale session snapshot fails with types.StaleWriteError;
// the caller re-fetches the session and retries. The Vertex AI backend keeps
// the caller's in-memory session authoritative and mirrors committed events
// to the remote service on a best-effort basis.
//
// # Concurrency
//
// The in-memory service serializes access with an internal lock and returns
// deep copies, so callers never observe torn writes. The relational backend
// supports genuine multi-writer concurrency guarded by the optimistic
// update-time check.
package session
