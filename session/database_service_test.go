// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package session_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/genai"

	"github.com/go-a2a/sessionstore/session"
	"github.com/go-a2a/sessionstore/types"
)

func newDatabaseService(t *testing.T) *session.DatabaseService {
	t.Helper()

	svc, err := session.OpenDatabaseService(t.Context(), "sqlite:///:memory:", session.WithLogger(discardLogger()))
	if err != nil {
		t.Fatalf("OpenDatabaseService() error = %v", err)
	}
	t.Cleanup(func() {
		if err := svc.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})

	return svc
}

func TestDatabaseServiceCreateAndGet(t *testing.T) {
	svc := newDatabaseService(t)
	ctx := t.Context()

	created, err := svc.CreateSession(ctx, "app", "alice", "", map[string]any{
		"topic":      "billing",
		"app:theme":  "dark",
		"user:tier":  "pro",
		"temp:cache": "dropped",
	})
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if created.ID == "" {
		t.Fatal("CreateSession() did not generate a session ID")
	}

	got, err := svc.GetSession(ctx, "app", "alice", created.ID, nil)
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}

	want := map[string]any{
		"topic":     "billing",
		"app:theme": "dark",
		"user:tier": "pro",
	}
	if diff := cmp.Diff(want, got.State.ToMap()); diff != "" {
		t.Errorf("state mismatch (-want +got):\n%s", diff)
	}
	if got.LastUpdateTime.IsZero() {
		t.Error("GetSession() returned a zero LastUpdateTime")
	}
}

func TestDatabaseServiceGetSessionNotFound(t *testing.T) {
	svc := newDatabaseService(t)

	_, err := svc.GetSession(t.Context(), "app", "alice", "missing", nil)
	if !errors.Is(err, types.ErrSessionNotFound) {
		t.Errorf("GetSession(missing) error = %v, want ErrSessionNotFound", err)
	}
}

func TestDatabaseServiceAppendEvent(t *testing.T) {
	svc := newDatabaseService(t)
	ctx := t.Context()

	sess, err := svc.CreateSession(ctx, "app", "alice", "sess", nil)
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	event := deltaEvent("agent", map[string]any{
		"topic":      "billing",
		"user:lang":  "en",
		"temp:draft": "dropped",
	}).WithContent(&genai.Content{
		Role: "model",
		Parts: []*genai.Part{
			{Text: "let's talk billing"},
			{InlineData: &genai.Blob{MIMEType: "image/png", Data: []byte{0x01, 0x02}}},
		},
	}).WithInvocationID("inv-1").WithBranch("root.child")

	if _, err := svc.AppendEvent(ctx, sess, event); err != nil {
		t.Fatalf("AppendEvent() error = %v", err)
	}

	got, err := svc.GetSession(ctx, "app", "alice", "sess", nil)
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}

	wantState := map[string]any{"topic": "billing", "user:lang": "en"}
	if diff := cmp.Diff(wantState, got.State.ToMap()); diff != "" {
		t.Errorf("state mismatch (-want +got):\n%s", diff)
	}

	if len(got.Events) != 1 {
		t.Fatalf("got %d events, want 1", len(got.Events))
	}
	stored := got.Events[0]
	if stored.ID != event.ID {
		t.Errorf("stored event ID = %q, want %q", stored.ID, event.ID)
	}
	if stored.InvocationID != "inv-1" || stored.Branch != "root.child" {
		t.Errorf("stored event metadata = (%q, %q), want (inv-1, root.child)", stored.InvocationID, stored.Branch)
	}
	if diff := cmp.Diff(event.Content, stored.Content); diff != "" {
		t.Errorf("content mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(event.Actions.StateDelta, stored.Actions.StateDelta); diff != "" {
		t.Errorf("actions mismatch (-want +got):\n%s", diff)
	}
}

func TestDatabaseServiceStaleWrite(t *testing.T) {
	svc := newDatabaseService(t)
	ctx := t.Context()

	if _, err := svc.CreateSession(ctx, "app", "alice", "sess", nil); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	first, err := svc.GetSession(ctx, "app", "alice", "sess", nil)
	if err != nil {
		t.Fatalf("GetSession(first) error = %v", err)
	}
	second, err := svc.GetSession(ctx, "app", "alice", "sess", nil)
	if err != nil {
		t.Fatalf("GetSession(second) error = %v", err)
	}

	// Storage must observe a strictly newer update time before the stale
	// snapshot writes.
	time.Sleep(10 * time.Millisecond)
	if _, err := svc.AppendEvent(ctx, first, deltaEvent("agent", map[string]any{"winner": "first"})); err != nil {
		t.Fatalf("AppendEvent(first) error = %v", err)
	}

	_, err = svc.AppendEvent(ctx, second, deltaEvent("agent", map[string]any{"winner": "second"}))
	var staleErr *types.StaleWriteError
	if !errors.As(err, &staleErr) {
		t.Fatalf("AppendEvent(stale) error = %v, want StaleWriteError", err)
	}

	// The losing write left no trace.
	got, err := svc.GetSession(ctx, "app", "alice", "sess", nil)
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if winner, _ := got.State.Get("winner"); winner != "first" {
		t.Errorf("state winner = %v, want first", winner)
	}
	if len(got.Events) != 1 {
		t.Errorf("got %d events, want 1", len(got.Events))
	}

	// Retrying after a re-fetch succeeds.
	refreshed, err := svc.GetSession(ctx, "app", "alice", "sess", nil)
	if err != nil {
		t.Fatalf("GetSession(refreshed) error = %v", err)
	}
	if _, err := svc.AppendEvent(ctx, refreshed, deltaEvent("agent", map[string]any{"winner": "second"})); err != nil {
		t.Errorf("AppendEvent(retry) error = %v", err)
	}
}

func TestDatabaseServicePartialEventNotPersisted(t *testing.T) {
	svc := newDatabaseService(t)
	ctx := t.Context()

	sess, err := svc.CreateSession(ctx, "app", "alice", "sess", nil)
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	partial := deltaEvent("agent", map[string]any{"topic": "streaming"}).WithPartial(true)
	if _, err := svc.AppendEvent(ctx, sess, partial); err != nil {
		t.Fatalf("AppendEvent(partial) error = %v", err)
	}

	if len(sess.Events) != 1 {
		t.Errorf("caller session has %d events, want 1", len(sess.Events))
	}

	got, err := svc.GetSession(ctx, "app", "alice", "sess", nil)
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if len(got.Events) != 0 {
		t.Errorf("stored session has %d events, want 0", len(got.Events))
	}
	if _, ok := got.State.Get("topic"); ok {
		t.Error("partial event's delta reached storage")
	}
}

func TestDatabaseServiceUserStateSharedAcrossSessions(t *testing.T) {
	svc := newDatabaseService(t)
	ctx := t.Context()

	first, err := svc.CreateSession(ctx, "app", "alice", "first", nil)
	if err != nil {
		t.Fatalf("CreateSession(first) error = %v", err)
	}
	if _, err := svc.CreateSession(ctx, "app", "alice", "second", nil); err != nil {
		t.Fatalf("CreateSession(second) error = %v", err)
	}

	if _, err := svc.AppendEvent(ctx, first, deltaEvent("agent", map[string]any{"user:tier": "pro"})); err != nil {
		t.Fatalf("AppendEvent() error = %v", err)
	}

	second, err := svc.GetSession(ctx, "app", "alice", "second", nil)
	if err != nil {
		t.Fatalf("GetSession(second) error = %v", err)
	}
	if got, ok := second.State.Get("user:tier"); !ok || got != "pro" {
		t.Errorf("second session user:tier = %v, %v, want pro, true", got, ok)
	}
}

func TestDatabaseServiceAppendEventAutoVivifies(t *testing.T) {
	svc := newDatabaseService(t)
	ctx := t.Context()

	// A session the store has never seen.
	sess := types.NewSession("app", "alice", "orphan", nil, time.Time{})

	if _, err := svc.AppendEvent(ctx, sess, deltaEvent("agent", map[string]any{"k": "v"})); err != nil {
		t.Fatalf("AppendEvent() error = %v", err)
	}

	got, err := svc.GetSession(ctx, "app", "alice", "orphan", nil)
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if len(got.Events) != 1 {
		t.Errorf("got %d events, want 1", len(got.Events))
	}
}

func TestDatabaseServiceEventOrdering(t *testing.T) {
	svc := newDatabaseService(t)
	ctx := t.Context()

	sess, err := svc.CreateSession(ctx, "app", "alice", "sess", nil)
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	// Identical timestamps; the per-session sequence must keep append order.
	ts := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	for _, author := range []string{"one", "two", "three"} {
		event := types.NewEvent().WithAuthor(author)
		event.Timestamp = ts
		if _, err := svc.AppendEvent(ctx, sess, event); err != nil {
			t.Fatalf("AppendEvent(%s) error = %v", author, err)
		}
	}

	resp, err := svc.ListEvents(ctx, "app", "alice", "sess")
	if err != nil {
		t.Fatalf("ListEvents() error = %v", err)
	}
	var authors []string
	for _, event := range resp.Events {
		authors = append(authors, event.Author)
	}
	if diff := cmp.Diff([]string{"one", "two", "three"}, authors); diff != "" {
		t.Errorf("event order mismatch (-want +got):\n%s", diff)
	}
}

func TestDatabaseServiceGetSessionConfig(t *testing.T) {
	svc := newDatabaseService(t)
	ctx := t.Context()

	sess, err := svc.CreateSession(ctx, "app", "alice", "sess", nil)
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	for i := range 4 {
		event := types.NewEvent().WithAuthor("agent")
		event.Timestamp = base.Add(time.Duration(i) * time.Second)
		if _, err := svc.AppendEvent(ctx, sess, event); err != nil {
			t.Fatalf("AppendEvent(%d) error = %v", i, err)
		}
	}

	got, err := svc.GetSession(ctx, "app", "alice", "sess", &types.GetSessionConfig{NumRecentEvents: 2})
	if err != nil {
		t.Fatalf("GetSession(recent) error = %v", err)
	}
	if len(got.Events) != 2 {
		t.Errorf("NumRecentEvents: got %d events, want 2", len(got.Events))
	}

	got, err = svc.GetSession(ctx, "app", "alice", "sess", &types.GetSessionConfig{AfterTimestamp: base.Add(2 * time.Second)})
	if err != nil {
		t.Fatalf("GetSession(after) error = %v", err)
	}
	if len(got.Events) != 1 {
		t.Errorf("AfterTimestamp: got %d events, want 1", len(got.Events))
	}
}

func TestDatabaseServiceDeleteSession(t *testing.T) {
	svc := newDatabaseService(t)
	ctx := t.Context()

	sess, err := svc.CreateSession(ctx, "app", "alice", "sess", map[string]any{"user:tier": "pro"})
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if _, err := svc.AppendEvent(ctx, sess, deltaEvent("agent", nil)); err != nil {
		t.Fatalf("AppendEvent() error = %v", err)
	}

	if err := svc.DeleteSession(ctx, "app", "alice", "sess"); err != nil {
		t.Fatalf("DeleteSession() error = %v", err)
	}

	if _, err := svc.GetSession(ctx, "app", "alice", "sess", nil); !errors.Is(err, types.ErrSessionNotFound) {
		t.Errorf("GetSession after delete error = %v, want ErrSessionNotFound", err)
	}

	// The shared user scope survives the session.
	other, err := svc.CreateSession(ctx, "app", "alice", "other", nil)
	if err != nil {
		t.Fatalf("CreateSession(other) error = %v", err)
	}
	if got, ok := other.State.Get("user:tier"); !ok || got != "pro" {
		t.Errorf("user:tier after session delete = %v, %v, want pro, true", got, ok)
	}

	if err := svc.DeleteSession(ctx, "app", "alice", "never-existed"); err != nil {
		t.Errorf("DeleteSession(absent) error = %v, want nil", err)
	}
}

func TestDatabaseServiceListSessions(t *testing.T) {
	svc := newDatabaseService(t)
	ctx := t.Context()

	for _, id := range []string{"one", "two"} {
		if _, err := svc.CreateSession(ctx, "app", "alice", id, map[string]any{"k": "v"}); err != nil {
			t.Fatalf("CreateSession(%s) error = %v", id, err)
		}
	}
	if _, err := svc.CreateSession(ctx, "app", "bob", "three", nil); err != nil {
		t.Fatalf("CreateSession(bob) error = %v", err)
	}

	sessions, err := svc.ListSessions(ctx, "app", "alice")
	if err != nil {
		t.Fatalf("ListSessions() error = %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("ListSessions() returned %d sessions, want 2", len(sessions))
	}
	for _, sess := range sessions {
		if len(sess.State.ToMap()) != 0 || len(sess.Events) != 0 {
			t.Errorf("summary for %s carries state or events", sess.ID)
		}
	}
}

func TestDatabaseServiceValidation(t *testing.T) {
	svc := newDatabaseService(t)
	ctx := t.Context()

	tests := []struct {
		name      string
		appName   string
		userID    string
		sessionID string
	}{
		{name: "empty app name", appName: "", userID: "alice", sessionID: "sess"},
		{name: "empty user id", appName: "app", userID: "", sessionID: "sess"},
		{name: "oversized session id", appName: "app", userID: "alice", sessionID: strings.Repeat("x", 129)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateSession(ctx, tt.appName, tt.userID, tt.sessionID, nil)
			var validationErr types.ValidationError
			if !errors.As(err, &validationErr) {
				t.Errorf("CreateSession() error = %v, want ValidationError", err)
			}
		})
	}
}

func TestOpenDatabaseServiceUnsupportedURL(t *testing.T) {
	_, err := session.OpenDatabaseService(t.Context(), "oracle://somewhere/db")
	var validationErr types.ValidationError
	if !errors.As(err, &validationErr) {
		t.Errorf("OpenDatabaseService() error = %v, want ValidationError", err)
	}
}
