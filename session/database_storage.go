// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/bytedance/sonic"

	"github.com/go-a2a/sessionstore/internal/pool"
	"github.com/go-a2a/sessionstore/types"
)

// Dialect selects the SQL flavor of a [DatabaseService].
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite3"
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
)

// maxKeyLen bounds every composite-key column, matching the VARCHAR(128)
// schema below.
const maxKeyLen = 128

// Schema. Four record kinds: sessions, events, app_states, user_states.
// Composite key columns are capped at 128 characters; state blobs are opaque
// JSON text.
var (
	ddlSessions = heredoc.Doc(`
		CREATE TABLE IF NOT EXISTS sessions (
		    app_name    VARCHAR(128) NOT NULL,
		    user_id     VARCHAR(128) NOT NULL,
		    id          VARCHAR(128) NOT NULL,
		    state       TEXT NOT NULL,
		    create_time TIMESTAMP NOT NULL,
		    update_time TIMESTAMP NOT NULL,
		    PRIMARY KEY (app_name, user_id, id)
		);
	`)

	ddlEvents = heredoc.Doc(`
		CREATE TABLE IF NOT EXISTS events (
		    id                    VARCHAR(128) NOT NULL,
		    app_name              VARCHAR(128) NOT NULL,
		    user_id               VARCHAR(128) NOT NULL,
		    session_id            VARCHAR(128) NOT NULL,
		    seq                   BIGINT NOT NULL,
		    invocation_id         VARCHAR(256),
		    author                VARCHAR(256),
		    branch                VARCHAR(256),
		    timestamp             TIMESTAMP NOT NULL,
		    content               TEXT,
		    actions               TEXT,
		    long_running_tool_ids TEXT,
		    grounding_metadata    TEXT,
		    partial               BOOLEAN,
		    turn_complete         BOOLEAN,
		    interrupted           BOOLEAN,
		    error_code            VARCHAR(256),
		    error_message         VARCHAR(1024),
		    PRIMARY KEY (id, app_name, user_id, session_id)
		);
	`)

	ddlEventsIndex = heredoc.Doc(`
		CREATE INDEX IF NOT EXISTS idx_events_session
		    ON events (app_name, user_id, session_id, timestamp, seq);
	`)

	ddlAppStates = heredoc.Doc(`
		CREATE TABLE IF NOT EXISTS app_states (
		    app_name    VARCHAR(128) NOT NULL,
		    state       TEXT NOT NULL,
		    update_time TIMESTAMP NOT NULL,
		    PRIMARY KEY (app_name)
		);
	`)

	ddlUserStates = heredoc.Doc(`
		CREATE TABLE IF NOT EXISTS user_states (
		    app_name    VARCHAR(128) NOT NULL,
		    user_id     VARCHAR(128) NOT NULL,
		    state       TEXT NOT NULL,
		    update_time TIMESTAMP NOT NULL,
		    PRIMARY KEY (app_name, user_id)
		);
	`)
)

var sqlInsertEvent = heredoc.Doc(`
	INSERT INTO events (
	    id, app_name, user_id, session_id, seq,
	    invocation_id, author, branch, timestamp,
	    content, actions, long_running_tool_ids, grounding_metadata,
	    partial, turn_complete, interrupted,
	    error_code, error_message
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`)

// ddl returns the schema statements for the dialect. MySQL needs
// microsecond-precision timestamps for the optimistic-concurrency check, and
// does not support IF NOT EXISTS on index creation.
func ddl(dialect Dialect) []string {
	statements := []string{ddlSessions, ddlEvents, ddlAppStates, ddlUserStates, ddlEventsIndex}
	if dialect == DialectMySQL {
		for i, stmt := range statements {
			statements[i] = strings.ReplaceAll(stmt, "TIMESTAMP", "TIMESTAMP(6)")
		}
		statements[len(statements)-1] = strings.ReplaceAll(statements[len(statements)-1], "IF NOT EXISTS ", "")
	}
	return statements
}

// bind rewrites ?-style placeholders into the dialect's form.
func (s *DatabaseService) bind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}

	b := pool.String.Get()
	defer func() {
		b.Reset()
		pool.String.Put(b)
	}()

	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// storageEvent is the row shape of the events table.
type storageEvent struct {
	id                 string
	appName            string
	userID             string
	sessionID          string
	seq                int64
	invocationID       sql.NullString
	author             sql.NullString
	branch             sql.NullString
	timestamp          time.Time
	content            sql.NullString
	actions            sql.NullString
	longRunningToolIDs sql.NullString
	groundingMetadata  sql.NullString
	partial            sql.NullBool
	turnComplete       sql.NullBool
	interrupted        sql.NullBool
	errorCode          sql.NullString
	errorMessage       sql.NullString
}

// newStorageEvent converts an event to its row shape, encoding the JSON
// columns.
func newStorageEvent(sess *types.Session, event *types.Event, seq int64) (*storageEvent, error) {
	row := &storageEvent{
		id:           event.ID,
		appName:      sess.AppName,
		userID:       sess.UserID,
		sessionID:    sess.ID,
		seq:          seq,
		invocationID: nullString(event.InvocationID),
		author:       nullString(event.Author),
		branch:       nullString(event.Branch),
		timestamp:    event.Timestamp.UTC(),
		partial:      sql.NullBool{Bool: event.Partial, Valid: true},
		turnComplete: sql.NullBool{Bool: event.TurnComplete, Valid: true},
		interrupted:  sql.NullBool{Bool: event.Interrupted, Valid: true},
		errorCode:    nullString(event.ErrorCode),
		errorMessage: nullString(event.ErrorMessage),
	}

	if event.Content != nil {
		encoded, err := types.EncodeContent(event.Content)
		if err != nil {
			return nil, fmt.Errorf("encode event content: %w", err)
		}
		text, err := encodeJSON(encoded)
		if err != nil {
			return nil, err
		}
		row.content = nullString(text)
	}

	if event.Actions != nil {
		text, err := encodeJSON(event.Actions)
		if err != nil {
			return nil, err
		}
		row.actions = nullString(text)
	}

	if len(event.LongRunningToolIDs) > 0 {
		text, err := encodeJSON(event.LongRunningToolIDs)
		if err != nil {
			return nil, err
		}
		row.longRunningToolIDs = nullString(text)
	}

	if len(event.GroundingMetadata) > 0 {
		text, err := encodeJSON(event.GroundingMetadata)
		if err != nil {
			return nil, err
		}
		row.groundingMetadata = nullString(text)
	}

	return row, nil
}

// toEvent converts the row back to an event, decoding the JSON columns.
func (row *storageEvent) toEvent() (*types.Event, error) {
	event := &types.Event{
		ID:           row.id,
		InvocationID: row.invocationID.String,
		Author:       row.author.String,
		Branch:       row.branch.String,
		Timestamp:    row.timestamp,
		Partial:      row.partial.Bool,
		TurnComplete: row.turnComplete.Bool,
		Interrupted:  row.interrupted.Bool,
		ErrorCode:    row.errorCode.String,
		ErrorMessage: row.errorMessage.String,
	}

	if row.content.Valid {
		var encoded map[string]any
		if err := decodeJSON(row.content.String, &encoded); err != nil {
			return nil, err
		}
		content, err := types.DecodeContent(encoded)
		if err != nil {
			return nil, fmt.Errorf("decode event content: %w", err)
		}
		event.Content = content
	}

	if row.actions.Valid {
		actions := &types.EventActions{}
		if err := decodeJSON(row.actions.String, actions); err != nil {
			return nil, err
		}
		event.Actions = actions
	}

	if row.longRunningToolIDs.Valid {
		if err := decodeJSON(row.longRunningToolIDs.String, &event.LongRunningToolIDs); err != nil {
			return nil, err
		}
	}

	if row.groundingMetadata.Valid {
		if err := decodeJSON(row.groundingMetadata.String, &event.GroundingMetadata); err != nil {
			return nil, err
		}
	}

	return event, nil
}

func encodeJSON(v any) (string, error) {
	bytes, err := sonic.ConfigFastest.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode JSON column: %w", err)
	}
	return string(bytes), nil
}

func decodeJSON(text string, v any) error {
	if err := sonic.ConfigFastest.Unmarshal([]byte(text), v); err != nil {
		return fmt.Errorf("decode JSON column: %w", err)
	}
	return nil
}

func encodeState(state map[string]any) (string, error) {
	if state == nil {
		state = map[string]any{}
	}
	return encodeJSON(state)
}

func decodeState(text string) (map[string]any, error) {
	state := map[string]any{}
	if text == "" {
		return state, nil
	}
	if err := decodeJSON(text, &state); err != nil {
		return nil, err
	}
	return state, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
