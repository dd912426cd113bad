// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package types

import (
	rand "math/rand/v2"
	"time"
	"unsafe"

	"google.golang.org/genai"
)

// Event represents an event in a conversation between agents and users.
//
// It stores the content of the conversation as well as the actions taken by
// the agents, like state changes and control signals. A committed event is
// immutable; an event with Partial set is a streaming fragment that never
// reaches durable storage.
type Event struct {
	// ID is the unique identifier of the event.
	//
	// ReadOnly. It will be assigned by the session layer.
	ID string

	// InvocationID is the invocation ID of the event.
	InvocationID string

	// Author is the 'user' or the name of the agent, indicating who appended the event to the session.
	Author string

	// Branch is the branch of the event.
	//
	// The format is like agent_1.agent_2.agent_3, where agent_1 is the parent of
	// agent_2, and agent_2 is the parent of agent_3.
	//
	// Branch is used when multiple sub-agent shouldn't see their peer agents'
	// conversation history.
	Branch string

	// Content is the content of the event.
	Content *genai.Content

	// Actions is the actions taken by the agent.
	Actions *EventActions

	// LongRunningToolIDs is the ids of the long running function calls.
	//
	// The agent client will know from this field which function call is long
	// running. Only valid for function call events.
	LongRunningToolIDs []string

	// GroundingMetadata carries grounding attribution for the content, if any.
	GroundingMetadata map[string]any

	// Partial indicates whether the event is a streaming fragment.
	//
	// Partial events are kept in the in-process event list only; they are
	// never persisted and their state delta is never committed.
	Partial bool

	// TurnComplete indicates whether this event finishes a conversation turn.
	TurnComplete bool

	// Interrupted indicates whether the generation was interrupted.
	Interrupted bool

	// ErrorCode is set when the event reports a failure.
	ErrorCode string

	// ErrorMessage describes the failure, if any.
	ErrorMessage string

	// Timestamp is the timestamp of the event.
	//
	// ReadOnly. It will be assigned by the session layer.
	Timestamp time.Time
}

// NewEvent creates a new event with a unique ID and timestamp.
func NewEvent() *Event {
	return &Event{
		ID:        NewEventID(),
		Actions:   NewEventActions(),
		Timestamp: time.Now(),
	}
}

// WithContent sets the content of the event.
func (e *Event) WithContent(content *genai.Content) *Event {
	e.Content = content
	return e
}

// WithInvocationID sets the invocation ID of the event.
func (e *Event) WithInvocationID(id string) *Event {
	e.InvocationID = id
	return e
}

// WithAuthor sets the author of the event.
func (e *Event) WithAuthor(author string) *Event {
	e.Author = author
	return e
}

// WithActions sets the actions of the event.
func (e *Event) WithActions(actions *EventActions) *Event {
	e.Actions = actions
	return e
}

// WithBranch sets the branch of the event.
func (e *Event) WithBranch(branch string) *Event {
	e.Branch = branch
	return e
}

// WithLongRunningToolIDs sets the long running tool IDs of the event.
func (e *Event) WithLongRunningToolIDs(ids ...string) *Event {
	e.LongRunningToolIDs = append(e.LongRunningToolIDs, ids...)
	return e
}

// WithPartial marks the event as a streaming fragment.
func (e *Event) WithPartial(partial bool) *Event {
	e.Partial = partial
	return e
}

// StateDelta returns the state delta attached to the event, or nil.
func (e *Event) StateDelta() map[string]any {
	if e.Actions == nil {
		return nil
	}
	return e.Actions.StateDelta
}

const (
	letterBytes   = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	letterIdxBits = 6                    // 6 bits to represent a letter index
	letterIdxMask = 1<<letterIdxBits - 1 // All 1-bits, as many as letterIdxBits
	letterIdxMax  = 63 / letterIdxBits   // # of letter indices fitting in 63 bits
)

// NewEventID returns a random 8-character alphanumeric event identifier.
func NewEventID() string {
	b := make([]byte, 8)
	for i, cache, remain := 8-1, rand.Int64(), letterIdxMax; i >= 0; {
		if remain == 0 {
			cache = rand.Int64()
			remain = letterIdxMax
		}
		if idx := int(cache & letterIdxMask); idx < len(letterBytes) {
			b[i] = letterBytes[idx]
			i--
		}
		cache >>= letterIdxBits
		remain--
	}

	return *(*string)(unsafe.Pointer(&b))
}
