// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package types

import "strings"

// DeltaSet is a flat state delta partitioned by scope.
//
// Every key of the input delta lands in exactly one partition; temp:-prefixed
// keys are dropped during partitioning and appear nowhere.
type DeltaSet struct {
	// App holds app:-prefixed entries, with the prefix stripped.
	App map[string]any

	// User holds user:-prefixed entries, with the prefix stripped.
	User map[string]any

	// Session holds the unprefixed, session-local entries.
	Session map[string]any
}

// IsZero reports whether no partition carries any entries.
func (d DeltaSet) IsZero() bool {
	return len(d.App) == 0 && len(d.User) == 0 && len(d.Session) == 0
}

// SplitDelta partitions a flat state delta by key prefix.
//
// app:-prefixed keys route to the app partition and user:-prefixed keys to
// the user partition, both with the prefix stripped. temp:-prefixed keys are
// discarded. All remaining keys are session-local.
func SplitDelta(delta map[string]any) DeltaSet {
	ds := DeltaSet{
		App:     make(map[string]any),
		User:    make(map[string]any),
		Session: make(map[string]any),
	}

	for key, value := range delta {
		switch {
		case strings.HasPrefix(key, AppPrefix):
			ds.App[strings.TrimPrefix(key, AppPrefix)] = value
		case strings.HasPrefix(key, UserPrefix):
			ds.User[strings.TrimPrefix(key, UserPrefix)] = value
		case strings.HasPrefix(key, TempPrefix):
			// ephemeral, never persisted
		default:
			ds.Session[key] = value
		}
	}

	return ds
}

// MergeState builds the effective session state view from the three scope
// layers: session-local entries as-is, app and user entries re-prefixed.
func MergeState(appState, userState, sessionState map[string]any) map[string]any {
	merged := make(map[string]any, len(sessionState)+len(appState)+len(userState))

	for key, value := range sessionState {
		merged[key] = value
	}
	for key, value := range appState {
		merged[AppPrefix+key] = value
	}
	for key, value := range userState {
		merged[UserPrefix+key] = value
	}

	return merged
}
