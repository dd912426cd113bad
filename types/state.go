// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package types

import (
	"maps"
	"sync"
)

// Constants for different state key prefixes
const (
	// AppPrefix is the prefix for application state keys
	AppPrefix = "app:"

	// UserPrefix is the prefix for user state keys
	UserPrefix = "user:"

	// TempPrefix is the prefix for temporary state keys
	TempPrefix = "temp:"
)

// State maintains the committed value of a state dictionary and any pending
// delta that hasn't been committed yet.
//
// Reads prefer the pending delta over the committed value, so a writer sees
// its own uncommitted changes. [State.Update] is the single commit boundary:
// it merges a delta into the committed value and clears the pending delta
// atomically.
type State struct {
	// mu protects concurrent access to fields
	mu sync.RWMutex

	// value is the committed value of the state dict
	value map[string]any

	// delta is the pending change to the current value that hasn't been committed
	delta map[string]any
}

// NewState creates a new State with the given value and delta maps.
func NewState(value, delta map[string]any) *State {
	if value == nil {
		value = make(map[string]any)
	}
	if delta == nil {
		delta = make(map[string]any)
	}

	return &State{
		value: value,
		delta: delta,
	}
}

// Get returns the value for the given key, prioritizing delta values
// over the committed values.
func (s *State) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if val, ok := s.delta[key]; ok {
		return val, true
	}

	val, ok := s.value[key]
	return val, ok
}

// GetWithDefault returns the value for the given key, or the default value if
// the key doesn't exist.
func (s *State) GetWithDefault(key string, defaultVal any) any {
	if val, ok := s.Get(key); ok {
		return val
	}
	return defaultVal
}

// Set records a pending value for the given key.
//
// The committed value is untouched until the next [State.Update]; multiple
// Set calls accumulate in the pending delta.
func (s *State) Set(key string, val any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.delta[key] = val
}

// Has reports whether the state contains the given key, committed or pending.
func (s *State) Has(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, inValue := s.value[key]
	_, inDelta := s.delta[key]

	return inValue || inDelta
}

// Delete removes the key from both the committed value and the pending delta.
func (s *State) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.value, key)
	delete(s.delta, key)
}

// HasDelta reports whether there are any pending changes.
func (s *State) HasDelta() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.delta) > 0
}

// Update commits the given delta: it is merged into the committed value and
// the pending delta is cleared. The commit is atomic with respect to all
// other State operations.
func (s *State) Update(update map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	maps.Copy(s.value, update)
	s.delta = make(map[string]any)
}

// ToMap returns a map representation of the state, with pending delta values
// taking precedence over committed values.
func (s *State) ToMap() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]any, len(s.value)+len(s.delta))
	maps.Copy(result, s.value)
	maps.Copy(result, s.delta)

	return result
}

// ClearDelta discards any pending changes without committing them.
func (s *State) ClearDelta() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.delta = make(map[string]any)
}

// GetDelta returns a copy of just the pending changes.
func (s *State) GetDelta() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]any, len(s.delta))
	maps.Copy(result, s.delta)

	return result
}

// GetApp retrieves a value with the app prefix.
func (s *State) GetApp(key string) (any, bool) {
	return s.Get(AppPrefix + key)
}

// SetApp sets a value with the app prefix.
func (s *State) SetApp(key string, val any) {
	s.Set(AppPrefix+key, val)
}

// GetUser retrieves a value with the user prefix.
func (s *State) GetUser(key string) (any, bool) {
	return s.Get(UserPrefix + key)
}

// SetUser sets a value with the user prefix.
func (s *State) SetUser(key string, val any) {
	s.Set(UserPrefix+key, val)
}

// GetTemp retrieves a value with the temp prefix.
func (s *State) GetTemp(key string) (any, bool) {
	return s.Get(TempPrefix + key)
}

// SetTemp sets a value with the temp prefix.
func (s *State) SetTemp(key string, val any) {
	s.Set(TempPrefix+key, val)
}
