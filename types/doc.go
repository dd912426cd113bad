// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package types defines the shared data model of the session store: sessions,
// events, the two-phase state container, scope partitioning, and the
// [SessionService] contract implemented by every backend.
package types
