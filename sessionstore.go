// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package sessionstore provides multi-tenant conversation session storage
// for agent applications, with pluggable in-memory, relational database and
// Vertex AI managed backends.
package sessionstore

// Version is the version of the sessionstore module.
const Version = "0.1.0"
