// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package pool provides strongly-typed object pooling on top of [sync.Pool],
// with predefined pools for [*bytes.Buffer] and [*strings.Builder].
//
// Objects must be reset before being returned to a pool:
//
//	sb := pool.String.Get()
//	defer func() {
//		sb.Reset()
//		pool.String.Put(sb)
//	}()
package pool
