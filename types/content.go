// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package types

import (
	"github.com/bytedance/sonic"
	"google.golang.org/genai"
)

// EncodeContent encodes a Content object to a JSON dictionary suitable for
// storage.
//
// Binary inline data is carried as a base64 string inside the dictionary, so
// the result is safe to embed in a JSON column.
func EncodeContent(content *genai.Content) (map[string]any, error) {
	if content == nil {
		return nil, nil
	}

	bytes, err := sonic.ConfigFastest.Marshal(content)
	if err != nil {
		return nil, err
	}

	var result map[string]any
	if err := sonic.ConfigFastest.Unmarshal(bytes, &result); err != nil {
		return nil, err
	}

	return result, nil
}

// DecodeContent decodes a Content object from a stored JSON dictionary.
//
// Base64 inline data is decoded back into raw bytes; DecodeContent is the
// exact inverse of [EncodeContent].
func DecodeContent(content map[string]any) (*genai.Content, error) {
	if content == nil {
		return nil, nil
	}

	bytes, err := sonic.ConfigFastest.Marshal(content)
	if err != nil {
		return nil, err
	}

	var result genai.Content
	if err := sonic.ConfigFastest.Unmarshal(bytes, &result); err != nil {
		return nil, err
	}

	return &result, nil
}
