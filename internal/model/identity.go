// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for chat messages and user identity.
package model

// Identity is the typed record of the authenticated user. It is resolved
// once at login time and threaded explicitly through the engine, instead of
// being re-derived from ambient storage on every operation.
type Identity struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name,omitempty"`
}

// IsZero returns true if no user has been established.
func (i Identity) IsZero() bool {
	return i.Username == ""
}

// Label returns the name to show in the UI, falling back to the username.
func (i Identity) Label() string {
	if i.DisplayName != "" {
		return i.DisplayName
	}
	return i.Username
}
