// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session manages the authenticated user session for the chat
// client.
//
// The session is established once at login and threaded explicitly into
// the API client and sync engine. There is exactly one canonical token;
// nothing else in the codebase reads credentials from ambient storage, so
// a logged-in user can never present different tokens to different
// operations.
//
// # Key Types
//
//   - Manager: Holds the current identity and bearer token
//   - Credentials: On-disk persisted form of a session
//
// # Usage
//
//	mgr := session.NewManager()
//	if err := mgr.LoadCredentials(path); err != nil { ... }
//	client := api.NewClient(baseURL, mgr)
//
// Manager implements api.TokenSource.
package session
