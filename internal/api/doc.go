// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api provides the HTTP client for the ItsHere chat backend.
//
// The backend exposes one conversation resource per peer username:
//
//	GET  /api/chat/{key}                   full message history
//	GET  /api/chat/{key}?since=<RFC3339>   messages sent strictly after since
//	POST /api/chat/{key}                   send a message, echoes the created one
//
// All calls carry the session bearer token; a missing token fails fast with
// ErrAuthMissing before any network activity. Transient GET failures are
// retried with exponential backoff; POST is never retried so a flaky network
// cannot double-send a message.
package api
