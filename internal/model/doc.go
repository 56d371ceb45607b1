// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for chat messages and user identity.
//
// This package defines the core domain types used throughout the sync engine
// for representing direct messages, their confirmation state, and the
// authenticated user.
//
// # Key Types
//
//   - Message: Single direct message with sender, content, timestamp and origin
//   - Origin: Confirmation state enumeration (confirmed, pending, failed)
//   - Identity: Typed record of the current user, resolved once at login
//
// # Usage
//
// Build an optimistic local message before the server has seen it:
//
//	msg := model.NewPendingMessage("bob", me, "hello")
//
// Check whether a message id is a client-side temporary id:
//
//	if model.IsTempID(msg.ID) { ... }
package model
