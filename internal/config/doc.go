// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for the
// chatsync client.
//
// Configuration comes from ~/.itshere/config.toml with built-in defaults
// and environment variable overrides. A lightweight file watcher can
// reload the config on edit without restarting the client.
//
// # Key Types
//
//   - Config: The complete client configuration
//   - Watcher: fsnotify-based config reload on file change
//
// # Environment Variables
//
//   - ITSHERE_SERVER_URL: overrides server.base_url
//   - ITSHERE_POLL_INTERVAL: overrides sync.poll_interval_secs
//   - ITSHERE_CREDENTIALS: overrides session.credentials_path
package config
