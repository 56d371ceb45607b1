// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session manages the authenticated user session for the chat client.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/itshere/chatsync/internal/model"
	"github.com/itshere/chatsync/internal/util"
)

// Session timeout constants.
const (
	// DefaultIdleTimeout logs the session out after this much inactivity.
	DefaultIdleTimeout = 30 * time.Minute

	// MinIdleTimeout is the minimum allowed idle timeout.
	MinIdleTimeout = 5 * time.Minute
)

// ErrNoCredentials indicates no saved credentials file exists; the user
// must log in before opening a conversation.
var ErrNoCredentials = errors.New("no saved credentials")

// Credentials is the persisted form of a session.
type Credentials struct {
	Token string         `json:"token"`
	User  model.Identity `json:"user"`
}

// =============================================================================
// SESSION MANAGER
// =============================================================================

// Manager holds the single authenticated session for the running client.
// Safe for concurrent use; the engine and the UI read it from different
// goroutines. Implements api.TokenSource.
type Manager struct {
	mu sync.RWMutex

	token        string
	user         model.Identity
	startTime    time.Time
	lastActivity time.Time
	timeout      time.Duration
}

// NewManager creates an empty, unauthenticated manager.
func NewManager() *Manager {
	return &Manager{timeout: DefaultIdleTimeout}
}

// WithIdleTimeout sets the inactivity timeout, clamped to the minimum.
func (m *Manager) WithIdleTimeout(d time.Duration) *Manager {
	if d < MinIdleTimeout {
		log.Printf("session: idle timeout %v below minimum, using %v", d, MinIdleTimeout)
		d = MinIdleTimeout
	}
	m.mu.Lock()
	m.timeout = d
	m.mu.Unlock()
	return m
}

// Establish installs the authenticated identity and its bearer token.
func (m *Manager) Establish(user model.Identity, token string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	m.user = user
	m.token = token
	m.startTime = now
	m.lastActivity = now
	log.Printf("session established for %q", user.Username)
}

// Token returns the current bearer token, empty when unauthenticated.
func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token
}

// User returns the authenticated identity, zero when unauthenticated.
func (m *Manager) User() model.Identity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.user
}

// IsAuthenticated reports whether a non-expired session is present.
func (m *Manager) IsAuthenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token != "" && !m.expiredLocked()
}

// Touch records user activity, deferring the idle timeout.
func (m *Manager) Touch() {
	m.mu.Lock()
	m.lastActivity = time.Now()
	m.mu.Unlock()
}

// IdleTime returns how long the session has been inactive.
func (m *Manager) IdleTime() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.lastActivity.IsZero() {
		return 0
	}
	return time.Since(m.lastActivity)
}

// Expired reports whether the idle timeout has elapsed.
func (m *Manager) Expired() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.expiredLocked()
}

func (m *Manager) expiredLocked() bool {
	if m.lastActivity.IsZero() {
		return false
	}
	return time.Since(m.lastActivity) >= m.timeout
}

// Clear wipes the in-memory session. The credentials file is untouched;
// use RemoveCredentials for a full logout.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.token = ""
	m.user = model.Identity{}
	m.startTime = time.Time{}
	m.lastActivity = time.Time{}
	log.Printf("session cleared")
}

// =============================================================================
// PERSISTENCE
// =============================================================================

// LoadCredentials reads a saved session from path and establishes it.
// Returns ErrNoCredentials when the file does not exist.
func (m *Manager) LoadCredentials(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNoCredentials
		}
		return fmt.Errorf("failed to read credentials: %w", err)
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return fmt.Errorf("failed to parse credentials: %w", err)
	}
	if creds.Token == "" || creds.User.IsZero() {
		return fmt.Errorf("credentials file %s is incomplete", path)
	}

	m.Establish(creds.User, creds.Token)
	return nil
}

// SaveCredentials persists the current session to path.
//
// SECURITY: Written 0600 via atomic rename; the token never transits a
// world-readable temp file.
func (m *Manager) SaveCredentials(path string) error {
	m.mu.RLock()
	creds := Credentials{Token: m.token, User: m.user}
	m.mu.RUnlock()

	if creds.Token == "" {
		return errors.New("no session to save")
	}

	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}
	return util.AtomicWriteFile(path, data, 0600)
}

// RemoveCredentials deletes the saved credentials file. Missing files are
// not an error.
func (m *Manager) RemoveCredentials(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove credentials: %w", err)
	}
	return nil
}
