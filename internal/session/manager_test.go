// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/itshere/chatsync/internal/model"
)

func TestEstablishAndToken(t *testing.T) {
	m := NewManager()

	if m.IsAuthenticated() {
		t.Error("fresh manager must not be authenticated")
	}
	if m.Token() != "" {
		t.Error("fresh manager must have an empty token")
	}

	m.Establish(model.Identity{Username: "alice"}, "tok123")

	if !m.IsAuthenticated() {
		t.Error("expected authenticated after Establish")
	}
	if m.Token() != "tok123" {
		t.Errorf("token = %q", m.Token())
	}
	if m.User().Username != "alice" {
		t.Errorf("user = %+v", m.User())
	}
}

func TestClearWipesSession(t *testing.T) {
	m := NewManager()
	m.Establish(model.Identity{Username: "alice"}, "tok123")
	m.Clear()

	if m.IsAuthenticated() || m.Token() != "" || !m.User().IsZero() {
		t.Error("Clear must wipe identity and token")
	}
}

func TestIdleTimeout(t *testing.T) {
	m := NewManager().WithIdleTimeout(MinIdleTimeout)
	m.Establish(model.Identity{Username: "alice"}, "tok123")

	if m.Expired() {
		t.Error("fresh session must not be expired")
	}

	// Backdate activity past the timeout.
	m.mu.Lock()
	m.lastActivity = time.Now().Add(-MinIdleTimeout - time.Second)
	m.mu.Unlock()

	if !m.Expired() {
		t.Error("session past idle timeout must be expired")
	}
	if m.IsAuthenticated() {
		t.Error("expired session must not count as authenticated")
	}

	m.Touch()
	if m.Expired() {
		t.Error("Touch must reset the idle clock")
	}
}

func TestSaveAndLoadCredentials(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")

	m := NewManager()
	m.Establish(model.Identity{Username: "alice", DisplayName: "Alice"}, "tok123")
	if err := m.SaveCredentials(path); err != nil {
		t.Fatalf("SaveCredentials: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("credentials perm = %o, want 0600", perm)
	}

	loaded := NewManager()
	if err := loaded.LoadCredentials(path); err != nil {
		t.Fatalf("LoadCredentials: %v", err)
	}
	if loaded.Token() != "tok123" {
		t.Errorf("token = %q", loaded.Token())
	}
	if loaded.User().DisplayName != "Alice" {
		t.Errorf("user = %+v", loaded.User())
	}
}

func TestLoadCredentialsMissingFile(t *testing.T) {
	m := NewManager()
	err := m.LoadCredentials(filepath.Join(t.TempDir(), "nope.json"))
	if !errors.Is(err, ErrNoCredentials) {
		t.Errorf("got %v, want ErrNoCredentials", err)
	}
}

func TestLoadCredentialsRejectsIncomplete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	if err := os.WriteFile(path, []byte(`{"token": ""}`), 0600); err != nil {
		t.Fatal(err)
	}

	if err := NewManager().LoadCredentials(path); err == nil {
		t.Error("incomplete credentials must not load")
	}
}

func TestSaveCredentialsRequiresSession(t *testing.T) {
	if err := NewManager().SaveCredentials(filepath.Join(t.TempDir(), "c.json")); err == nil {
		t.Error("saving an empty session must fail")
	}
}

func TestRemoveCredentials(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	m := NewManager()
	m.Establish(model.Identity{Username: "alice"}, "tok123")
	if err := m.SaveCredentials(path); err != nil {
		t.Fatal(err)
	}

	if err := m.RemoveCredentials(path); err != nil {
		t.Fatalf("RemoveCredentials: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("credentials file still present")
	}

	// Idempotent.
	if err := m.RemoveCredentials(path); err != nil {
		t.Errorf("second remove: %v", err)
	}
}
