// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/itshere/chatsync/internal/model"
)

// loginRequest is the POST /api/login body.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// loginResponse is the successful login body.
type loginResponse struct {
	Status string `json:"status"`
	Token  string `json:"token"`
	User   struct {
		Username    string `json:"username"`
		DisplayName string `json:"displayName"`
	} `json:"user"`
}

// Login authenticates against the backend and returns the bearer token and
// resolved identity. Unlike the conversation operations this does not need
// an existing session, so it is a package function rather than a Client
// method.
func Login(ctx context.Context, baseURL, username, password string) (model.Identity, string, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	payload, err := json.Marshal(loginRequest{Username: username, Password: password})
	if err != nil {
		return model.Identity{}, "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		trimTrailingSlash(baseURL)+"/api/login", bytes.NewReader(payload))
	if err != nil {
		return model.Identity{}, "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := sharedHTTPClient.Do(req)
	if err != nil {
		return model.Identity{}, "", fmt.Errorf("login request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := readResponse(resp)
	if err != nil {
		return model.Identity{}, "", err
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return model.Identity{}, "", fmt.Errorf("%w (HTTP %d)", ErrAuthFailed, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return model.Identity{}, "", &APIError{Status: resp.StatusCode, Message: string(bytes.TrimSpace(body))}
	}

	var loginResp loginResponse
	if err := json.Unmarshal(body, &loginResp); err != nil {
		return model.Identity{}, "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if loginResp.Token == "" {
		return model.Identity{}, "", fmt.Errorf("%w: empty token", ErrMalformedResponse)
	}

	user := model.Identity{
		Username:    loginResp.User.Username,
		DisplayName: loginResp.User.DisplayName,
	}
	if user.IsZero() {
		user.Username = username
	}
	return user, loginResp.Token, nil
}
