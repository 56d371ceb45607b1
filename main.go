// chatsync - command line chat client for the ItsHere lost-and-found app.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/peterh/liner"

	"github.com/itshere/chatsync/internal/api"
	"github.com/itshere/chatsync/internal/config"
	"github.com/itshere/chatsync/internal/engine"
	"github.com/itshere/chatsync/internal/model"
	"github.com/itshere/chatsync/internal/session"
	"github.com/itshere/chatsync/internal/store"
	"github.com/itshere/chatsync/internal/util"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
)

// =============================================================================
// STYLES
// =============================================================================

var (
	styleMine = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")).
			Bold(true)

	stylePeer = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	stylePending = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8")).
			Italic(true)

	styleFailed = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)

	styleTime = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))

	styleInfo = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))
)

const maxLineWidth = 100

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
		if cfg == nil {
			cfg = config.Default()
		}
	}
	config.SetGlobal(cfg)

	switch os.Args[1] {
	case "login":
		handleLogin(cfg, os.Args[2:])
	case "logout":
		handleLogout(cfg)
	case "chat":
		handleChat(cfg, os.Args[2:])
	case "status":
		handleStatus(cfg)
	case "version":
		fmt.Printf("chatsync %s (%s)\n", Version, GitCommit)
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `chatsync - ItsHere chat client

Usage:
  chatsync login <username>   Log in and save the session
  chatsync logout             Remove the saved session
  chatsync chat <username>    Open a conversation with a user
  chatsync status             Show session and server status
  chatsync version            Show version information`)
}

// =============================================================================
// COMMAND HANDLERS
// =============================================================================

func handleLogin(cfg *config.Config, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "Usage: chatsync login <username>")
		os.Exit(1)
	}
	username := args[0]

	line := liner.NewLiner()
	password, err := line.PasswordPrompt("Password: ")
	line.Close()
	if err != nil {
		fatal(err)
	}

	user, token, err := api.Login(context.Background(), cfg.Server.BaseURL, username, password)
	if err != nil {
		fatal(err)
	}

	mgr := session.NewManager()
	mgr.Establish(user, token)

	credsPath, err := cfg.CredentialsPath()
	if err != nil {
		fatal(err)
	}
	if err := mgr.SaveCredentials(credsPath); err != nil {
		fatal(err)
	}
	fmt.Printf("Logged in as %s\n", user.Label())
}

func handleLogout(cfg *config.Config) {
	credsPath, err := cfg.CredentialsPath()
	if err != nil {
		fatal(err)
	}
	if err := session.NewManager().RemoveCredentials(credsPath); err != nil {
		fatal(err)
	}
	fmt.Println("Logged out")
}

func handleStatus(cfg *config.Config) {
	fmt.Printf("Server:  %s\n", cfg.Server.BaseURL)

	mgr, err := loadSession(cfg)
	if err != nil {
		fmt.Println("Session: not logged in")
		return
	}
	fmt.Printf("Session: %s\n", mgr.User().Label())
	fmt.Printf("Idle:    %v\n", mgr.IdleTime().Round(time.Second))
}

func handleChat(cfg *config.Config, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "Usage: chatsync chat <username>")
		os.Exit(1)
	}
	peer := args[0]

	mgr, err := loadSession(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Not logged in. Run: chatsync login <username>")
		os.Exit(1)
	}
	mgr.WithIdleTimeout(cfg.IdleTimeout())

	// Quiet the ambient request logging while the transcript is on screen.
	logFile := openLogFile()
	if logFile != nil {
		log.SetOutput(logFile)
		defer logFile.Close()
	}

	client := api.NewClient(cfg.Server.BaseURL, mgr).
		WithTimeout(cfg.RequestTimeout())

	st := store.New(peer)
	eng := engine.New(peer, st, client, mgr.User()).
		WithInterval(cfg.PollInterval())
	coord := engine.NewCoordinator(eng)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer eng.Close()

	// Reload-sensitive settings propagate without restarting the chat.
	if path, err := config.ConfigPath(); err == nil {
		if w, err := config.NewWatcher(path, func(c *config.Config) {
			eng.WithInterval(c.PollInterval())
		}); err == nil {
			if err := w.Watch(); err == nil {
				defer w.Close()
			}
		}
	}

	if err := eng.FetchAll(ctx); err != nil {
		if errors.Is(err, api.ErrAuthFailed) {
			fmt.Fprintln(os.Stderr, "Session expired. Run: chatsync login <username>")
			os.Exit(1)
		}
		fatal(err)
	}
	go eng.Start(ctx)

	runChatLoop(ctx, mgr, eng, coord, peer)
}

// =============================================================================
// CHAT LOOP
// =============================================================================

func runChatLoop(ctx context.Context, mgr *session.Manager, eng *engine.Engine, coord *engine.Coordinator, peer string) {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	fmt.Println(styleInfo.Render(fmt.Sprintf("Chatting with %s. Enter sends, blank line refreshes, /help for commands.", peer)))
	lastShown := eng.Snapshot()
	render(lastShown, mgr.User().Username, nil)

	for {
		if mgr.Expired() {
			fmt.Println(styleInfo.Render("Session idle timeout reached; exiting."))
			return
		}

		input, err := line.Prompt("> ")
		if err != nil {
			// Ctrl-C or EOF ends the chat.
			return
		}
		mgr.Touch()

		switch {
		case strings.TrimSpace(input) == "":
			snap := eng.Snapshot()
			render(snap, mgr.User().Username, lastShown)
			lastShown = snap
			continue

		case strings.HasPrefix(input, "/"):
			if quit := handleCommand(ctx, input, eng, coord, mgr.User().Username); quit {
				return
			}
			continue
		}

		if _, err := coord.Send(ctx, input); err != nil {
			if errors.Is(err, api.ErrAuthFailed) || errors.Is(err, api.ErrAuthMissing) {
				fmt.Println(styleFailed.Render("Authentication failed; run chatsync login again."))
				return
			}
			fmt.Println(styleFailed.Render("Send failed, kept for retry: " + err.Error()))
		}
		snap := eng.Snapshot()
		render(snap, mgr.User().Username, lastShown)
		lastShown = snap
	}
}

// handleCommand executes a slash command. Returns true to quit the chat.
func handleCommand(ctx context.Context, input string, eng *engine.Engine, coord *engine.Coordinator, me string) bool {
	fields := strings.Fields(input)
	switch fields[0] {
	case "/quit", "/q", "/exit":
		return true

	case "/refresh":
		if err := eng.FetchAll(ctx); err != nil {
			fmt.Println(styleFailed.Render("Refresh failed: " + err.Error()))
		}
		render(eng.Snapshot(), me, nil)

	case "/retry":
		if len(fields) != 2 {
			fmt.Println(styleInfo.Render("Usage: /retry <message-id>"))
			return false
		}
		if _, err := coord.Resend(ctx, fields[1]); err != nil {
			fmt.Println(styleFailed.Render("Retry failed: " + err.Error()))
		}
		render(eng.Snapshot(), me, nil)

	case "/help":
		fmt.Println(styleInfo.Render("Commands: /refresh  /retry <message-id>  /quit"))

	default:
		fmt.Println(styleInfo.Render("Unknown command; /help lists commands."))
	}
	return false
}

// =============================================================================
// RENDERING
// =============================================================================

// render prints the conversation transcript. When prev is non-nil only
// messages beyond the previously shown view are printed, so a refresh does
// not repeat the whole scrollback.
func render(msgs []model.Message, me string, prev []model.Message) {
	start := 0
	if prev != nil && len(prev) <= len(msgs) && sameView(prev, msgs[:len(prev)]) {
		start = len(prev)
	}
	if start == len(msgs) && prev != nil {
		return
	}

	for _, m := range msgs[start:] {
		fmt.Println(formatMessage(m, me))
	}
}

// sameView reports whether two ordered views show the same entries.
func sameView(a, b []model.Message) bool {
	for i := range a {
		if a[i].ID != b[i].ID || a[i].Origin != b[i].Origin {
			return false
		}
	}
	return true
}

func formatMessage(m model.Message, me string) string {
	ts := styleTime.Render(m.SentAt.Local().Format("15:04"))
	content := util.TruncateDisplay(m.Content, maxLineWidth)

	switch {
	case m.IsFailed():
		return fmt.Sprintf("%s %s %s", ts,
			styleFailed.Render(m.Sender+" (failed, /retry "+m.ID+"):"), content)
	case m.IsPending():
		return fmt.Sprintf("%s %s %s", ts,
			stylePending.Render(m.Sender+" (sending):"), stylePending.Render(content))
	case m.Sender == me:
		return fmt.Sprintf("%s %s %s", ts, styleMine.Render(m.Sender+":"), content)
	default:
		return fmt.Sprintf("%s %s %s", ts, stylePeer.Render(m.Sender+":"), content)
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func loadSession(cfg *config.Config) (*session.Manager, error) {
	credsPath, err := cfg.CredentialsPath()
	if err != nil {
		return nil, err
	}
	mgr := session.NewManager()
	if err := mgr.LoadCredentials(credsPath); err != nil {
		return nil, err
	}
	return mgr, nil
}

// openLogFile routes ambient logging to ~/.itshere/chatsync.log so it does
// not interleave with the transcript. Returns nil when unavailable.
func openLogFile() *os.File {
	dir, err := config.ConfigDir()
	if err != nil {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil
	}
	f, err := os.OpenFile(dir+"/chatsync.log", os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return nil
	}
	return f
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
