package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/loom-engine/loom/internal/branch"
	"github.com/loom-engine/loom/internal/config"
	"github.com/loom-engine/loom/internal/event"
	"github.com/loom-engine/loom/pkg/types"
)

var (
	chatSessionID string
	chatAgentID   string
	chatOneShot   string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with an agent from the terminal",
	Long: `Open (or resume) a session and converse from the terminal. Responses
stream as they arrive. Without --message an interactive loop starts;
'/undo', '/redo', '/tree' and '/quit' are available inside it.`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatSessionID, "session", "s", "", "Resume an existing session id")
	chatCmd.Flags().StringVarP(&chatAgentID, "agent", "a", "", "Agent to chat with (default: assistant)")
	chatCmd.Flags().StringVarP(&chatOneShot, "message", "m", "", "Send one message and exit")
}

func runChat(cmd *cobra.Command, args []string) error {
	paths := config.GetPaths()
	if err := paths.EnsurePaths(); err != nil {
		return fmt.Errorf("prepare data directories: %w", err)
	}

	ctx := cmd.Context()
	eng, err := buildEngine(ctx)
	if err != nil {
		return err
	}

	var session *types.Session
	if chatSessionID != "" {
		session, err = eng.service.GetSession(ctx, chatSessionID)
	} else {
		session, err = eng.service.CreateSession(ctx, chatAgentID)
	}
	if err != nil {
		return err
	}
	fmt.Printf("session %s\n", session.ID)

	// Mirror streaming deltas to the terminal as they flush.
	printed := 0
	unsub := event.Subscribe(event.StreamDelta, func(e event.Event) {
		data, ok := e.Data.(event.StreamDeltaData)
		if !ok || data.SessionID != session.ID {
			return
		}
		if len(data.Content) > printed {
			fmt.Print(data.Content[printed:])
			printed = len(data.Content)
		}
	})
	defer unsub()

	send := func(text string) error {
		printed = 0
		if err := eng.service.SendMessage(ctx, session.ID, text, nil); err != nil {
			return err
		}
		leaf := session.Nodes[session.ActiveLeafID]
		if leaf != nil {
			if len(leaf.Content) > printed {
				fmt.Print(leaf.Content[printed:])
			}
			if leaf.Status == types.StatusError {
				fmt.Fprintf(os.Stderr, "\nerror: %s\n", leaf.Metadata.Error)
			}
		}
		fmt.Println()
		return nil
	}

	if chatOneShot != "" {
		return send(chatOneShot)
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit" || line == "/exit":
			return nil
		case line == "/undo":
			if err := eng.service.Undo(ctx, session.ID); err != nil {
				fmt.Fprintf(os.Stderr, "undo: %v\n", err)
			}
		case line == "/redo":
			if err := eng.service.Redo(ctx, session.ID); err != nil {
				fmt.Fprintf(os.Stderr, "redo: %v\n", err)
			}
		case line == "/tree":
			printActivePath(session)
		default:
			if err := send(line); err != nil {
				fmt.Fprintf(os.Stderr, "send: %v\n", err)
			}
		}
	}
}

func printActivePath(session *types.Session) {
	path, err := branch.ActivePath(session)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tree: %v\n", err)
		return
	}
	for _, n := range path {
		preview := n.Content
		if len(preview) > 60 {
			preview = preview[:60] + "…"
		}
		marker := " "
		if n.ID == session.ActiveLeafID {
			marker = "*"
		}
		fmt.Printf("%s %-9s %s  %s\n", marker, n.Role, n.ID, strings.ReplaceAll(preview, "\n", " "))
	}
}
