package main

import (
	"fmt"
	"os"
	"strings"

	markdown "github.com/MichaelMure/go-term-markdown"
	"github.com/spf13/cobra"

	"otto/internal/orchestrator"
)

func newChatCmd() *cobra.Command {
	var searchMode string
	var sessionID string

	cmd := &cobra.Command{
		Use:   "chat <message>",
		Short: "Send one message through the chat path",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := buildContainer(configPath, false)
			if err != nil {
				return exitErr(exitUnavailable, err)
			}

			result, err := container.Orchestrator.Chat(cmd.Context(), orchestrator.ChatRequest{
				Message:    strings.Join(args, " "),
				SessionID:  sessionID,
				SearchMode: searchMode,
			})
			if err != nil {
				return err
			}

			os.Stdout.Write(markdown.Render(result.Response, renderWidth, 0))
			fmt.Println()
			return nil
		},
	}
	cmd.Flags().StringVar(&searchMode, "search", "", "force search mode: web or deep")
	cmd.Flags().StringVar(&sessionID, "session", "", "session id for conversational memory")
	return cmd
}
