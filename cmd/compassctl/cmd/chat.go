package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/peterh/liner"
	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive chat with the jury",
	Long: `Starts a REPL against /api/chat. Each turn goes to the full jury panel;
the session id keeps conversational memory across turns. Type /quit to leave.`,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

type chatReply struct {
	Response       string   `json:"response"`
	Verdict        string   `json:"verdict"`
	Confidence     string   `json:"confidence"`
	AgreementScore float64  `json:"agreement_score"`
	FailedModels   []string `json:"failed_models"`
	SessionID      string   `json:"session_id"`
}

func runChat(cmd *cobra.Command, _ []string) error {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "compass chat — session %s (type /quit to exit)\n", sessionID)

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	for {
		input, err := line.Prompt("you> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Fprintln(out, "bye")
				return nil
			}
			return err
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if input == "/quit" || input == "/exit" {
			fmt.Fprintln(out, "bye")
			return nil
		}
		line.AppendHistory(input)

		var reply chatReply
		if err := postJSON("/api/chat", map[string]any{"message": input}, &reply); err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}

		fmt.Fprintf(out, "jury> %s\n", reply.Response)
		fmt.Fprintf(out, "      [%s, %s confidence, score %.2f]\n",
			reply.Verdict, reply.Confidence, reply.AgreementScore)
		if len(reply.FailedModels) > 0 {
			fmt.Fprintf(out, "      [failed: %s]\n", strings.Join(reply.FailedModels, ", "))
		}
	}
}
