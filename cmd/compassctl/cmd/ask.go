package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"
)

var (
	askFormat string
	askModels []string
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Put a single question to the jury",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&askFormat, "format", "f", "json",
		"output format (json, markdown, twitter, jsonld)")
	askCmd.Flags().StringSliceVarP(&askModels, "model", "m", nil,
		"override the jury panel (repeatable)")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	body := map[string]any{
		"question": strings.Join(args, " "),
		"format":   askFormat,
	}
	if len(askModels) > 0 {
		body["models"] = askModels
	}

	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, baseURL+"/query", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if sessionID != "" {
		req.Header.Set("X-Session-Id", sessionID)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return serviceError(resp.StatusCode, raw)
	}

	if askFormat == "json" || askFormat == "" {
		var pretty bytes.Buffer
		if err := json.Indent(&pretty, raw, "", "  "); err == nil {
			raw = pretty.Bytes()
		}
	}
	fmt.Fprintln(cmd.OutOrStdout(), strings.TrimRight(string(raw), "\n"))
	return nil
}
