// Package cmd implements the compassctl command tree.
package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	baseURL   string
	sessionID string

	appVersion = "dev"
	appCommit  = "none"
)

var rootCmd = &cobra.Command{
	Use:   "compassctl",
	Short: "Client for a running compass jury service",
	Long: `compassctl talks to a compass instance over HTTP: one-shot questions,
an interactive chat session, and service status.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func SetVersion(version, commit string) {
	appVersion = version
	appCommit = commit
	rootCmd.Version = fmt.Sprintf("%s (%s)", version, commit)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url",
		getEnv("BASE_URL", "http://localhost:8080"), "compass service base URL")
	rootCmd.PersistentFlags().StringVar(&sessionID, "session", "",
		"session id for conversational memory")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

var httpClient = &http.Client{Timeout: 5 * time.Minute}

// postJSON sends a request body and decodes the response into out. A non-2xx
// status becomes an error carrying the service's error body.
func postJSON(path string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, baseURL+path, bytes.NewReader(data))
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
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func getJSON(path string, out any) error {
	resp, err := httpClient.Get(baseURL + path)
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
	return json.Unmarshal(raw, out)
}

func serviceError(status int, raw []byte) error {
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Error.Code != "" {
		return fmt.Errorf("%s: %s", body.Error.Code, body.Error.Message)
	}
	return fmt.Errorf("HTTP %d: %s", status, string(raw))
}
