package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the service's lifecycle state and configuration",
	RunE:  runStatus,
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the models visible through the router",
	RunE:  runModels,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(modelsCmd)
}

type statusReply struct {
	State            string   `json:"state"`
	HeartbeatMode    string   `json:"heartbeat_mode"`
	UptimeSeconds    int64    `json:"uptime_seconds"`
	ConfiguredModels []string `json:"configured_models"`
	AvailableModels  []string `json:"available_models"`
	Metrics          struct {
		RequestsHandled int64 `json:"requests_handled"`
	} `json:"metrics"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
	var reply statusReply
	if err := getJSON("/status", &reply); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "State:             %s\n", reply.State)
	fmt.Fprintf(out, "Heartbeat mode:    %s\n", reply.HeartbeatMode)
	fmt.Fprintf(out, "Uptime:            %ds\n", reply.UptimeSeconds)
	fmt.Fprintf(out, "Requests handled:  %d\n", reply.Metrics.RequestsHandled)
	fmt.Fprintf(out, "Configured models: %s\n", strings.Join(reply.ConfiguredModels, ", "))
	fmt.Fprintf(out, "Available models:  %s\n", strings.Join(reply.AvailableModels, ", "))
	return nil
}

func runModels(cmd *cobra.Command, _ []string) error {
	var reply statusReply
	if err := getJSON("/status", &reply); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(reply.AvailableModels) == 0 {
		fmt.Fprintln(out, "no models reported by the router")
		return nil
	}
	for _, m := range reply.AvailableModels {
		fmt.Fprintln(out, m)
	}
	return nil
}
