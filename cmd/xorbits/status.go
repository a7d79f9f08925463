package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

type poolSummaryView struct {
	ProcessIndex    int    `json:"process_index"`
	Label           string `json:"label"`
	ExternalAddress string `json:"external_address"`
	Status          string `json:"status"`
	ActorCount      int    `json:"actor_count"`
}

type poolHealthView struct {
	Timestamp time.Time         `json:"timestamp"`
	Pools     []poolSummaryView `json:"pools"`
}

func newStatusCmd() *cobra.Command {
	var debugURL string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show a running node's actor pool health",
		Long:  "Query a running node's introspection surface for its subpool health.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(debugURL, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&debugURL, "debug-url", "http://127.0.0.1:18080", "base URL of the node's introspection surface")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print raw JSON instead of a formatted table")
	return cmd
}

func runStatus(debugURL string, jsonOutput bool) error {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(debugURL + "/debug/pools")
	if err != nil {
		return fmt.Errorf("query %s: %w", debugURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("query %s: unexpected status %s", debugURL, resp.Status)
	}

	var health poolHealthView
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return fmt.Errorf("decode pool health response: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(health)
	}

	fmt.Printf("%s\n", color.HiBlueString("xorbits actor pool status"))
	fmt.Printf("  as of %s\n\n", health.Timestamp.Format(time.RFC3339))

	if len(health.Pools) == 0 {
		fmt.Println("  no subpools reported")
		return nil
	}

	for _, p := range health.Pools {
		statusColor := color.GreenString
		if p.Status != "running" {
			statusColor = color.RedString
		}
		fmt.Printf("  [%d] %-12s %-22s %-10s actors=%d\n",
			p.ProcessIndex, p.Label, p.ExternalAddress, statusColor(p.Status), p.ActorCount)
	}
	return nil
}
