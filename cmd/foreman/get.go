package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var getAddr string

var getCmd = &cobra.Command{
	Use:   "get <job-id>",
	Short: "Fetch a job's current status and result",
	Args:  cobra.ExactArgs(1),
	RunE:  runGet,
}

func init() {
	getCmd.Flags().StringVar(&getAddr, "addr", "http://127.0.0.1:8080", "Acceptor HTTP address")
}

func runGet(cmd *cobra.Command, args []string) error {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(getAddr + "/jobs/" + args[0])
	if err != nil {
		return fmt.Errorf("get job: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("job %s not found", args[0])
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("acceptor returned %s", resp.Status)
	}

	var pretty map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&pretty); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(pretty)
}
