package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var (
	submitAddr    string
	submitImage   string
	submitScript  string
	submitRetries int
)

var submitCmd = &cobra.Command{
	Use:   "submit [command...]",
	Short: "Submit a job to a running foreman acceptor",
	RunE:  runSubmit,
}

func init() {
	submitCmd.Flags().StringVar(&submitAddr, "addr", "http://127.0.0.1:8080", "Acceptor HTTP address")
	submitCmd.Flags().StringVar(&submitImage, "image", "", "Container image to run (required)")
	submitCmd.Flags().StringVar(&submitScript, "script", "", "Python script, fed to `python -` on stdin, to run instead of a command")
	submitCmd.Flags().IntVar(&submitRetries, "max-retries", 0, "Maximum retry count (0 = server default)")
	_ = submitCmd.MarkFlagRequired("image")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	body, err := json.Marshal(map[string]any{
		"image":       submitImage,
		"command":     args,
		"script":      submitScript,
		"max_retries": submitRetries,
	})
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post(submitAddr+"/jobs", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("submit job: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("acceptor rejected job: %s", resp.Status)
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	fmt.Println(out.ID)
	return nil
}
