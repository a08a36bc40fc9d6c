package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ridgeline/foreman/pkg/storage"
	"github.com/ridgeline/foreman/pkg/types"
)

// Client is the worker-side view of the Job Store: every job-state
// transition a worker makes is an HTTP call back to a serve replica, the
// same process that the scheduler and reconciler run inside of. Workers
// never open the Job Store's BoltDB file themselves: bbolt takes an
// exclusive per-process file lock, so two processes cannot share it, and a
// separate file per process would give the worker a job row the scheduler
// and reconciler never see.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a Client that talks to the serve replica at baseURL
// (e.g. "http://127.0.0.1:8080").
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// GetJob fetches the current state of job id.
func (c *Client) GetJob(ctx context.Context, id string) (*types.Job, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/jobs/"+id, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, storage.ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get job %s: unexpected status %d", id, resp.StatusCode)
	}

	var job types.Job
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}
	return &job, nil
}

// StartJob transitions job id from QUEUED to RUNNING.
func (c *Client) StartJob(ctx context.Context, id string) (bool, error) {
	var out startResponse
	if err := c.post(ctx, "/internal/jobs/"+id+"/start", nil, &out); err != nil {
		return false, err
	}
	return out.Started, nil
}

// CompleteJob transitions job id to a terminal status with the given
// result, capped and stored by the serve replica that receives it.
func (c *Client) CompleteJob(ctx context.Context, id string, status types.Status, result string) (bool, error) {
	body := completeRequest{Status: string(status), Result: result}
	var out completeResponse
	if err := c.post(ctx, "/internal/jobs/"+id+"/complete", body, &out); err != nil {
		return false, err
	}
	return out.Changed, nil
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: unexpected status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
