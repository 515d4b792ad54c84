// Package e2etest drives a running inkwell web server through its JSON API. The web server tests and the deployment
// smoke test share it.
package e2etest

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/myrjola/inkwell/internal/dashboard"
	"github.com/myrjola/inkwell/internal/errors"
	"github.com/myrjola/inkwell/internal/models"
	"github.com/myrjola/inkwell/internal/orchestrator"
)

type Client struct {
	client *http.Client
	url    string
}

// NewClient creates a client for the server at url, e.g. "http://localhost:4000".
func NewClient(url string) *Client {
	return &Client{
		client: &http.Client{},
		url:    strings.TrimSuffix(url, "/"),
	}
}

// WaitForReady calls the specified endpoint until it gets a HTTP 200 Success
// response or until the context is cancelled or the 1-second timeout is reached.
func (c *Client) WaitForReady(ctx context.Context, urlPath string) error {
	timeout := 1 * time.Second
	startTime := time.Now()
	var (
		err  error
		req  *http.Request
		resp *http.Response
	)
	for {
		if req, err = http.NewRequestWithContext(
			ctx,
			http.MethodGet,
			c.url+urlPath,
			nil,
		); err != nil {
			return errors.Wrap(err, "create request")
		}

		if resp, err = c.client.Do(req); err == nil {
			if resp.StatusCode == http.StatusOK {
				if err = resp.Body.Close(); err != nil {
					return errors.Wrap(err, "close response body")
				}
				return nil
			}
			if err = resp.Body.Close(); err != nil {
				return errors.Wrap(err, "close response body")
			}
		}
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "context cancelled")
		default:
			if time.Since(startTime) >= timeout {
				return errors.New("timeout waiting for endpoint to be ready")
			}
			time.Sleep(100 * time.Millisecond) //nolint:mnd // 100ms
		}
	}
}

// Do sends a request with body encoded as JSON when non-nil and decodes the response into dst when non-nil.
// It returns the status code. Statuses are not checked; see [Client.Expect].
func (c *Client) Do(ctx context.Context, method, urlPath string, body any, dst any) (int, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, errors.Wrap(err, "marshal request body")
		}
		reqBody = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url+urlPath, reqBody)
	if err != nil {
		return 0, errors.Wrap(err, "create request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, errors.Wrap(err, "do request")
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if dst != nil && resp.StatusCode != http.StatusNoContent {
		if err = json.NewDecoder(resp.Body).Decode(dst); err != nil {
			return resp.StatusCode, errors.Wrap(err, "decode response body", slog.Int("status", resp.StatusCode))
		}
	}
	return resp.StatusCode, nil
}

// Expect is like [Client.Do] but fails unless the response has the wanted status.
func (c *Client) Expect(ctx context.Context, want int, method, urlPath string, body any, dst any) error {
	status, err := c.Do(ctx, method, urlPath, body, dst)
	if err != nil {
		return err
	}
	if status != want {
		return errors.New("unexpected status code",
			slog.String("path", urlPath), slog.Int("status", status), slog.Int("want", want))
	}
	return nil
}

func (c *Client) CreateProject(ctx context.Context, id, name, description string) (*models.Project, error) {
	var project models.Project
	body := map[string]string{"id": id, "name": name, "description": description}
	if err := c.Expect(ctx, http.StatusCreated, http.MethodPost, "/api/projects", body, &project); err != nil {
		return nil, errors.Wrap(err, "create project")
	}
	return &project, nil
}

// StartRun starts the chapter pipeline and returns the run id.
func (c *Client) StartRun(ctx context.Context, projectID, chapterID, goal string, characters []string) (string, error) {
	var resp struct {
		RunID string `json:"run_id"`
	}
	body := map[string]any{"goal": goal, "characters": characters}
	if err := c.Expect(ctx, http.StatusAccepted, http.MethodPost, chapterPath(projectID, chapterID)+"/runs", body,
		&resp); err != nil {
		return "", errors.Wrap(err, "start run")
	}
	return resp.RunID, nil
}

// Events reads the event stream of a run until the server closes it.
func (c *Client) Events(ctx context.Context, projectID, chapterID, runID string) ([]orchestrator.Event, error) {
	urlPath := chapterPath(projectID, chapterID) + "/runs/" + runID + "/events"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+urlPath, nil)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "do request")
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.New("unexpected status code", slog.Int("status", resp.StatusCode))
	}

	var events []orchestrator.Event
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024) //nolint:mnd // deltas may be long
	for scanner.Scan() {
		data, ok := strings.CutPrefix(scanner.Text(), "data: ")
		if !ok {
			continue
		}
		var e orchestrator.Event
		if err = json.Unmarshal([]byte(data), &e); err != nil {
			return events, errors.Wrap(err, "decode event")
		}
		events = append(events, e)
	}
	if err = scanner.Err(); err != nil {
		return events, errors.Wrap(err, "read event stream")
	}
	return events, nil
}

func (c *Client) Status(ctx context.Context, projectID, chapterID string) (*models.PipelineRecord, error) {
	var record models.PipelineRecord
	if err := c.Expect(ctx, http.StatusOK, http.MethodGet, chapterPath(projectID, chapterID), nil,
		&record); err != nil {
		return nil, errors.Wrap(err, "get status")
	}
	return &record, nil
}

func (c *Client) Dashboard(ctx context.Context, projectID string) (*dashboard.View, error) {
	var view dashboard.View
	if err := c.Expect(ctx, http.StatusOK, http.MethodGet, "/api/projects/"+projectID+"/dashboard", nil,
		&view); err != nil {
		return nil, errors.Wrap(err, "get dashboard")
	}
	return &view, nil
}

func chapterPath(projectID, chapterID string) string {
	return "/api/projects/" + projectID + "/chapters/" + chapterID
}
