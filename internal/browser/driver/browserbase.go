package driver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// browserbaseClient creates and releases hosted browser sessions through the
// Browserbase REST API.
type browserbaseClient struct {
	baseURL   string
	apiKey    string
	projectID string
	client    *http.Client
}

func newBrowserbaseClient(baseURL, apiKey, projectID string, client *http.Client) *browserbaseClient {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &browserbaseClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		projectID: projectID,
		client:    client,
	}
}

type bbSession struct {
	ID         string `json:"id"`
	ConnectURL string `json:"connectUrl"`
}

type bbDebug struct {
	DebuggerFullscreenURL string `json:"debuggerFullscreenUrl"`
	DebuggerURL           string `json:"debuggerUrl"`
}

// create starts a hosted session and returns its CDP connect url.
func (c *browserbaseClient) create(ctx context.Context) (bbSession, error) {
	var s bbSession
	body, err := c.call(ctx, http.MethodPost, "/v1/sessions", map[string]string{"projectId": c.projectID})
	if err != nil {
		return s, err
	}
	if err := json.Unmarshal(body, &s); err != nil {
		return s, fmt.Errorf("decode browserbase session: %w", err)
	}
	if s.ID == "" || s.ConnectURL == "" {
		return s, fmt.Errorf("browserbase session response missing id or connectUrl")
	}
	return s, nil
}

// liveView returns the url a person can open to watch the session.
func (c *browserbaseClient) liveView(ctx context.Context, id string) (string, error) {
	body, err := c.call(ctx, http.MethodGet, "/v1/sessions/"+id+"/debug", nil)
	if err != nil {
		return "", err
	}
	var d bbDebug
	if err := json.Unmarshal(body, &d); err != nil {
		return "", fmt.Errorf("decode browserbase debug urls: %w", err)
	}
	if d.DebuggerFullscreenURL != "" {
		return d.DebuggerFullscreenURL, nil
	}
	return d.DebuggerURL, nil
}

// release ends a hosted session ahead of its timeout.
func (c *browserbaseClient) release(ctx context.Context, id string) error {
	_, err := c.call(ctx, http.MethodPost, "/v1/sessions/"+id, map[string]string{
		"projectId": c.projectID,
		"status":    "REQUEST_RELEASE",
	})
	return err
}

func (c *browserbaseClient) call(ctx context.Context, method, path string, in any) ([]byte, error) {
	var reader io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-BB-API-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("browserbase request: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read browserbase response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("browserbase %s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}
