package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	model "github.com/babelcloud/voicepilot/pkg/agent"
)

const defaultAPIEndpoint = "http://localhost:28090"

// apiEndpoint resolves the server to talk to from API_ENDPOINT.
func apiEndpoint() string {
	v := viper.New()
	v.SetDefault("api.endpoint", defaultAPIEndpoint)
	_ = v.BindEnv("api.endpoint", "API_ENDPOINT")
	return strings.TrimRight(v.GetString("api.endpoint"), "/")
}

type apiClient struct {
	endpoint string
	http     *http.Client
}

func newAPIClient() *apiClient {
	return &apiClient{endpoint: apiEndpoint(), http: &http.Client{Timeout: 30 * time.Second}}
}

// call performs a request against /api/v1 and decodes the envelope's data into out.
func (c *apiClient) call(ctx context.Context, method, path string, out any) error {
	url := c.endpoint + "/api/v1" + path
	if os.Getenv("DEBUG") == "true" {
		fmt.Fprintf(os.Stderr, "Request URL: %s %s\n", method, url)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("API call failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if os.Getenv("DEBUG") == "true" {
		fmt.Fprintf(os.Stderr, "Response status code: %d\n", resp.StatusCode)
		fmt.Fprintf(os.Stderr, "Response content: %s\n", string(body))
	}

	var env struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   string          `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("failed to parse JSON response (HTTP %d): %w", resp.StatusCode, err)
	}
	if !env.Success {
		return fmt.Errorf("server returned HTTP %d: %s", resp.StatusCode, env.Error)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}

func (c *apiClient) listSessions(ctx context.Context) (*model.SessionList, error) {
	var out model.SessionList
	if err := c.call(ctx, http.MethodGet, "/sessions", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) closeSession(ctx context.Context, id string) (*model.CloseResult, error) {
	var out model.CloseResult
	if err := c.call(ctx, http.MethodDelete, "/sessions/"+id, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) sessionContext(ctx context.Context, id string) (*model.SessionContext, error) {
	var out model.SessionContext
	if err := c.call(ctx, http.MethodGet, "/sessions/"+id+"/context", &out); err != nil {
		return nil, err
	}
	return &out, nil
}
