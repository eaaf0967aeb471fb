package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	model "github.com/babelcloud/voicepilot/pkg/agent"
)

const (
	mem0TypeTurn   = "conversation"
	mem0TypeAction = "browser_action"
)

// Mem0 stores session history in the mem0 hosted memory API, one mem0 user
// per session.
type Mem0 struct {
	baseURL string
	apiKey  string
	limit   int
	client  *http.Client
}

var _ Sink = (*Mem0)(nil)

func NewMem0(baseURL, apiKey string, limit int, client *http.Client) *Mem0 {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Mem0{baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, limit: limit, client: client}
}

type mem0Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type mem0AddRequest struct {
	Messages []mem0Message `json:"messages"`
	UserID   string        `json:"user_id"`
	Metadata any           `json:"metadata,omitempty"`
	Infer    bool          `json:"infer"`
}

type mem0Metadata struct {
	Type          string               `json:"type"`
	Role          model.Role           `json:"role,omitempty"`
	Action        model.ActionType     `json:"action,omitempty"`
	Succeeded     bool                 `json:"success,omitempty"`
	PageURL       string               `json:"page_url,omitempty"`
	BrowserAction *model.BrowserAction `json:"browser_action,omitempty"`
	Timestamp     int64                `json:"timestamp"`
}

type mem0Memory struct {
	ID        string        `json:"id"`
	Memory    string        `json:"memory"`
	Metadata  *mem0Metadata `json:"metadata"`
	CreatedAt time.Time     `json:"created_at"`
}

func (m *Mem0) RecordAction(ctx context.Context, rec ActionRecord) error {
	outcome, err := json.Marshal(rec.Outcome)
	if err != nil {
		return fmt.Errorf("encode outcome: %w", err)
	}
	verb := "Executed"
	if !rec.Succeeded {
		verb = "Failed"
	}
	a := rec.BrowserAction
	return m.add(ctx, mem0AddRequest{
		Messages: []mem0Message{{
			Role:    string(model.RoleSystem),
			Content: fmt.Sprintf("%s action: %s. Outcome: %s", verb, rec.Action, outcome),
		}},
		UserID: rec.SessionID,
		Metadata: mem0Metadata{
			Type:          mem0TypeAction,
			Action:        rec.Action,
			Succeeded:     rec.Succeeded,
			PageURL:       rec.PageURL,
			BrowserAction: &a,
			Timestamp:     rec.Timestamp.UnixMilli(),
		},
	})
}

func (m *Mem0) RecordTurn(ctx context.Context, sessionID string, role model.Role, content string) error {
	return m.add(ctx, mem0AddRequest{
		Messages: []mem0Message{{Role: string(role), Content: content}},
		UserID:   sessionID,
		Metadata: mem0Metadata{Type: mem0TypeTurn, Role: role, Timestamp: time.Now().UnixMilli()},
	})
}

func (m *Mem0) add(ctx context.Context, body mem0AddRequest) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/v1/memories/", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	_, err = m.do(req)
	return err
}

func (m *Mem0) Context(ctx context.Context, sessionID string) (*model.SessionContext, error) {
	q := url.Values{"user_id": {sessionID}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL+"/v1/memories/?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	body, err := m.do(req)
	if err != nil {
		return nil, err
	}
	var memories []mem0Memory
	if err := json.Unmarshal(body, &memories); err != nil {
		return nil, fmt.Errorf("decode mem0 memories: %w", err)
	}
	sort.SliceStable(memories, func(i, j int) bool {
		return memoryTime(memories[i]).Before(memoryTime(memories[j]))
	})

	sc := model.NewSessionContext(sessionID)
	for _, mem := range memories {
		md := mem.Metadata
		if md == nil {
			continue
		}
		switch md.Type {
		case mem0TypeTurn:
			sc.ConversationHistory = append(sc.ConversationHistory, model.ConversationTurn{
				Role:      md.Role,
				Content:   mem.Memory,
				Timestamp: memoryTime(mem),
			})
		case mem0TypeAction:
			if md.BrowserAction != nil {
				sc.AddAction(*md.BrowserAction, md.PageURL)
			} else if md.PageURL != "" {
				sc.CurrentURL = md.PageURL
			}
		}
	}
	if m.limit > 0 && len(sc.ConversationHistory) > m.limit {
		sc.ConversationHistory = sc.ConversationHistory[len(sc.ConversationHistory)-m.limit:]
	}
	if m.limit > 0 && len(sc.RecentActions) > m.limit {
		sc.RecentActions = sc.RecentActions[len(sc.RecentActions)-m.limit:]
	}
	return sc, nil
}

func memoryTime(m mem0Memory) time.Time {
	if m.Metadata != nil && m.Metadata.Timestamp > 0 {
		return time.UnixMilli(m.Metadata.Timestamp)
	}
	return m.CreatedAt
}

func (m *Mem0) do(req *http.Request) ([]byte, error) {
	req.Header.Set("Authorization", "Token "+m.apiKey)
	req.Header.Set("Accept", "application/json")
	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mem0 request: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read mem0 response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("mem0 %s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}
