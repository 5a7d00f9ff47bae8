// Package chatwoot is a minimal client for the Chatwoot application API,
// covering the conversation operations a turn needs: reading history,
// posting replies and private notes, assigning agents, and reopening
// conversations.
package chatwoot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client talks to one Chatwoot installation with one access token.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a Client. baseURL is the installation root, e.g.
// https://chat.example.com.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// APIError is a non-2xx reply from Chatwoot.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("chatwoot API error (%d): %s", e.StatusCode, e.Body)
}

// SendMessage posts an outgoing reply visible to the contact.
func (c *Client) SendMessage(ctx context.Context, accountID, conversationID int, content string) error {
	return c.postMessage(ctx, accountID, conversationID, content, false)
}

// SendPrivateNote posts an agent-only note on the conversation.
func (c *Client) SendPrivateNote(ctx context.Context, accountID, conversationID int, content string) error {
	return c.postMessage(ctx, accountID, conversationID, content, true)
}

func (c *Client) postMessage(ctx context.Context, accountID, conversationID int, content string, private bool) error {
	path := fmt.Sprintf("/api/v1/accounts/%d/conversations/%d/messages", accountID, conversationID)
	body := map[string]any{
		"content":      content,
		"message_type": "outgoing",
		"private":      private,
	}
	return c.do(ctx, http.MethodPost, path, body, nil)
}

// AssignAgent assigns the conversation to a Chatwoot agent.
func (c *Client) AssignAgent(ctx context.Context, accountID, conversationID, agentID int) error {
	path := fmt.Sprintf("/api/v1/accounts/%d/conversations/%d/assignments", accountID, conversationID)
	return c.do(ctx, http.MethodPost, path, map[string]any{"assignee_id": agentID}, nil)
}

// SetStatus changes the conversation status ("open", "resolved", "pending").
func (c *Client) SetStatus(ctx context.Context, accountID, conversationID int, status string) error {
	path := fmt.Sprintf("/api/v1/accounts/%d/conversations/%d/toggle_status", accountID, conversationID)
	return c.do(ctx, http.MethodPost, path, map[string]any{"status": status}, nil)
}

// GetMessages fetches the raw message list for a conversation, oldest first
// as Chatwoot returns it.
func (c *Client) GetMessages(ctx context.Context, accountID, conversationID int) ([]APIMessage, error) {
	path := fmt.Sprintf("/api/v1/accounts/%d/conversations/%d/messages", accountID, conversationID)

	var resp struct {
		Payload []APIMessage `json:"payload"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Payload, nil
}

// GetContactName returns the display name of the conversation's contact, or
// empty when unavailable.
func (c *Client) GetContactName(ctx context.Context, accountID, conversationID int) (string, error) {
	path := fmt.Sprintf("/api/v1/accounts/%d/conversations/%d", accountID, conversationID)

	var resp struct {
		Meta struct {
			Sender struct {
				Name string `json:"name"`
			} `json:"sender"`
		} `json:"meta"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return "", err
	}
	return resp.Meta.Sender.Name, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("api_access_token", c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}
