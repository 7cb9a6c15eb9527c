// Package rag is a thin client for a LightRAG server. Conversation
// turns are mirrored into it as documents so the knowledge graph can
// answer "what did we discuss before" style queries. The store is
// optional: every failure here is non-fatal for the session.
package rag

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

const defaultTimeout = 60 * time.Second

// Client talks to a LightRAG HTTP API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// New creates a client for the LightRAG server at baseURL.
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: defaultTimeout},
	}
}

// Healthy reports whether the LightRAG server responds.
func (c *Client) Healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// InsertConversation stores one conversation turn as a structured
// document LightRAG can extract entities and relations from.
func (c *Client) InsertConversation(ctx context.Context, userID, sessionID, userMessage, assistantResponse string) error {
	document := formatConversationDocument(userID, sessionID, userMessage, assistantResponse)

	payload := map[string]string{
		"text":        document,
		"description": fmt.Sprintf("Conversation between user %s and the tutor", userID),
	}

	return c.post(ctx, "/documents/text", payload, nil)
}

// Query asks the knowledge graph a question and returns its response text.
func (c *Client) Query(ctx context.Context, query string) (string, error) {
	payload := map[string]string{
		"query": query,
		"mode":  "hybrid",
	}

	var result struct {
		Response string `json:"response"`
	}
	if err := c.post(ctx, "/query", payload, &result); err != nil {
		return "", err
	}
	return result.Response, nil
}

func (c *Client) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("lightrag %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("lightrag %s: status %d: %s", path, resp.StatusCode, string(data))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func formatConversationDocument(userID, sessionID, userMessage, assistantResponse string) string {
	var b strings.Builder
	b.WriteString("=== CONVERSATION RECORD ===\n")
	fmt.Fprintf(&b, "Timestamp: %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(&b, "User ID: %s\n", userID)
	fmt.Fprintf(&b, "Session ID: %s\n\n", sessionID)
	fmt.Fprintf(&b, "USER QUESTION:\n%s\n\n", userMessage)
	fmt.Fprintf(&b, "TUTOR RESPONSE:\n%s\n", assistantResponse)
	b.WriteString("=== END CONVERSATION ===\n")
	return b.String()
}
