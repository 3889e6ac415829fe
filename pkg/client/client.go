// Package client is the HTTP implementation of the chat and review
// service contracts, for frontends and tools talking to a modchat server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"modchat/pkg/auth"
	"modchat/pkg/models"
	"modchat/pkg/moderation"
)

// Client calls the modchat HTTP API. It satisfies both chat.Service and
// review.Service.
type Client struct {
	baseURL string
	apiKey  string
	userID  string
	signKey string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying http.Client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithSignedAuthor attaches the author identity headers. signKey is the
// backend key used to HMAC the user id; required for frontend API keys.
func WithSignedAuthor(userID, signKey string) Option {
	return func(c *Client) {
		c.userID = userID
		c.signKey = signKey
	}
}

// New builds a client for the given server base URL and API key.
func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// SendMessage submits content to a thread. A moderation refusal comes
// back as *moderation.RejectionError; other failures are transport
// errors.
func (c *Client) SendMessage(ctx context.Context, threadID, content, replyTo string) (models.Message, error) {
	body := map[string]string{"content": content}
	if replyTo != "" {
		body["reply_to"] = replyTo
	}
	var out models.Message
	err := c.do(ctx, http.MethodPost, "/v1/threads/"+url.PathEscape(threadID)+"/messages", body, &out)
	return out, err
}

// ToggleLike flips the caller's like on a message and returns the
// server-authoritative state.
func (c *Client) ToggleLike(ctx context.Context, threadID, messageID string) (models.LikeState, error) {
	var out models.LikeState
	p := "/v1/threads/" + url.PathEscape(threadID) + "/messages/" + url.PathEscape(messageID) + "/like"
	err := c.do(ctx, http.MethodPost, p, nil, &out)
	return out, err
}

// DeleteMessage soft-deletes a message the caller owns.
func (c *Client) DeleteMessage(ctx context.Context, threadID, messageID string) error {
	p := "/v1/threads/" + url.PathEscape(threadID) + "/messages/" + url.PathEscape(messageID)
	return c.do(ctx, http.MethodDelete, p, nil, nil)
}

// ListMessages fetches a thread's messages in server order.
func (c *Client) ListMessages(ctx context.Context, threadID string) ([]models.Message, error) {
	var out struct {
		Messages []models.Message `json:"messages"`
	}
	err := c.do(ctx, http.MethodGet, "/v1/threads/"+url.PathEscape(threadID)+"/messages", nil, &out)
	return out.Messages, err
}

// ReportMessage flags a message for human review.
func (c *Client) ReportMessage(ctx context.Context, threadID, messageID, reason string) error {
	p := "/v1/threads/" + url.PathEscape(threadID) + "/messages/" + url.PathEscape(messageID) + "/report"
	return c.do(ctx, http.MethodPost, p, map[string]string{"reason": reason}, nil)
}

// GetQueue fetches the moderation queue under a status filter.
func (c *Client) GetQueue(ctx context.Context, status models.QueueStatus) ([]models.QueueItem, error) {
	var out struct {
		Items []models.QueueItem `json:"items"`
	}
	p := "/v1/moderation/queue"
	if status != "" {
		p += "?status=" + url.QueryEscape(string(status))
	}
	err := c.do(ctx, http.MethodGet, p, nil, &out)
	return out.Items, err
}

// ReviewItem applies a decision to a queue item.
func (c *Client) ReviewItem(ctx context.Context, itemID string, decision models.ReviewDecision, notes string) error {
	p := "/v1/moderation/queue/" + url.PathEscape(itemID) + "/review"
	return c.do(ctx, http.MethodPost, p, map[string]string{
		"action": string(decision),
		"notes":  notes,
	}, nil)
}

// GetModerationSettings fetches the admin moderation config.
func (c *Client) GetModerationSettings(ctx context.Context) (moderation.Settings, error) {
	var out moderation.Settings
	err := c.do(ctx, http.MethodGet, "/v1/moderation/config", nil, &out)
	return out, err
}

// PutModerationSettings replaces the admin moderation config.
func (c *Client) PutModerationSettings(ctx context.Context, s moderation.Settings) error {
	return c.do(ctx, http.MethodPut, "/v1/moderation/config", s, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userID != "" {
		req.Header.Set("X-User-ID", c.userID)
		if c.signKey != "" {
			req.Header.Set("X-User-Signature", auth.SignHMAC(c.signKey, c.userID))
		}
	}
	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 200 && res.StatusCode < 300 {
		if out == nil {
			return nil
		}
		return json.NewDecoder(res.Body).Decode(out)
	}

	raw, _ := io.ReadAll(io.LimitReader(res.Body, 64*1024))
	if res.StatusCode == http.StatusUnprocessableEntity {
		// moderation rejection envelope: {"error":{"reason","message"}}
		var env struct {
			Error moderation.RejectionError `json:"error"`
		}
		if jerr := json.Unmarshal(raw, &env); jerr == nil && (env.Error.Reason != "" || env.Error.Message != "") {
			return &env.Error
		}
	}
	var plain struct {
		Error string `json:"error"`
	}
	if jerr := json.Unmarshal(raw, &plain); jerr == nil && plain.Error != "" {
		return fmt.Errorf("%s %s: %s (status %d)", method, path, plain.Error, res.StatusCode)
	}
	return fmt.Errorf("%s %s: status %d", method, path, res.StatusCode)
}
