package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// APIClient is a Client backed by a chat-gateway REST API. The gateway
// owns the platform-specific wire format; this client only moves opaque
// message and view payloads to it.
type APIClient struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *slog.Logger
}

// NewAPIClient creates a new chat-gateway API client
func NewAPIClient(baseURL, token string, logger *slog.Logger) *APIClient {
	return &APIClient{
		baseURL: baseURL,
		token:   token,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// APIError represents a gateway error response
type APIError struct {
	Error string `json:"error"`
}

type postMessageRequest struct {
	Channel string  `json:"channel"`
	Message Message `json:"message"`
}

type updateMessageRequest struct {
	Ref     MessageRef `json:"ref"`
	Message Message    `json:"message"`
}

type openViewRequest struct {
	TriggerID string `json:"trigger_id"`
	View      View   `json:"view"`
}

type updateViewRequest struct {
	Ref  ViewRef `json:"ref"`
	View View    `json:"view"`
}

// PostMessage posts a message to a channel or user id
func (a *APIClient) PostMessage(ctx context.Context, channel string, msg Message) (MessageRef, error) {
	var ref MessageRef
	err := a.doRequest(ctx, "POST", "/v1/messages", postMessageRequest{Channel: channel, Message: msg}, &ref)
	if err != nil {
		return MessageRef{}, err
	}
	return ref, nil
}

// UpdateMessage replaces the content of a previously posted message
func (a *APIClient) UpdateMessage(ctx context.Context, ref MessageRef, msg Message) error {
	return a.doRequest(ctx, "PATCH", "/v1/messages", updateMessageRequest{Ref: ref, Message: msg}, nil)
}

// UserInfo looks up a user by id
func (a *APIClient) UserInfo(ctx context.Context, userID string) (*User, error) {
	var user User
	if err := a.doRequest(ctx, "GET", "/v1/users/"+url.PathEscape(userID), nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// UserByEmail looks up a user by email address
func (a *APIClient) UserByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	path := "/v1/users/lookup?email=" + url.QueryEscape(email)
	if err := a.doRequest(ctx, "GET", path, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// OpenView opens an interactive view from an interaction trigger
func (a *APIClient) OpenView(ctx context.Context, triggerID string, view View) (ViewRef, error) {
	var ref ViewRef
	err := a.doRequest(ctx, "POST", "/v1/views", openViewRequest{TriggerID: triggerID, View: view}, &ref)
	if err != nil {
		return ViewRef{}, err
	}
	return ref, nil
}

// UpdateView replaces the content of an open view
func (a *APIClient) UpdateView(ctx context.Context, ref ViewRef, view View) error {
	return a.doRequest(ctx, "PATCH", "/v1/views", updateViewRequest{Ref: ref, View: view}, nil)
}

// CompleteSuccess marks the execution as successfully finished
func (a *APIClient) CompleteSuccess(ctx context.Context, executionID string) error {
	req := struct {
		ExecutionID string `json:"execution_id"`
		Completed   bool   `json:"completed"`
	}{ExecutionID: executionID, Completed: true}
	return a.doRequest(ctx, "POST", "/v1/executions/complete", req, nil)
}

// CompleteError marks the execution as failed with a message
func (a *APIClient) CompleteError(ctx context.Context, executionID string, msg string) error {
	req := struct {
		ExecutionID string `json:"execution_id"`
		Error       string `json:"error"`
	}{ExecutionID: executionID, Error: msg}
	return a.doRequest(ctx, "POST", "/v1/executions/complete", req, nil)
}

// doRequest performs an HTTP request to the chat gateway
func (a *APIClient) doRequest(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	reqURL := a.baseURL + path

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+a.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	a.logger.Debug("Chat API request",
		"method", method,
		"url", reqURL,
	)

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr APIError
		if err := json.Unmarshal(respBody, &apiErr); err != nil || apiErr.Error == "" {
			return fmt.Errorf("chat API error %d: %s", resp.StatusCode, string(respBody))
		}
		return fmt.Errorf("chat API error %d: %s", resp.StatusCode, apiErr.Error)
	}

	if result != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}

	return nil
}
