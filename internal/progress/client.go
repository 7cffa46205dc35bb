package progress

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

// Client calls the progress service over HTTP JSON.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) GetCurrentStep(ctx context.Context) (int, error) {
	var resp stepResponse
	if err := c.do(ctx, "get current step", http.MethodGet, "/api/onboarding/step", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Step, nil
}

func (c *Client) SetCurrentStep(ctx context.Context, step int, payload map[string]any) error {
	if payload == nil {
		payload = map[string]any{}
	}
	var resp completeResponse
	path := fmt.Sprintf("/api/onboarding/step/%d/complete", step)
	op := fmt.Sprintf("complete step %d", step)
	if err := c.do(ctx, op, http.MethodPost, path, completeRequest{Data: payload}, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return &RemoteError{Op: op, Status: http.StatusOK, Message: "service reported failure: " + resp.Message}
	}
	return nil
}

func (c *Client) GetInit(ctx context.Context) (InitResponse, error) {
	var resp InitResponse
	err := c.do(ctx, "get init", http.MethodGet, "/api/onboarding/init", nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", op, ctx.Err())
		}
		return &RemoteError{Op: op, Message: err.Error(), Transient: true}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return &RemoteError{Op: op, Status: resp.StatusCode, Message: "read body: " + err.Error(), Transient: true}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e errorResponse
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return classify(op, resp.StatusCode, msg)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &RemoteError{Op: op, Status: resp.StatusCode, Message: "decode response: " + err.Error()}
	}
	return nil
}
