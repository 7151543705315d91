package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/MimeLyc/slidesage/pkg/log"
	"github.com/MimeLyc/slidesage/pkg/retry"
)

// Client represents a generic generation API client
// Provides stateless text and image generation over an OpenAI-compatible API
// Thread-safe for concurrent use
//
// config: Configuration for the API
// httpClient: HTTP client for API requests
// baseURL: Base URL for the API
type Client struct {
	config     *Config
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a new client with the given configuration
//
// config: Configuration for the API
//
// Returns a new Client instance or an error if configuration is invalid
// Example:
//
//	client, err := llm.NewClient(&llm.Config{APIKey: key, APIURL: url, Model: "google/gemini-2.5-flash", MaxTokens: 8000, Timeout: 180})
//	if err != nil {
//		log.Fatal(err)
//	}
func NewClient(config *Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	client := &Client{
		config:  config,
		baseURL: strings.TrimRight(config.APIURL, "/"),
		httpClient: &http.Client{
			Timeout: time.Duration(config.Timeout) * time.Second,
		},
	}

	return client, nil
}

// Generate sends one stateless request and extracts the primary payload
//
// Text requests return the trimmed message content; image requests return the
// first generated image decoded from its data URL. A response without the
// expected payload yields ErrEmptyResponse.
func (c *Client) Generate(ctx context.Context, req Request) (*Result, error) {
	messages := make([]Message, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, Message{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, Message{Role: "user", Content: req.Prompt, Images: req.Images})

	chatReq := ChatRequest{
		Model:       c.getModel(req),
		Messages:    messages,
		MaxTokens:   c.getMaxTokens(req),
		Temperature: c.config.Temperature,
	}
	if req.Output == OutputImage {
		chatReq.Modalities = []string{"image", "text"}
		chatReq.MaxTokens = 0
	}

	log.Debug("Generation request role=%s model=%s images=%d", req.Role, chatReq.Model, len(req.Images))
	response, err := c.ChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, err
	}
	if len(response.Choices) == 0 {
		return nil, ErrEmptyResponse
	}

	msg := response.Choices[0].Message
	result := &Result{Model: response.Model}

	if req.Output == OutputImage {
		for _, img := range msg.Images {
			data, contentType, err := decodeDataURL(img.ImageURL.URL)
			if err != nil {
				return nil, fmt.Errorf("failed to decode generated image: %w", err)
			}
			if len(data) == 0 {
				continue
			}
			result.Media = data
			result.MediaType = contentType
			result.Text = strings.TrimSpace(msg.Content)
			return result, nil
		}
		return nil, ErrEmptyResponse
	}

	result.Text = strings.TrimSpace(msg.Content)
	if result.Text == "" {
		return nil, ErrEmptyResponse
	}
	return result, nil
}

// ChatCompletion posts a chat completion request to the configured API
//
// ctx: Context for the request
// request: Fully built chat request
//
// Returns the chat completion response or an error
func (c *Client) ChatCompletion(ctx context.Context, request ChatRequest) (*ChatResponse, error) {
	response, err := c.makeRequest(ctx, http.MethodPost, "/chat/completions", request)
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	return response, nil
}

// SimpleChat provides a simple interface for text completion
//
// Example:
//
//	response, err := client.SimpleChat(ctx, "What is Go?", "You are a helpful assistant.")
func (c *Client) SimpleChat(ctx context.Context, prompt string, systemPrompt string) (string, error) {
	result, err := c.Generate(ctx, Request{Prompt: prompt, SystemPrompt: systemPrompt})
	if err != nil {
		return "", err
	}
	return result.Text, nil
}

// Ping checks that the endpoint is reachable and the credentials are accepted
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.makeRequest(ctx, http.MethodGet, "/models", nil)
	if err != nil {
		return fmt.Errorf("generation service unreachable: %w", err)
	}
	return nil
}

// makeRequest makes a raw HTTP request to the configured API
func (c *Client) makeRequest(ctx context.Context, method, path string, payload any) (*ChatResponse, error) {
	url := c.baseURL + path

	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return nil, retry.Permanent(fmt.Errorf("failed to marshal request: %w", err))
		}
		body = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("failed to create request: %w", err))
	}

	for key, value := range c.config.GetHeaders() {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if os.IsTimeout(err) {
			return nil, fmt.Errorf("request timed out: %w", err)
		}
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Raw: string(responseBody)}
		var errBody ChatResponse
		if json.Unmarshal(responseBody, &errBody) == nil && errBody.Error != nil {
			apiErr.Body = errBody.Error
		}
		return nil, apiErr
	}

	// The models listing has a different shape; only its status matters.
	if method == http.MethodGet {
		return &ChatResponse{}, nil
	}

	var chatResponse ChatResponse
	if err := json.Unmarshal(responseBody, &chatResponse); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	// Some gateways report failures inside a 200 body.
	if chatResponse.Error != nil && chatResponse.Error.Message != "" {
		return nil, &APIError{StatusCode: http.StatusBadGateway, Body: chatResponse.Error, Raw: string(responseBody)}
	}

	return &chatResponse, nil
}

// getModel returns the model to use for the request
func (c *Client) getModel(req Request) string {
	if req.Model != "" {
		return req.Model
	}
	return c.config.Model
}

// getMaxTokens returns the max tokens to use for the request
func (c *Client) getMaxTokens(req Request) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	return c.config.MaxTokens
}
