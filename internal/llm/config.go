package llm

import (
	"fmt"
	"strings"
)

// Config holds the configuration for the generation client
// Works against any OpenAI-compatible endpoint that accepts image_url parts
// (OpenRouter, Gemini's OpenAI endpoint, a local gateway, ...)
//
// Environment Variables (see internal/config):
// - LLM_API_KEY: API key for the provider (required)
// - LLM_API_URL: API endpoint URL (default: https://openrouter.ai/api/v1)
// - LLM_MODEL: Default model when a role has none (default: google/gemini-2.5-flash)
// - LLM_MAX_TOKENS: Maximum tokens for text responses (default: 8000)
// - LLM_TEMPERATURE: Temperature for responses (default: 0.7)
// - LLM_TIMEOUT: Per-request timeout in seconds (default: 180)
// - LLM_SITE_URL: Site URL for HTTP referer header (optional)
// - LLM_APP_NAME: Application name for X-Title header (optional)
type Config struct {
	APIKey      string  `json:"api_key"`
	APIURL      string  `json:"api_url"`
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	Timeout     int     `json:"timeout"`
	SiteURL     string  `json:"site_url"`
	AppName     string  `json:"app_name"`
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("API key is required")
	}
	if c.APIURL == "" {
		return fmt.Errorf("API URL is required")
	}
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	if c.MaxTokens < 1 {
		return fmt.Errorf("max tokens must be greater than 0")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2")
	}
	if c.Timeout < 1 {
		return fmt.Errorf("timeout must be greater than 0")
	}
	return nil
}

// GetHeaders returns the headers for the API request
func (c *Config) GetHeaders() map[string]string {
	headers := map[string]string{
		"Authorization": "Bearer " + c.APIKey,
		"Content-Type":  "application/json",
	}

	if c.SiteURL != "" {
		headers["HTTP-Referer"] = c.SiteURL
	}
	if c.AppName != "" {
		headers["X-Title"] = c.AppName
	}

	return headers
}

// String renders the config with the API key masked
func (c Config) String() string {
	key := "<unset>"
	if c.APIKey != "" {
		key = strings.Repeat("*", 4) + lastN(c.APIKey, 4)
	}
	return fmt.Sprintf("{url=%s model=%s max_tokens=%d temperature=%.2f timeout=%ds key=%s}",
		c.APIURL, c.Model, c.MaxTokens, c.Temperature, c.Timeout, key)
}

func lastN(s string, n int) string {
	if len(s) <= n {
		return ""
	}
	return s[len(s)-n:]
}
