package llm

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
)

// OutputKind selects the payload a generation request expects back.
type OutputKind int

const (
	OutputText OutputKind = iota
	OutputImage
)

// Request is one stateless call to the generation service.
//
// Model: Overrides the configured model when set
// SystemPrompt: Role instructions
// Prompt: The user prompt
// Images: Reference images sent inline with the prompt
// Output: Whether a text or an image payload is expected
// Role: Name of the calling agent, used for logging
type Request struct {
	Role         string
	Model        string
	SystemPrompt string
	Prompt       string
	Images       []File
	Output       OutputKind
	MaxTokens    int
}

// Result is the primary payload of a generation response.
//
// Text: Trimmed text content (text requests)
// Media: Decoded binary payload (image requests)
// MediaType: MIME type of Media
// Model: Model that served the request
type Result struct {
	Text      string
	Media     []byte
	MediaType string
	Model     string
}

// Message represents a chat message
// Supports text content with optional inline images
//
// Role: "system", "user", or "assistant"
// Content: Text content of the message
// Images: Images attached to the message as image_url parts
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Images  []File `json:"-"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

// MarshalJSON sends plain string content, or a content-part array when images are attached
func (m Message) MarshalJSON() ([]byte, error) {
	if len(m.Images) == 0 {
		return json.Marshal(&struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		}{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	parts := make([]contentPart, 0, len(m.Images)+1)
	if m.Content != "" {
		parts = append(parts, contentPart{Type: "text", Text: m.Content})
	}
	for _, img := range m.Images {
		parts = append(parts, contentPart{
			Type:     "image_url",
			ImageURL: &imageURL{URL: img.DataURL()},
		})
	}
	return json.Marshal(&struct {
		Role    string        `json:"role"`
		Content []contentPart `json:"content"`
	}{
		Role:    m.Role,
		Content: parts,
	})
}

// ChatRequest represents a chat completion request
// Compatible with OpenAI API format
//
// Model: The model to use for completion
// Messages: Array of conversation messages
// MaxTokens: Maximum number of tokens to generate
// Temperature: Sampling temperature (0-2)
// Modalities: Requested output modalities, e.g. ["image", "text"]
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
	Modalities  []string  `json:"modalities,omitempty"`
}

// ChatResponse represents a chat completion response
// Compatible with OpenAI API format
//
// ID: Unique identifier for the response
// Model: Model used for the response
// Choices: Array of completion choices
// Usage: Token usage statistics
type ChatResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
	Error   *Error   `json:"error,omitempty"`
}

// Choice represents a completion choice
//
// FinishReason values: "stop", "length", "content_filter", "tool_calls"
type Choice struct {
	Index        int             `json:"index"`
	Message      ResponseMessage `json:"message"`
	FinishReason string          `json:"finish_reason"`
}

// ResponseMessage is an assistant message, possibly carrying generated images
type ResponseMessage struct {
	Role    string          `json:"role"`
	Content string          `json:"content"`
	Images  []ResponseImage `json:"images,omitempty"`
}

// ResponseImage is a generated image returned as a data URL
type ResponseImage struct {
	Type     string   `json:"type"`
	ImageURL imageURL `json:"image_url"`
}

// Usage represents token usage statistics
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Error represents an API error body
//
// Message: Error message
// Type: Error type
// Code: Error code
type Error struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Param   string `json:"param,omitempty"`
	Code    any    `json:"code,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("LLM API Error: %s (type: %s, code: %v)", e.Message, e.Type, e.Code)
}

// File represents an inline attachment
//
// Name: Original file name
// ContentType: MIME type of the file
// Content: File content as bytes
type File struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Content     []byte `json:"content"`
}

// NewImage wraps raw image bytes as an attachment
func NewImage(name string, contentType string, content []byte) File {
	if contentType == "" {
		contentType = getContentTypeFromExtension(name)
	}
	return File{Name: name, ContentType: contentType, Content: content}
}

// DataURL encodes the file as a base64 data URL
func (f File) DataURL() string {
	contentType := f.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(f.Content)
}

// decodeDataURL splits a base64 data URL into its MIME type and payload
func decodeDataURL(url string) ([]byte, string, error) {
	if !strings.HasPrefix(url, "data:") {
		return nil, "", fmt.Errorf("unsupported image url: not a data url")
	}
	meta, payload, ok := strings.Cut(strings.TrimPrefix(url, "data:"), ",")
	if !ok {
		return nil, "", fmt.Errorf("malformed data url")
	}
	contentType, _, _ := strings.Cut(meta, ";")
	if !strings.Contains(meta, ";base64") {
		return []byte(payload), contentType, nil
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("decode image payload: %w", err)
	}
	return data, contentType, nil
}

func getContentTypeFromExtension(filePath string) string {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".txt":
		return "text/plain"
	case ".json":
		return "application/json"
	case ".pdf":
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}
