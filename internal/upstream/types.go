package upstream

import "github.com/courtdraft/courtdraft/internal/generation"

// chatMessage mirrors the chat-completion message wire shape.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatRequest is the JSON body sent on every completion attempt.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

// chatResponse captures the fields the orchestrator needs from a successful
// completion body.
type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// ErrorBody is the upstream error payload embedded in non-2xx responses.
type ErrorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

type errorEnvelope struct {
	Error ErrorBody `json:"error"`
}

// Attempt is the tagged outcome of one upstream call. Either Text is set, or
// Err carries the classified failure and Retryable says whether another
// attempt could change the result.
type Attempt struct {
	Model     string
	Text      string
	Err       *generation.Error
	Retryable bool
}
