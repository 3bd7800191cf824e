package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"
)

// ChatSynthesizer turns a single prompt into generated text using an eino
// chat model.
type ChatSynthesizer struct {
	model model.BaseChatModel
	name  string
}

// NewChatSynthesizer wraps m. name identifies the model in logs and metrics.
func NewChatSynthesizer(m model.BaseChatModel, name string) (*ChatSynthesizer, error) {
	if m == nil {
		return nil, fmt.Errorf("provider: chat model must not be nil")
	}
	return &ChatSynthesizer{model: m, name: name}, nil
}

// Name returns the model name given at construction.
func (s *ChatSynthesizer) Name() string { return s.name }

// Synthesize sends prompt as one user message and returns the reply text.
func (s *ChatSynthesizer) Synthesize(ctx context.Context, prompt string) (string, error) {
	msg, err := s.model.Generate(ctx, []*schema.Message{schema.UserMessage(prompt)})
	if err != nil {
		return "", err
	}
	if msg == nil {
		return "", fmt.Errorf("provider: model returned no message")
	}
	return msg.Content, nil
}

// quotaMarkers are lowercase fragments that providers use in rate-limit and
// quota-exhaustion errors.
var quotaMarkers = []string{
	"429",
	"quota",
	"resource_exhausted",
	"resource exhausted",
	"rate limit",
	"too many requests",
}

// IsQuotaError reports whether err signals that the model provider rejected
// the call for rate or quota reasons. Such errors are worth retrying;
// anything else is not.
func IsQuotaError(err error) bool {
	if err == nil {
		return false
	}
	if code, ok := genaiStatus(err); ok && code == http.StatusTooManyRequests {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, m := range quotaMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// genaiStatus returns the HTTP status of a genai API error in err's chain.
// The client returns APIError by value; a pointer is accepted as well.
func genaiStatus(err error) (int, bool) {
	var v genai.APIError
	if errors.As(err, &v) {
		return v.Code, true
	}
	var p *genai.APIError
	if errors.As(err, &p) && p != nil {
		return p.Code, true
	}
	return 0, false
}
