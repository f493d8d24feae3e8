package responder

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/fluentcare/parley/internal/history"
	"github.com/fluentcare/parley/internal/responder"
	"google.golang.org/genai"
)

const maxReplyTokens = 512

type GeminiConfig struct {
	APIKey string
	Model  string
}

// GeminiResponder generates counterpart replies with the Gemini API. The
// scenario persona rides as the system instruction; the bounded history
// window becomes the chat contents.
type GeminiResponder struct {
	cfg GeminiConfig

	mu     sync.Mutex
	client *genai.Client
}

func NewGeminiResponder(cfg GeminiConfig) *GeminiResponder {
	return &GeminiResponder{cfg: cfg}
}

func (r *GeminiResponder) Respond(ctx context.Context, req responder.Request) (responder.Reply, error) {
	client, err := r.getClient(ctx)
	if err != nil {
		return responder.Reply{}, err
	}

	temperature := float32(0.8)
	maxTokens := int32(maxReplyTokens)
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(req.ScenarioPrompt, genai.RoleUser),
		Temperature:       &temperature,
		MaxOutputTokens:   maxTokens,
	}

	resp, err := client.Models.GenerateContent(ctx, r.cfg.Model, buildContents(req), config)
	if err != nil {
		return responder.Reply{}, fmt.Errorf("gemini generate content: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return responder.Reply{}, fmt.Errorf("gemini returned an empty reply")
	}
	reply := responder.Reply{Text: text}
	if resp.UsageMetadata != nil {
		reply.TokensUsed = int(resp.UsageMetadata.TotalTokenCount)
	}
	return reply, nil
}

// buildContents maps the conversation window to chat roles. System messages
// are dropped: they are client notices, not conversation.
func buildContents(req responder.Request) []*genai.Content {
	var contents []*genai.Content
	for _, msg := range req.Context {
		switch msg.Speaker {
		case history.SpeakerUser:
			contents = append(contents, genai.NewContentFromText(msg.Text, genai.RoleUser))
		case history.SpeakerCounterpart:
			contents = append(contents, genai.NewContentFromText(msg.Text, genai.RoleModel))
		}
	}
	contents = append(contents, genai.NewContentFromText(req.UserText, genai.RoleUser))
	return contents
}

func (r *GeminiResponder) getClient(ctx context.Context) (*genai.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client != nil {
		return r.client, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  r.cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	r.client = client
	return client, nil
}
