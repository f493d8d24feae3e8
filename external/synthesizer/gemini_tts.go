package synthesizer

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/genai"
)

type GeminiTTSConfig struct {
	APIKey       string
	Model        string
	DefaultVoice string
}

// GeminiTTSSynthesizer renders reply text to PCM audio with a Gemini TTS
// model. The returned bytes are raw little-endian 16-bit PCM at the model's
// native rate, sent to the client as-is.
type GeminiTTSSynthesizer struct {
	cfg GeminiTTSConfig

	mu     sync.Mutex
	client *genai.Client
}

func NewGeminiTTSSynthesizer(cfg GeminiTTSConfig) *GeminiTTSSynthesizer {
	return &GeminiTTSSynthesizer{cfg: cfg}
}

func (s *GeminiTTSSynthesizer) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	if voice == "" {
		voice = s.cfg.DefaultVoice
	}
	client, err := s.getClient(ctx)
	if err != nil {
		return nil, err
	}

	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voice},
			},
		},
	}
	contents := []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}

	resp, err := client.Models.GenerateContent(ctx, s.cfg.Model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("gemini synthesize: %w", err)
	}

	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return part.InlineData.Data, nil
			}
		}
	}
	return nil, fmt.Errorf("gemini synthesize returned no audio")
}

func (s *GeminiTTSSynthesizer) getClient(ctx context.Context) (*genai.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return s.client, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  s.cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	s.client = client
	return client, nil
}
