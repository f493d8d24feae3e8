package transcriber

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/auth/credentials"
	speech "cloud.google.com/go/speech/apiv2"
	speechpb "cloud.google.com/go/speech/apiv2/speechpb"
	"github.com/fluentcare/parley/internal/audio"
	"github.com/fluentcare/parley/internal/transcriber"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const speechAPIEndpointPort = 443

type CloudSpeechConfig struct {
	ProjectID       string
	CredentialsJSON string
	Language        string
	Location        string
	Model           string
	SampleRate      int
}

// CloudSpeechTranscriber recognizes one utterance clip per call with the
// Speech-to-Text v2 synchronous API. The gRPC client is created lazily and
// reused across turns.
type CloudSpeechTranscriber struct {
	cfg CloudSpeechConfig

	mu     sync.Mutex
	client *speech.Client
}

func NewCloudSpeechTranscriber(cfg CloudSpeechConfig) *CloudSpeechTranscriber {
	cfg.Location = strings.TrimSpace(cfg.Location)
	cfg.Model = strings.TrimSpace(cfg.Model)
	return &CloudSpeechTranscriber{cfg: cfg}
}

func (t *CloudSpeechTranscriber) Transcribe(ctx context.Context, clip audio.Clip, language string) (transcriber.Transcription, error) {
	if language == "" {
		language = t.cfg.Language
	}
	client, err := t.getClient(ctx)
	if err != nil {
		return transcriber.Transcription{}, err
	}

	recognizer := fmt.Sprintf("projects/%s/locations/%s/recognizers/_", t.cfg.ProjectID, t.cfg.Location)
	resp, err := client.Recognize(ctx, &speechpb.RecognizeRequest{
		Recognizer: recognizer,
		Config: &speechpb.RecognitionConfig{
			Model:         t.cfg.Model,
			LanguageCodes: []string{language},
			DecodingConfig: &speechpb.RecognitionConfig_ExplicitDecodingConfig{
				ExplicitDecodingConfig: &speechpb.ExplicitDecodingConfig{
					Encoding:          speechpb.ExplicitDecodingConfig_LINEAR16,
					SampleRateHertz:   int32(clip.SampleRate),
					AudioChannelCount: 1,
				},
			},
			Features: &speechpb.RecognitionFeatures{},
		},
		AudioSource: &speechpb.RecognizeRequest_Content{
			Content: audio.EncodePCM16(clip.Samples),
		},
	})
	if err != nil {
		if st, ok := status.FromError(err); ok && st.Code() == codes.InvalidArgument {
			return transcriber.Transcription{}, fmt.Errorf("speech recognize rejected request: %w", err)
		}
		return transcriber.Transcription{}, fmt.Errorf("speech recognize: %w", err)
	}

	return collectTranscription(resp), nil
}

func collectTranscription(resp *speechpb.RecognizeResponse) transcriber.Transcription {
	var (
		parts    []string
		segments []transcriber.SegmentTiming
		confSum  float64
		count    int
		offset   time.Duration
	)
	for _, result := range resp.GetResults() {
		alts := result.GetAlternatives()
		if len(alts) == 0 {
			continue
		}
		best := alts[0]
		text := strings.TrimSpace(best.GetTranscript())
		if text == "" {
			continue
		}
		parts = append(parts, text)
		confSum += float64(best.GetConfidence())
		count++

		end := result.GetResultEndOffset().AsDuration()
		segments = append(segments, transcriber.SegmentTiming{
			Text:  text,
			Start: offset,
			End:   end,
		})
		offset = end
	}

	tx := transcriber.Transcription{
		Text:     strings.Join(parts, " "),
		Segments: segments,
	}
	if count > 0 {
		tx.Confidence = confSum / float64(count)
	}
	return tx
}

func (t *CloudSpeechTranscriber) getClient(ctx context.Context) (*speech.Client, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client != nil {
		return t.client, nil
	}

	creds, err := credentials.DetectDefault(&credentials.DetectOptions{
		CredentialsJSON: []byte(t.cfg.CredentialsJSON),
		Scopes:          []string{"https://www.googleapis.com/auth/cloud-platform"},
	})
	if err != nil {
		return nil, fmt.Errorf("detect credentials: %w", err)
	}

	opts := []option.ClientOption{
		option.WithAuthCredentials(creds),
	}
	if t.cfg.Location != "global" {
		opts = append(opts, option.WithEndpoint(fmt.Sprintf("%s-speech.googleapis.com:%d", t.cfg.Location, speechAPIEndpointPort)))
	}
	client, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create speech client: %w", err)
	}
	t.client = client
	return client, nil
}

// Close releases the underlying gRPC client.
func (t *CloudSpeechTranscriber) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client == nil {
		return nil
	}
	err := t.client.Close()
	t.client = nil
	return err
}
