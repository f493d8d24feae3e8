package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	internalconfig "github.com/fluentcare/parley/internal/config"
)

type envConfig struct {
	Env      string `env:"ENV" envDefault:"production"`
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`

	DatabaseURL string `env:"DATABASE_URL,required"`

	GoogleCloudProjectID       string `env:"GOOGLE_CLOUD_PROJECT_ID,required"`
	GoogleCloudCredentialsJSON string `env:"GOOGLE_CLOUD_CREDENTIALS_JSON,required"`
	GoogleCloudSpeechLocation  string `env:"GOOGLE_CLOUD_SPEECH_LOCATION" envDefault:"global"`
	GoogleCloudSpeechModel     string `env:"GOOGLE_CLOUD_SPEECH_MODEL" envDefault:"chirp_3"`

	GeminiAPIKey   string `env:"GEMINI_API_KEY,required"`
	GeminiModel    string `env:"GEMINI_MODEL" envDefault:"gemini-2.5-flash"`
	GeminiTTSModel string `env:"GEMINI_TTS_MODEL" envDefault:"gemini-2.5-flash-preview-tts"`
	GeminiTTSVoice string `env:"GEMINI_TTS_VOICE" envDefault:"Kore"`

	TokenSigningSecret string `env:"TOKEN_SIGNING_SECRET,required"`
	DefaultLanguage    string `env:"DEFAULT_LANGUAGE" envDefault:"en-US"`
	AnalysisWebhookURL string `env:"ANALYSIS_WEBHOOK_URL"`

	SampleRate int `env:"SAMPLE_RATE" envDefault:"48000"`

	ResumeWindowSeconds  int `env:"RESUME_WINDOW_SECONDS" envDefault:"45"`
	MaxSessionsPerUser   int `env:"MAX_SESSIONS_PER_USER" envDefault:"3"`
	MaxGlobalPipelines   int `env:"MAX_GLOBAL_PIPELINES" envDefault:"32"`
	AdmissionQueueLength int `env:"ADMISSION_QUEUE_LENGTH" envDefault:"64"`
	MaxTurnsInFlight     int `env:"MAX_TURNS_IN_FLIGHT" envDefault:"2"`
	ContextWindowSize    int `env:"CONTEXT_WINDOW_MESSAGES" envDefault:"12"`

	VADThreshold   float64 `env:"VAD_THRESHOLD" envDefault:"0.015"`
	VADHoldMs      int     `env:"VAD_HOLD_MS" envDefault:"600"`
	MinTurnMs      int     `env:"MIN_TURN_MS" envDefault:"300"`
	MaxTurnSeconds int     `env:"MAX_TURN_SECONDS" envDefault:"30"`

	TranscribeTimeoutSeconds int `env:"TRANSCRIBE_TIMEOUT_SECONDS" envDefault:"10"`
	GenerateTimeoutSeconds   int `env:"GENERATE_TIMEOUT_SECONDS" envDefault:"20"`
	SynthesizeTimeoutSeconds int `env:"SYNTHESIZE_TIMEOUT_SECONDS" envDefault:"15"`
}

func Load() (*internalconfig.Config, error) {
	var raw envConfig
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("environment variables are invalid or missing: %w", err)
	}

	cfg := &internalconfig.Config{
		Env:                        raw.Env,
		HTTPAddr:                   raw.HTTPAddr,
		DatabaseURL:                raw.DatabaseURL,
		GoogleCloudProjectID:       raw.GoogleCloudProjectID,
		GoogleCloudCredentialsJSON: raw.GoogleCloudCredentialsJSON,
		GoogleCloudSpeechLocation:  raw.GoogleCloudSpeechLocation,
		GoogleCloudSpeechModel:     raw.GoogleCloudSpeechModel,
		GeminiAPIKey:               raw.GeminiAPIKey,
		GeminiModel:                raw.GeminiModel,
		GeminiTTSModel:             raw.GeminiTTSModel,
		GeminiTTSVoice:             raw.GeminiTTSVoice,
		TokenSigningSecret:         raw.TokenSigningSecret,
		DefaultLanguage:            raw.DefaultLanguage,
		AnalysisWebhookURL:         raw.AnalysisWebhookURL,
		SampleRate:                 raw.SampleRate,
		ResumeWindowSeconds:        raw.ResumeWindowSeconds,
		MaxSessionsPerUser:         raw.MaxSessionsPerUser,
		MaxGlobalPipelines:         raw.MaxGlobalPipelines,
		AdmissionQueueLength:       raw.AdmissionQueueLength,
		MaxTurnsInFlight:           raw.MaxTurnsInFlight,
		ContextWindowSize:          raw.ContextWindowSize,
		VADThreshold:               raw.VADThreshold,
		VADHoldMs:                  raw.VADHoldMs,
		MinTurnMs:                  raw.MinTurnMs,
		MaxTurnSeconds:             raw.MaxTurnSeconds,
		TranscribeTimeoutSeconds:   raw.TranscribeTimeoutSeconds,
		GenerateTimeoutSeconds:     raw.GenerateTimeoutSeconds,
		SynthesizeTimeoutSeconds:   raw.SynthesizeTimeoutSeconds,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
