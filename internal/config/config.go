package config

import (
	"fmt"
	"time"
)

type Config struct {
	Env      string
	HTTPAddr string

	DatabaseURL string

	GoogleCloudProjectID       string
	GoogleCloudCredentialsJSON string
	GoogleCloudSpeechLocation  string
	GoogleCloudSpeechModel     string

	GeminiAPIKey   string
	GeminiModel    string
	GeminiTTSModel string
	GeminiTTSVoice string

	TokenSigningSecret string
	DefaultLanguage    string
	AnalysisWebhookURL string

	SampleRate int

	// Session policy. These are product policy, not protocol constants,
	// so they stay configurable.
	ResumeWindowSeconds  int
	MaxSessionsPerUser   int
	MaxGlobalPipelines   int
	AdmissionQueueLength int
	MaxTurnsInFlight     int
	ContextWindowSize    int

	// Turn segmentation.
	VADThreshold   float64
	VADHoldMs      int
	MinTurnMs      int
	MaxTurnSeconds int

	// Per-stage pipeline timeouts.
	TranscribeTimeoutSeconds int
	GenerateTimeoutSeconds   int
	SynthesizeTimeoutSeconds int
}

func (c *Config) Validate() error {
	for _, req := range c.requiredFieldChecks() {
		if req.value == "" {
			return fmt.Errorf("%s is required", req.name)
		}
	}
	for _, p := range c.positiveFieldChecks() {
		if p.value <= 0 {
			return fmt.Errorf("%s must be positive, got %d", p.name, p.value)
		}
	}
	if c.VADThreshold <= 0 || c.VADThreshold >= 1 {
		return fmt.Errorf("VAD_THRESHOLD must be between 0 and 1 exclusive, got %f", c.VADThreshold)
	}
	if c.MinTurnMs >= c.MaxTurnSeconds*1000 {
		return fmt.Errorf("MIN_TURN_MS (%d) must be below MAX_TURN_SECONDS (%d)", c.MinTurnMs, c.MaxTurnSeconds)
	}
	return nil
}

type requiredEnvField struct {
	name  string
	value string
}

func (c *Config) requiredFieldChecks() []requiredEnvField {
	return []requiredEnvField{
		{name: "DATABASE_URL", value: c.DatabaseURL},
		{name: "GOOGLE_CLOUD_PROJECT_ID", value: c.GoogleCloudProjectID},
		{name: "GOOGLE_CLOUD_CREDENTIALS_JSON", value: c.GoogleCloudCredentialsJSON},
		{name: "GEMINI_API_KEY", value: c.GeminiAPIKey},
		{name: "TOKEN_SIGNING_SECRET", value: c.TokenSigningSecret},
		{name: "DEFAULT_LANGUAGE", value: c.DefaultLanguage},
	}
}

type positiveEnvField struct {
	name  string
	value int
}

func (c *Config) positiveFieldChecks() []positiveEnvField {
	return []positiveEnvField{
		{name: "SAMPLE_RATE", value: c.SampleRate},
		{name: "RESUME_WINDOW_SECONDS", value: c.ResumeWindowSeconds},
		{name: "MAX_SESSIONS_PER_USER", value: c.MaxSessionsPerUser},
		{name: "MAX_GLOBAL_PIPELINES", value: c.MaxGlobalPipelines},
		{name: "ADMISSION_QUEUE_LENGTH", value: c.AdmissionQueueLength},
		{name: "MAX_TURNS_IN_FLIGHT", value: c.MaxTurnsInFlight},
		{name: "CONTEXT_WINDOW_MESSAGES", value: c.ContextWindowSize},
		{name: "VAD_HOLD_MS", value: c.VADHoldMs},
		{name: "MIN_TURN_MS", value: c.MinTurnMs},
		{name: "MAX_TURN_SECONDS", value: c.MaxTurnSeconds},
		{name: "TRANSCRIBE_TIMEOUT_SECONDS", value: c.TranscribeTimeoutSeconds},
		{name: "GENERATE_TIMEOUT_SECONDS", value: c.GenerateTimeoutSeconds},
		{name: "SYNTHESIZE_TIMEOUT_SECONDS", value: c.SynthesizeTimeoutSeconds},
	}
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c *Config) ResumeWindow() time.Duration {
	return time.Duration(c.ResumeWindowSeconds) * time.Second
}

func (c *Config) VADHold() time.Duration {
	return time.Duration(c.VADHoldMs) * time.Millisecond
}

func (c *Config) MinTurnDuration() time.Duration {
	return time.Duration(c.MinTurnMs) * time.Millisecond
}

func (c *Config) MaxTurnDuration() time.Duration {
	return time.Duration(c.MaxTurnSeconds) * time.Second
}

func (c *Config) TranscribeTimeout() time.Duration {
	return time.Duration(c.TranscribeTimeoutSeconds) * time.Second
}

func (c *Config) GenerateTimeout() time.Duration {
	return time.Duration(c.GenerateTimeoutSeconds) * time.Second
}

func (c *Config) SynthesizeTimeout() time.Duration {
	return time.Duration(c.SynthesizeTimeoutSeconds) * time.Second
}
