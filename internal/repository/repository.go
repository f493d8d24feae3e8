package repository

import (
	"context"
	"time"
)

type CreateSessionInput struct {
	SessionID  string
	UserID     string
	ScenarioID string
	StartedAt  time.Time
}

type CompleteSessionInput struct {
	SessionID string
	EndedAt   time.Time
	EndReason string
}

type SessionRepository interface {
	CreateSession(ctx context.Context, input CreateSessionInput) (*Session, error)
	CompleteSession(ctx context.Context, input CompleteSessionInput) error
	TouchSessionActivity(ctx context.Context, sessionID string, at time.Time) error
	GetSession(ctx context.Context, sessionID string) (*Session, error)
	GetRunningSessionByUserScenario(ctx context.Context, userID, scenarioID string) (*Session, error)
}

type ScenarioRepository interface {
	GetScenario(ctx context.Context, scenarioID string) (*Scenario, error)
}

type TranscriptRepository interface {
	SaveTranscript(ctx context.Context, sessionID string, messages []TranscriptMessage) error
	ListTranscriptBySessionID(ctx context.Context, sessionID string) ([]TranscriptMessage, error)
}

type AnalysisRepository interface {
	SaveAnalysis(ctx context.Context, record AnalysisRecord) error
	GetAnalysis(ctx context.Context, sessionID string) (*AnalysisRecord, error)
}

type Repository interface {
	SessionRepository
	ScenarioRepository
	TranscriptRepository
	AnalysisRepository
}
