package repository

import "time"

type SessionStatus string

const (
	SessionStatusRunning   SessionStatus = "running"
	SessionStatusCompleted SessionStatus = "completed"
)

type Session struct {
	ID             string
	UserID         string
	ScenarioID     string
	Status         SessionStatus
	EndReason      string
	StartedAt      time.Time
	LastActivityAt time.Time
	EndedAt        *time.Time
}

// Scenario is the practice setup read at session start: the counterpart
// persona prompt and the scoring policy for the final analysis.
type Scenario struct {
	ID            string
	Title         string
	PersonaPrompt string
	Language      string
	Voice         string
	Difficulty    string

	WeightFluency       float64
	WeightPronunciation float64
	WeightVocabulary    float64
	WeightGrammar       float64
}

type TranscriptMessage struct {
	SessionID  string
	Seq        uint64
	Speaker    string
	Text       string
	AudioRef   string
	Confidence float64
	SpokenAt   time.Time
}

type AnalysisRecord struct {
	SessionID     string
	Status        string
	Fluency       float64
	Pronunciation float64
	Vocabulary    float64
	Grammar       float64
	Overall       float64
	Strengths     []string
	Improvements  []string
	Suggestions   []string
	MistakesJSON  []byte
	GeneratedAt   time.Time
}
