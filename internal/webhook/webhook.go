package webhook

import "context"

// AnalysisPayload is the JSON document delivered to the configured webhook
// once a completed session's analysis succeeds.
type AnalysisPayload struct {
	SessionID     string   `json:"session_id"`
	UserID        string   `json:"user_id"`
	ScenarioID    string   `json:"scenario_id"`
	Overall       float64  `json:"overall_score"`
	Fluency       float64  `json:"fluency_score"`
	Pronunciation float64  `json:"pronunciation_score"`
	Vocabulary    float64  `json:"vocabulary_score"`
	Grammar       float64  `json:"grammar_score"`
	Strengths     []string `json:"strengths"`
	Improvements  []string `json:"improvements"`
	Suggestions   []string `json:"suggestions"`
}

type Sender interface {
	SendAnalysis(ctx context.Context, payload AnalysisPayload) error
}
