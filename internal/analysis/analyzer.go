package analysis

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fluentcare/parley/internal/history"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusComplete Status = "complete"
	StatusFailed   Status = "failed"
)

type Scores struct {
	Fluency       float64
	Pronunciation float64
	Vocabulary    float64
	Grammar       float64
	Overall       float64
}

type Mistake struct {
	Type        string
	Text        string
	Correction  string
	Explanation string
}

type Feedback struct {
	Strengths    []string
	Improvements []string
	Suggestions  []string
}

// Result is produced once per completed session and immutable thereafter.
type Result struct {
	SessionID   string
	Scores      Scores
	Feedback    Feedback
	Mistakes    []Mistake
	Status      Status
	GeneratedAt time.Time
}

// Weights combine the sub-scores into the overall score. A zero weight is
// an explicit opt-out of that category, never a silent omission.
type Weights struct {
	Fluency       float64
	Pronunciation float64
	Vocabulary    float64
	Grammar       float64
}

func DefaultWeights() Weights {
	return Weights{Fluency: 0.3, Pronunciation: 0.25, Vocabulary: 0.25, Grammar: 0.2}
}

func (w Weights) sum() float64 {
	return w.Fluency + w.Pronunciation + w.Vocabulary + w.Grammar
}

var fillerWords = map[string]struct{}{
	"um": {}, "uh": {}, "er": {}, "hmm": {}, "like": {}, "basically": {},
}

// Analyzer scores a sealed transcript. The procedure is deterministic: the
// same transcript and weights always produce the same Result.
type Analyzer struct{}

func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

func (a *Analyzer) Analyze(sessionID string, transcript []history.Message, weights Weights) (Result, error) {
	if weights.sum() <= 0 {
		return Result{}, fmt.Errorf("scoring weights for session %s sum to zero", sessionID)
	}

	var (
		userTexts   []string
		confSum     float64
		confCount   int
	)
	for _, m := range transcript {
		if m.Speaker != history.SpeakerUser {
			continue
		}
		userTexts = append(userTexts, m.Text)
		if m.Confidence > 0 {
			confSum += m.Confidence
			confCount++
		}
	}

	stats := collectStats(userTexts)
	mistakes := detectMistakes(userTexts)

	scores := Scores{
		Fluency:       fluencyScore(stats),
		Pronunciation: pronunciationScore(confSum, confCount),
		Vocabulary:    vocabularyScore(stats),
		Grammar:       grammarScore(stats, len(mistakes)),
	}
	scores.Overall = (scores.Fluency*weights.Fluency +
		scores.Pronunciation*weights.Pronunciation +
		scores.Vocabulary*weights.Vocabulary +
		scores.Grammar*weights.Grammar) / weights.sum()

	return Result{
		SessionID:   sessionID,
		Scores:      scores,
		Feedback:    buildFeedback(scores, stats),
		Mistakes:    mistakes,
		Status:      StatusComplete,
		GeneratedAt: time.Now(),
	}, nil
}

type transcriptStats struct {
	turnCount    int
	wordCount    int
	uniqueWords  int
	fillerCount  int
	avgTurnWords float64
}

func collectStats(texts []string) transcriptStats {
	stats := transcriptStats{turnCount: len(texts)}
	unique := make(map[string]struct{})
	for _, t := range texts {
		for _, w := range strings.Fields(t) {
			stats.wordCount++
			norm := strings.ToLower(strings.Trim(w, ".,!?;:\"'"))
			if norm == "" {
				continue
			}
			unique[norm] = struct{}{}
			if _, ok := fillerWords[norm]; ok {
				stats.fillerCount++
			}
		}
	}
	stats.uniqueWords = len(unique)
	if stats.turnCount > 0 {
		stats.avgTurnWords = float64(stats.wordCount) / float64(stats.turnCount)
	}
	return stats
}

func fluencyScore(s transcriptStats) float64 {
	if s.wordCount == 0 {
		return 0
	}
	score := 55 + s.avgTurnWords*2.5
	if s.wordCount > 0 {
		score -= float64(s.fillerCount) / float64(s.wordCount) * 200
	}
	return clamp(score)
}

func pronunciationScore(confSum float64, confCount int) float64 {
	if confCount == 0 {
		// Nothing recognized with a confidence signal.
		return 0
	}
	return clamp(confSum / float64(confCount) * 100)
}

func vocabularyScore(s transcriptStats) float64 {
	if s.wordCount == 0 {
		return 0
	}
	typeToken := float64(s.uniqueWords) / float64(s.wordCount)
	score := typeToken*90 + float64(min(s.uniqueWords, 120))/120*40
	return clamp(score)
}

func grammarScore(s transcriptStats, mistakeCount int) float64 {
	if s.wordCount == 0 {
		return 0
	}
	return clamp(95 - float64(mistakeCount)*8)
}

func detectMistakes(texts []string) []Mistake {
	var mistakes []Mistake
	for _, t := range texts {
		words := strings.Fields(t)
		for i := 1; i < len(words); i++ {
			prev := strings.ToLower(strings.Trim(words[i-1], ".,!?"))
			cur := strings.ToLower(strings.Trim(words[i], ".,!?"))
			if prev != "" && prev == cur {
				mistakes = append(mistakes, Mistake{
					Type:        "repetition",
					Text:        words[i-1] + " " + words[i],
					Correction:  words[i],
					Explanation: "the word is repeated back to back",
				})
			}
		}
		for _, w := range words {
			if w == "i" || strings.HasPrefix(w, "i'") {
				mistakes = append(mistakes, Mistake{
					Type:        "capitalization",
					Text:        w,
					Correction:  strings.ToUpper(w[:1]) + w[1:],
					Explanation: "the pronoun I is always capitalized",
				})
			}
		}
	}
	return mistakes
}

func buildFeedback(scores Scores, stats transcriptStats) Feedback {
	type category struct {
		name  string
		score float64
	}
	cats := []category{
		{"fluency", scores.Fluency},
		{"pronunciation", scores.Pronunciation},
		{"vocabulary", scores.Vocabulary},
		{"grammar", scores.Grammar},
	}
	sort.SliceStable(cats, func(i, j int) bool { return cats[i].score > cats[j].score })

	fb := Feedback{}
	if stats.wordCount == 0 {
		fb.Improvements = append(fb.Improvements, "no user speech was recognized in this session")
		fb.Suggestions = append(fb.Suggestions, "check your microphone and try a longer conversation")
		return fb
	}
	for _, c := range cats {
		switch {
		case c.score >= 75:
			fb.Strengths = append(fb.Strengths, "strong "+c.name)
		case c.score < 55:
			fb.Improvements = append(fb.Improvements, c.name+" needs focused practice")
			fb.Suggestions = append(fb.Suggestions, suggestionFor(c.name))
		}
	}
	return fb
}

func suggestionFor(category string) string {
	switch category {
	case "fluency":
		return "practice longer answers and reduce filler words"
	case "pronunciation":
		return "shadow native audio and record yourself for comparison"
	case "vocabulary":
		return "rephrase answers using synonyms to widen active vocabulary"
	case "grammar":
		return "review the flagged mistakes and repeat the corrected sentences aloud"
	default:
		return "keep practicing regularly"
	}
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
