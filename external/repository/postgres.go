package repository

import (
	"context"
	"time"

	"github.com/fluentcare/parley/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) repository.Repository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) CreateSession(ctx context.Context, input repository.CreateSessionInput) (*repository.Session, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO sessions (id, user_id, scenario_id, status, started_at, last_activity_at)
		 VALUES ($1, $2, $3, 'running', $4, $4)
		 RETURNING id, user_id, scenario_id, status, end_reason, started_at, last_activity_at, ended_at`,
		input.SessionID, input.UserID, input.ScenarioID, input.StartedAt)
	return scanSession(row)
}

func (r *PostgresRepository) CompleteSession(ctx context.Context, input repository.CompleteSessionInput) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE sessions SET status = 'completed', end_reason = $2, ended_at = $3 WHERE id = $1`,
		input.SessionID, input.EndReason, input.EndedAt)
	return err
}

func (r *PostgresRepository) TouchSessionActivity(ctx context.Context, sessionID string, at time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE sessions SET last_activity_at = $2 WHERE id = $1 AND status = 'running'`,
		sessionID, at)
	return err
}

func (r *PostgresRepository) GetSession(ctx context.Context, sessionID string) (*repository.Session, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, user_id, scenario_id, status, end_reason, started_at, last_activity_at, ended_at
		 FROM sessions WHERE id = $1`,
		sessionID)
	s, err := scanSession(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

func (r *PostgresRepository) GetRunningSessionByUserScenario(ctx context.Context, userID, scenarioID string) (*repository.Session, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, user_id, scenario_id, status, end_reason, started_at, last_activity_at, ended_at
		 FROM sessions WHERE user_id = $1 AND scenario_id = $2 AND status = 'running'
		 LIMIT 1`,
		userID, scenarioID)
	s, err := scanSession(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

func scanSession(row pgx.Row) (*repository.Session, error) {
	var s repository.Session
	var endedAt *time.Time
	err := row.Scan(&s.ID, &s.UserID, &s.ScenarioID, &s.Status, &s.EndReason,
		&s.StartedAt, &s.LastActivityAt, &endedAt)
	if err != nil {
		return nil, err
	}
	s.EndedAt = endedAt
	return &s, nil
}

func (r *PostgresRepository) GetScenario(ctx context.Context, scenarioID string) (*repository.Scenario, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, title, persona_prompt, language, voice, difficulty,
		        weight_fluency, weight_pronunciation, weight_vocabulary, weight_grammar
		 FROM scenarios WHERE id = $1`,
		scenarioID)
	var sc repository.Scenario
	err := row.Scan(&sc.ID, &sc.Title, &sc.PersonaPrompt, &sc.Language, &sc.Voice, &sc.Difficulty,
		&sc.WeightFluency, &sc.WeightPronunciation, &sc.WeightVocabulary, &sc.WeightGrammar)
	if err != nil {
		return nil, err
	}
	return &sc, nil
}

func (r *PostgresRepository) SaveTranscript(ctx context.Context, sessionID string, messages []repository.TranscriptMessage) error {
	batch := &pgx.Batch{}
	for _, msg := range messages {
		batch.Queue(
			`INSERT INTO transcript_messages (session_id, seq, speaker, content, audio_ref, confidence, spoken_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (session_id, seq) DO NOTHING`,
			sessionID, msg.Seq, msg.Speaker, msg.Text, msg.AudioRef, msg.Confidence, msg.SpokenAt)
	}
	return r.pool.SendBatch(ctx, batch).Close()
}

func (r *PostgresRepository) ListTranscriptBySessionID(ctx context.Context, sessionID string) ([]repository.TranscriptMessage, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT session_id, seq, speaker, content, audio_ref, confidence, spoken_at
		 FROM transcript_messages WHERE session_id = $1 ORDER BY seq ASC`,
		sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []repository.TranscriptMessage
	for rows.Next() {
		var msg repository.TranscriptMessage
		if err := rows.Scan(&msg.SessionID, &msg.Seq, &msg.Speaker, &msg.Text,
			&msg.AudioRef, &msg.Confidence, &msg.SpokenAt); err != nil {
			return nil, err
		}
		list = append(list, msg)
	}
	return list, rows.Err()
}

func (r *PostgresRepository) SaveAnalysis(ctx context.Context, record repository.AnalysisRecord) error {
	mistakes := record.MistakesJSON
	if len(mistakes) == 0 {
		mistakes = []byte("[]")
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO analysis_results (session_id, status, fluency_score, pronunciation_score,
		        vocabulary_score, grammar_score, overall_score, strengths, improvements,
		        suggestions, mistakes, generated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (session_id) DO UPDATE SET
		        status = EXCLUDED.status,
		        fluency_score = EXCLUDED.fluency_score,
		        pronunciation_score = EXCLUDED.pronunciation_score,
		        vocabulary_score = EXCLUDED.vocabulary_score,
		        grammar_score = EXCLUDED.grammar_score,
		        overall_score = EXCLUDED.overall_score,
		        strengths = EXCLUDED.strengths,
		        improvements = EXCLUDED.improvements,
		        suggestions = EXCLUDED.suggestions,
		        mistakes = EXCLUDED.mistakes,
		        generated_at = EXCLUDED.generated_at`,
		record.SessionID, record.Status, record.Fluency, record.Pronunciation,
		record.Vocabulary, record.Grammar, record.Overall, record.Strengths,
		record.Improvements, record.Suggestions, mistakes, record.GeneratedAt)
	return err
}

func (r *PostgresRepository) GetAnalysis(ctx context.Context, sessionID string) (*repository.AnalysisRecord, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT session_id, status, fluency_score, pronunciation_score, vocabulary_score,
		        grammar_score, overall_score, strengths, improvements, suggestions,
		        mistakes, generated_at
		 FROM analysis_results WHERE session_id = $1`,
		sessionID)
	var rec repository.AnalysisRecord
	err := row.Scan(&rec.SessionID, &rec.Status, &rec.Fluency, &rec.Pronunciation,
		&rec.Vocabulary, &rec.Grammar, &rec.Overall, &rec.Strengths,
		&rec.Improvements, &rec.Suggestions, &rec.MistakesJSON, &rec.GeneratedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}
