package repository

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

var migrationStatements = []string{
	`DO $$ BEGIN CREATE TYPE session_status AS ENUM ('running', 'completed'); EXCEPTION WHEN duplicate_object THEN NULL; END $$`,
	`CREATE TABLE IF NOT EXISTS scenarios (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		title TEXT NOT NULL,
		persona_prompt TEXT NOT NULL,
		language TEXT NOT NULL DEFAULT '',
		voice TEXT NOT NULL DEFAULT '',
		difficulty TEXT NOT NULL DEFAULT 'intermediate',
		weight_fluency DOUBLE PRECISION NOT NULL DEFAULT 0,
		weight_pronunciation DOUBLE PRECISION NOT NULL DEFAULT 0,
		weight_vocabulary DOUBLE PRECISION NOT NULL DEFAULT 0,
		weight_grammar DOUBLE PRECISION NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id UUID PRIMARY KEY,
		user_id TEXT NOT NULL,
		scenario_id UUID NOT NULL REFERENCES scenarios(id),
		status session_status NOT NULL DEFAULT 'running',
		end_reason TEXT NOT NULL DEFAULT '',
		started_at TIMESTAMPTZ NOT NULL,
		last_activity_at TIMESTAMPTZ NOT NULL,
		ended_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_running ON sessions (user_id, scenario_id) WHERE status = 'running'`,
	`CREATE TABLE IF NOT EXISTS transcript_messages (
		session_id UUID NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		seq BIGINT NOT NULL,
		speaker TEXT NOT NULL,
		content TEXT NOT NULL,
		audio_ref TEXT NOT NULL DEFAULT '',
		confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
		spoken_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (session_id, seq)
	)`,
	`CREATE TABLE IF NOT EXISTS analysis_results (
		session_id UUID PRIMARY KEY REFERENCES sessions(id) ON DELETE CASCADE,
		status TEXT NOT NULL,
		fluency_score DOUBLE PRECISION NOT NULL DEFAULT 0,
		pronunciation_score DOUBLE PRECISION NOT NULL DEFAULT 0,
		vocabulary_score DOUBLE PRECISION NOT NULL DEFAULT 0,
		grammar_score DOUBLE PRECISION NOT NULL DEFAULT 0,
		overall_score DOUBLE PRECISION NOT NULL DEFAULT 0,
		strengths TEXT[] NOT NULL DEFAULT '{}',
		improvements TEXT[] NOT NULL DEFAULT '{}',
		suggestions TEXT[] NOT NULL DEFAULT '{}',
		mistakes JSONB NOT NULL DEFAULT '[]',
		generated_at TIMESTAMPTZ NOT NULL
	)`,
}

func RunMigration(ctx context.Context, pool *pgxpool.Pool) error {
	for _, s := range migrationStatements {
		stmt := strings.TrimSpace(s)
		if stmt == "" {
			continue
		}
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
