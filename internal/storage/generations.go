package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

const generationColumns = `id, user_id, target_user_id, user_request, action, outcome, content,
	quality_verdict, quality_score, duration_ms, result_json, created_at`

func (s *Store) SaveGeneration(ctx context.Context, g Generation) error {
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now()
	}
	var score sql.NullFloat64
	if g.QualityScore != nil {
		score = sql.NullFloat64{Float64: *g.QualityScore, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO generations (`+generationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.UserID, g.TargetUserID, g.UserRequest, g.Action, g.Outcome, g.Content,
		g.QualityVerdict, score, g.DurationMS, g.ResultJSON, formatTime(g.CreatedAt),
	)
	return err
}

// GetGeneration returns ErrNotFound unless the record exists and belongs to
// userID.
func (s *Store) GetGeneration(ctx context.Context, userID, id string) (Generation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+generationColumns+` FROM generations WHERE id = ? AND user_id = ?`, id, userID)
	g, err := scanGeneration(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Generation{}, ErrNotFound
	}
	return g, err
}

// ListGenerations returns userID's most recent runs, newest first.
func (s *Store) ListGenerations(ctx context.Context, userID string, limit int) ([]Generation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+generationColumns+` FROM generations
		WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`, userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Generation
	for rows.Next() {
		g, err := scanGeneration(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, g)
	}
	return results, rows.Err()
}

func scanGeneration(row scanner) (Generation, error) {
	var g Generation
	var score sql.NullFloat64
	var createdAt string
	if err := row.Scan(&g.ID, &g.UserID, &g.TargetUserID, &g.UserRequest, &g.Action, &g.Outcome, &g.Content,
		&g.QualityVerdict, &score, &g.DurationMS, &g.ResultJSON, &createdAt); err != nil {
		return Generation{}, err
	}
	if score.Valid {
		v := score.Float64
		g.QualityScore = &v
	}
	var err error
	if g.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return Generation{}, err
	}
	return g, nil
}
