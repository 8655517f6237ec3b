package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// --- Posts ---

func (s *Store) SavePost(ctx context.Context, p Post) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO posts (id, user_id, content, published_at, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.UserID, p.Content, formatNullTime(p.PublishedAt), formatTime(p.CreatedAt),
	)
	return err
}

// CountPosts returns how many posts userID has stored in total.
func (s *Store) CountPosts(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts WHERE user_id = ?`, userID).Scan(&n)
	return n, err
}

// ListPosts returns userID's posts, newest first.
func (s *Store) ListPosts(ctx context.Context, userID string, limit int) ([]Post, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, content, published_at, created_at
		FROM posts WHERE user_id = ?
		ORDER BY COALESCE(published_at, created_at) DESC, created_at DESC
		LIMIT ?`, userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Post
	for rows.Next() {
		var p Post
		var published sql.NullString
		var createdAt string
		if err := rows.Scan(&p.ID, &p.UserID, &p.Content, &published, &createdAt); err != nil {
			return nil, err
		}
		if p.PublishedAt, err = parseNullTime("published_at", published); err != nil {
			return nil, err
		}
		if p.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
			return nil, err
		}
		results = append(results, p)
	}
	return results, rows.Err()
}

// --- Training docs ---

func (s *Store) SaveTrainingDoc(ctx context.Context, d TrainingDoc) error {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO training_docs (id, user_id, file_name, extracted_text, word_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		d.ID, d.UserID, d.FileName, d.ExtractedText, d.WordCount, formatTime(d.CreatedAt),
	)
	return err
}

// ListTrainingDocs returns userID's documents, newest first.
func (s *Store) ListTrainingDocs(ctx context.Context, userID string) ([]TrainingDoc, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, file_name, extracted_text, word_count, created_at
		FROM training_docs WHERE user_id = ?
		ORDER BY created_at DESC`, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []TrainingDoc
	for rows.Next() {
		var d TrainingDoc
		var createdAt string
		if err := rows.Scan(&d.ID, &d.UserID, &d.FileName, &d.ExtractedText, &d.WordCount, &createdAt); err != nil {
			return nil, err
		}
		if d.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
			return nil, err
		}
		results = append(results, d)
	}
	return results, rows.Err()
}

// --- Context guides ---

func (s *Store) SetContextGuide(ctx context.Context, userID, content string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO context_guides (user_id, content, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET content = excluded.content, updated_at = excluded.updated_at`,
		userID, content, formatTime(time.Now()),
	)
	return err
}

// GetContextGuide returns ErrNotFound when the user has not written one.
func (s *Store) GetContextGuide(ctx context.Context, userID string) (ContextGuide, error) {
	var g ContextGuide
	var updatedAt string
	err := s.db.QueryRowContext(ctx, `SELECT user_id, content, updated_at FROM context_guides WHERE user_id = ?`, userID).
		Scan(&g.UserID, &g.Content, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ContextGuide{}, ErrNotFound
	}
	if err != nil {
		return ContextGuide{}, err
	}
	if g.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return ContextGuide{}, fmt.Errorf("context guide for %s: %w", userID, err)
	}
	return g, nil
}
