package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const relationshipColumns = `id, ghostwriter_id, approver_id, status, created_at, updated_at`

func (s *Store) CreateRelationship(ctx context.Context, r Relationship) error {
	now := time.Now()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	if r.Status == "" {
		r.Status = RelationshipPending
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO relationships (`+relationshipColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.GhostwriterID, r.ApproverID, r.Status, formatTime(r.CreatedAt), formatTime(now),
	)
	return err
}

func (s *Store) GetRelationship(ctx context.Context, id string) (Relationship, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+relationshipColumns+` FROM relationships WHERE id = ?`, id)
	r, err := scanRelationship(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Relationship{}, ErrNotFound
	}
	return r, err
}

// ListRelationships returns every relationship userID takes part in, in
// either role.
func (s *Store) ListRelationships(ctx context.Context, userID string) ([]Relationship, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+relationshipColumns+` FROM relationships
		WHERE ghostwriter_id = ? OR approver_id = ?
		ORDER BY created_at DESC`, userID, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Relationship
	for rows.Next() {
		r, err := scanRelationship(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// SetRelationshipStatus changes a relationship's status.
func (s *Store) SetRelationshipStatus(ctx context.Context, id, status string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE relationships SET status = ?, updated_at = ? WHERE id = ?`,
		status, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("updating relationship %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// HasActiveRelationship reports whether an active link exists between a
// and b, with either one as the ghostwriter.
func (s *Store) HasActiveRelationship(ctx context.Context, a, b string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM relationships
		WHERE status = 'active'
		  AND ((ghostwriter_id = ? AND approver_id = ?) OR (ghostwriter_id = ? AND approver_id = ?))`,
		a, b, b, a,
	).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func scanRelationship(row scanner) (Relationship, error) {
	var r Relationship
	var createdAt, updatedAt string
	if err := row.Scan(&r.ID, &r.GhostwriterID, &r.ApproverID, &r.Status, &createdAt, &updatedAt); err != nil {
		return Relationship{}, err
	}
	var err error
	if r.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return Relationship{}, err
	}
	if r.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return Relationship{}, err
	}
	return r, nil
}
