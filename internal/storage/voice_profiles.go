package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kalambet/cocreate/internal/voice"
)

const voiceProfileColumns = `user_id, writing_style, tone, vocabulary, formatting, content_preferences,
	analysis_sources, performance_insights, version, created_at, updated_at`

// GetVoiceProfile returns nil, nil when userID has no profile.
func (s *Store) GetVoiceProfile(ctx context.Context, userID string) (*voice.VoiceProfile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+voiceProfileColumns+` FROM voice_profiles WHERE user_id = ?`, userID)
	p, err := scanVoiceProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// UpsertVoiceProfile replaces the whole profile row and increments its
// version. There is no version check: concurrent writers race and the last
// one wins.
func (s *Store) UpsertVoiceProfile(ctx context.Context, p voice.VoiceProfile) (*voice.VoiceProfile, error) {
	cols, err := encodeProfileColumns(p)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO voice_profiles (`+voiceProfileColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			writing_style = excluded.writing_style,
			tone = excluded.tone,
			vocabulary = excluded.vocabulary,
			formatting = excluded.formatting,
			content_preferences = excluded.content_preferences,
			analysis_sources = excluded.analysis_sources,
			performance_insights = excluded.performance_insights,
			version = voice_profiles.version + 1,
			updated_at = excluded.updated_at`,
		p.UserID, cols[0], cols[1], cols[2], cols[3], cols[4], cols[5], cols[6],
		formatTime(p.CreatedAt), formatTime(p.UpdatedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("upserting voice profile: %w", err)
	}
	return s.GetVoiceProfile(ctx, p.UserID)
}

func encodeProfileColumns(p voice.VoiceProfile) ([7]string, error) {
	var out [7]string
	insights := p.PerformanceInsights
	if insights == nil {
		insights = voice.Insights{}
	}
	for i, v := range []any{p.WritingStyle, p.Tone, p.Vocabulary, p.Formatting, p.ContentPreferences, p.AnalysisSources, insights} {
		b, err := json.Marshal(v)
		if err != nil {
			return out, fmt.Errorf("encoding voice profile column %d: %w", i, err)
		}
		out[i] = string(b)
	}
	return out, nil
}

func scanVoiceProfile(row scanner) (*voice.VoiceProfile, error) {
	var p voice.VoiceProfile
	var style, tone, vocab, format, prefs, sources, insights, createdAt, updatedAt string
	if err := row.Scan(&p.UserID, &style, &tone, &vocab, &format, &prefs, &sources, &insights, &p.Version, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	for _, c := range []struct {
		name string
		raw  string
		dst  any
	}{
		{"writing_style", style, &p.WritingStyle},
		{"tone", tone, &p.Tone},
		{"vocabulary", vocab, &p.Vocabulary},
		{"formatting", format, &p.Formatting},
		{"content_preferences", prefs, &p.ContentPreferences},
		{"analysis_sources", sources, &p.AnalysisSources},
		{"performance_insights", insights, &p.PerformanceInsights},
	} {
		if err := json.Unmarshal([]byte(c.raw), c.dst); err != nil {
			return nil, fmt.Errorf("decoding %s for %s: %w", c.name, p.UserID, err)
		}
	}
	var err error
	if p.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}
