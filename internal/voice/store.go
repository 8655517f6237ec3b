package voice

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const (
	// newPostThreshold is how many posts beyond the analysed count must
	// accumulate before re-analysis.
	newPostThreshold = 5
	maxProfileAge    = 7 * 24 * time.Hour
)

// Repository is the persistence the Store needs. Implemented by
// storage.Store.
type Repository interface {
	// GetVoiceProfile returns nil, nil when the user has no profile.
	GetVoiceProfile(ctx context.Context, userID string) (*VoiceProfile, error)
	// UpsertVoiceProfile replaces the whole record, bumps its version and
	// returns what was stored. Concurrent upserts for one user are last
	// write wins.
	UpsertVoiceProfile(ctx context.Context, p VoiceProfile) (*VoiceProfile, error)
	// HasActiveRelationship reports whether an active ghostwriter/approver
	// link exists between a and b in either direction.
	HasActiveRelationship(ctx context.Context, a, b string) (bool, error)
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Store wraps a Repository with the profile lifecycle rules.
type Store struct {
	repo  Repository
	clock Clock
}

func NewStore(repo Repository) *Store {
	return &Store{repo: repo, clock: realClock{}}
}

// NewStoreWithClock creates a Store with a custom clock (for testing).
func NewStoreWithClock(repo Repository, clock Clock) *Store {
	return &Store{repo: repo, clock: clock}
}

// Get returns the user's profile, or nil when none exists yet.
func (s *Store) Get(ctx context.Context, userID string) (*VoiceProfile, error) {
	p, err := s.repo.GetVoiceProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading voice profile for %s: %w", userID, err)
	}
	return p, nil
}

// Upsert stores p as the user's profile, stamping updated_at.
func (s *Store) Upsert(ctx context.Context, userID string, p VoiceProfile) (*VoiceProfile, error) {
	now := s.clock.Now().UTC()
	p.UserID = userID
	p.UpdatedAt = now
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.PerformanceInsights == nil {
		p.PerformanceInsights = Insights{}
	}
	stored, err := s.repo.UpsertVoiceProfile(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("saving voice profile for %s: %w", userID, err)
	}
	return stored, nil
}

// ShouldUpdateProfile reports whether p is missing or stale relative to
// the sources now available.
func (s *Store) ShouldUpdateProfile(p *VoiceProfile, c Counts) bool {
	if p == nil {
		return true
	}
	src := p.AnalysisSources
	switch {
	case c.PastPosts > src.PastPostsCount+newPostThreshold:
		return true
	case c.TrainingDocs > src.TrainingDocsCount:
		return true
	case c.ContextGuideWords != src.ContextGuideWords:
		return true
	}
	return s.clock.Now().Sub(p.UpdatedAt) > maxProfileAge
}

// GetWithAccess returns targetUserID's profile on behalf of
// requestingUserID. Reading another user's profile requires an active
// relationship; without one it returns ErrAccessDenied. A nil profile with
// a nil error means access is allowed but no profile exists yet.
func (s *Store) GetWithAccess(ctx context.Context, requestingUserID, targetUserID string) (*VoiceProfile, error) {
	if err := s.CheckAccess(ctx, requestingUserID, targetUserID); err != nil {
		return nil, err
	}
	return s.Get(ctx, targetUserID)
}

// CheckAccess returns ErrAccessDenied unless requestingUserID may act with
// targetUserID's voice.
func (s *Store) CheckAccess(ctx context.Context, requestingUserID, targetUserID string) error {
	if targetUserID == "" || requestingUserID == targetUserID {
		return nil
	}
	ok, err := s.repo.HasActiveRelationship(ctx, requestingUserID, targetUserID)
	if err != nil {
		return fmt.Errorf("checking relationship %s -> %s: %w", requestingUserID, targetUserID, err)
	}
	if !ok {
		return ErrAccessDenied
	}
	return nil
}

// UpdatePerformanceInsights merges insights into the stored profile. It
// never creates a profile: with none stored it logs and returns nil.
func (s *Store) UpdatePerformanceInsights(ctx context.Context, userID string, insights Insights) (*VoiceProfile, error) {
	p, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		slog.Warn("no voice profile to attach performance insights to", "user_id", userID)
		return nil, nil
	}
	p.PerformanceInsights = p.PerformanceInsights.Merge(insights)
	return s.Upsert(ctx, userID, *p)
}
