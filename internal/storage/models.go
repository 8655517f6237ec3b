package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Relationship statuses.
const (
	RelationshipActive  = "active"
	RelationshipPending = "pending"
	RelationshipRevoked = "revoked"
)

type Post struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Content     string     `json:"content"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

type TrainingDoc struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	FileName      string    `json:"file_name"`
	ExtractedText string    `json:"extracted_text"`
	WordCount     int       `json:"word_count"`
	CreatedAt     time.Time `json:"created_at"`
}

type ContextGuide struct {
	UserID    string    `json:"user_id"`
	Content   string    `json:"content"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Relationship links a ghostwriter to the approver whose voice they write in.
type Relationship struct {
	ID            string    `json:"id"`
	GhostwriterID string    `json:"ghostwriter_id"`
	ApproverID    string    `json:"approver_id"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Generation is the audit record of one pipeline run.
type Generation struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	TargetUserID   string    `json:"target_user_id"`
	UserRequest    string    `json:"user_request"`
	Action         string    `json:"action"`
	Outcome        string    `json:"outcome"`
	Content        string    `json:"content,omitempty"`
	QualityVerdict string    `json:"quality_verdict,omitempty"`
	QualityScore   *float64  `json:"quality_score,omitempty"`
	DurationMS     int64     `json:"duration_ms"`
	ResultJSON     string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
}

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
