// Package sources collects a user's voice material from the content store
// and turns uploaded documents into plain text.
package sources

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/cocreate/internal/storage"
	"github.com/kalambet/cocreate/internal/voice"
)

// MaxPastPosts bounds how many recent posts a gather returns.
const MaxPastPosts = 50

// Reader is the subset of storage.Store the Gatherer reads from.
type Reader interface {
	ListPosts(ctx context.Context, userID string, limit int) ([]storage.Post, error)
	CountPosts(ctx context.Context, userID string) (int, error)
	ListTrainingDocs(ctx context.Context, userID string) ([]storage.TrainingDoc, error)
	GetContextGuide(ctx context.Context, userID string) (storage.ContextGuide, error)
}

// Gatherer loads the three kinds of source material for a user.
type Gatherer struct {
	store Reader
}

func NewGatherer(store Reader) *Gatherer {
	return &Gatherer{store: store}
}

// Gather reads posts, training documents and the context guide concurrently.
// Only the newest MaxPastPosts posts are returned but the total is recorded
// so staleness checks see every post. A missing context guide is not an
// error; any other read failure is.
func (g *Gatherer) Gather(ctx context.Context, userID string) (voice.Sources, error) {
	var (
		posts []storage.Post
		total int
		docs  []storage.TrainingDoc
		guide string
	)

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		posts, err = g.store.ListPosts(ctx, userID, MaxPastPosts)
		if err != nil {
			return fmt.Errorf("listing posts: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		var err error
		total, err = g.store.CountPosts(ctx, userID)
		if err != nil {
			return fmt.Errorf("counting posts: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		var err error
		docs, err = g.store.ListTrainingDocs(ctx, userID)
		if err != nil {
			return fmt.Errorf("listing training docs: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		cg, err := g.store.GetContextGuide(ctx, userID)
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("loading context guide: %w", err)
		}
		guide = cg.Content
		return nil
	})
	if err := eg.Wait(); err != nil {
		return voice.Sources{}, fmt.Errorf("gathering sources for %s: %w", userID, err)
	}

	src := voice.Sources{ContextGuide: guide, TotalPastPosts: total}
	for _, p := range posts {
		src.PastPosts = append(src.PastPosts, voice.Post{Content: p.Content, PublishedAt: publishedOrCreated(p)})
	}
	for _, d := range docs {
		src.TrainingDocs = append(src.TrainingDocs, voice.TrainingDoc{
			FileName:      d.FileName,
			ExtractedText: d.ExtractedText,
			WordCount:     d.WordCount,
		})
	}
	return src, nil
}

func publishedOrCreated(p storage.Post) *time.Time {
	if p.PublishedAt != nil {
		return p.PublishedAt
	}
	t := p.CreatedAt
	return &t
}
