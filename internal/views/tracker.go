// Package views tracks story views exactly once per viewer per post and
// derives the unique-viewer aggregates the owner tooling and feed badges use.
package views

import (
	"context"
	"sort"
	"time"

	"github.com/flicker-social/backend/internal/apperrors"
	"github.com/flicker-social/backend/internal/models"
	"github.com/flicker-social/backend/internal/repositories"
	"github.com/jonboulle/clockwork"
)

// Tracker performs the idempotent view upsert and the read-side aggregation.
type Tracker struct {
	stories repositories.StoryRepository
	clock   clockwork.Clock
}

// NewTracker creates a Tracker. A nil clock falls back to the real one.
func NewTracker(stories repositories.StoryRepository, clock clockwork.Clock) *Tracker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Tracker{stories: stories, clock: clock}
}

// MarkPostAsViewed records a completed view for the viewer on the post.
// Calling it N times leaves exactly one record, stamped with the most recent
// call; completed never regresses because the tracker only ever writes true.
func (t *Tracker) MarkPostAsViewed(ctx context.Context, storyID, postID, viewerID string) error {
	view := models.ViewData{Timestamp: t.clock.Now(), Completed: true}
	return t.stories.UpsertView(ctx, storyID, postID, viewerID, view)
}

// GetStoryViewers lists unique viewers with at least one completed view.
// With postID set, only views on that post qualify; HasViewedAll always means
// a completed view on every active post of the story. Ordered most recent
// view first.
func (t *Tracker) GetStoryViewers(ctx context.Context, storyID, postID string) ([]models.StoryViewer, error) {
	story, err := t.stories.GetStoryByID(ctx, storyID)
	if err != nil {
		return nil, err
	}

	now := t.clock.Now()
	active := story.ActivePosts(now)

	if postID != "" {
		found := false
		for _, p := range story.Posts {
			if p.ID == postID {
				found = true
				break
			}
		}
		if !found {
			return nil, apperrors.New(apperrors.CodeNotFound, "post not found")
		}
	}

	latest := make(map[string]time.Time)
	completedCount := make(map[string]int)
	for _, p := range story.Posts {
		for viewerID, v := range p.Views {
			if !v.Completed {
				continue
			}
			if p.IsActive(now) {
				completedCount[viewerID]++
			}
			if postID != "" && p.ID != postID {
				continue
			}
			if v.Timestamp.After(latest[viewerID]) {
				latest[viewerID] = v.Timestamp
			}
		}
	}

	viewers := make([]models.StoryViewer, 0, len(latest))
	for viewerID, viewedAt := range latest {
		if viewedAt.IsZero() {
			continue
		}
		viewers = append(viewers, models.StoryViewer{
			UserID:       viewerID,
			ViewedAt:     viewedAt,
			HasViewedAll: len(active) > 0 && completedCount[viewerID] == len(active),
		})
	}

	sort.Slice(viewers, func(i, j int) bool {
		if viewers[i].ViewedAt.Equal(viewers[j].ViewedAt) {
			return viewers[i].UserID < viewers[j].UserID
		}
		return viewers[i].ViewedAt.After(viewers[j].ViewedAt)
	})
	return viewers, nil
}

// HasUnviewedPosts reports whether the story holds at least one active,
// privacy-visible post without a completed view from the viewer. Expired
// posts never count.
func HasUnviewedPosts(story *models.Story, viewerID string, now time.Time) bool {
	for i := range story.Posts {
		p := &story.Posts[i]
		if !p.IsActive(now) || !p.VisibleTo(viewerID) {
			continue
		}
		if !p.CompletedBy(viewerID) {
			return true
		}
	}
	return false
}
