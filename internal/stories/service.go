// Package stories composes the repository, expiry policy, view tracker and
// upload pipeline into the operations the transport layer exposes.
package stories

import (
	"context"
	"sort"

	"github.com/flicker-social/backend/internal/apperrors"
	"github.com/flicker-social/backend/internal/models"
	"github.com/flicker-social/backend/internal/repositories"
	"github.com/flicker-social/backend/internal/uploader"
	"github.com/flicker-social/backend/internal/views"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// Service is the story engine facade.
type Service struct {
	stories  repositories.StoryRepository
	users    repositories.UserRepository
	tracker  *views.Tracker
	pipeline *uploader.Pipeline
	clock    clockwork.Clock
	logger   zerolog.Logger
}

// NewService wires the engine together. A nil clock falls back to the real one.
func NewService(
	stories repositories.StoryRepository,
	users repositories.UserRepository,
	tracker *views.Tracker,
	pipeline *uploader.Pipeline,
	clock clockwork.Clock,
	logger zerolog.Logger,
) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{
		stories:  stories,
		users:    users,
		tracker:  tracker,
		pipeline: pipeline,
		clock:    clock,
		logger:   logger,
	}
}

// GetStories returns one feed entry per friend with at least one active post
// the viewer may see. Posts are ascending by timestamp within a story;
// stories are descending by latest post timestamp.
func (s *Service) GetStories(ctx context.Context, viewerKey string, friendKeys []string) ([]models.StoryWithUser, error) {
	raw, err := s.stories.GetStoriesByUserIDs(ctx, friendKeys)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	feed := make([]models.StoryWithUser, 0, len(raw))
	for _, story := range raw {
		visible := make([]models.StoryPost, 0, len(story.Posts))
		for _, p := range story.Posts {
			if p.IsActive(now) && p.VisibleTo(viewerKey) {
				visible = append(visible, p)
			}
		}
		if len(visible) == 0 {
			continue
		}
		sort.Slice(visible, func(i, j int) bool {
			return visible[i].Timestamp.Before(visible[j].Timestamp)
		})

		hasUnviewed := views.HasUnviewedPosts(&story, viewerKey, now)

		var author models.UserCompact
		if user, err := s.users.GetUserByStoryKey(story.UserID); err == nil {
			author = user.ToCompact()
		}

		entry := story
		entry.Posts = visible
		feed = append(feed, models.StoryWithUser{
			Story:               entry,
			Author:              author,
			HasUnviewedPosts:    hasUnviewed,
			TotalPosts:          len(visible),
			LatestPostTimestamp: visible[len(visible)-1].Timestamp,
		})
	}

	sort.Slice(feed, func(i, j int) bool {
		return feed[i].LatestPostTimestamp.After(feed[j].LatestPostTimestamp)
	})
	return feed, nil
}

// GetMyStory returns the caller's own story including expired posts, so the
// owner can inspect or delete them until they are removed outright.
func (s *Service) GetMyStory(ctx context.Context, ownerKey string) (*models.Story, error) {
	return s.stories.GetStoryByUserID(ctx, ownerKey)
}

// CreateStory delegates to the upload pipeline; the post becomes visible only
// after the media transfer fully succeeded.
func (s *Service) CreateStory(ctx context.Context, input uploader.CreateStoryInput, onProgress uploader.ProgressFunc) (*models.StoryPost, error) {
	return s.pipeline.CreateStory(ctx, input, onProgress)
}

// DeleteStoryPost removes a single post. Only the owner may delete; deleting
// an already-deleted post returns not_found.
func (s *Service) DeleteStoryPost(ctx context.Context, callerKey, storyID, postID string) error {
	story, err := s.stories.GetStoryByID(ctx, storyID)
	if err != nil {
		return err
	}
	if story.UserID != callerKey {
		return apperrors.New(apperrors.CodePermissionDenied, "only the owner may delete posts")
	}
	return s.stories.DeleteStoryPost(ctx, storyID, postID)
}

// DeleteStory removes the whole story. Owner-gated like DeleteStoryPost.
func (s *Service) DeleteStory(ctx context.Context, callerKey, storyID string) error {
	story, err := s.stories.GetStoryByID(ctx, storyID)
	if err != nil {
		return err
	}
	if story.UserID != callerKey {
		return apperrors.New(apperrors.CodePermissionDenied, "only the owner may delete their story")
	}
	return s.stories.DeleteStory(ctx, storyID)
}

// MarkPostAsViewed records a completed view for the caller. Idempotent.
func (s *Service) MarkPostAsViewed(ctx context.Context, viewerKey, storyID, postID string) error {
	return s.tracker.MarkPostAsViewed(ctx, storyID, postID, viewerKey)
}

// GetStoryViewers lists unique viewers. Owner tooling only.
func (s *Service) GetStoryViewers(ctx context.Context, callerKey, storyID, postID string) ([]models.StoryViewer, error) {
	story, err := s.stories.GetStoryByID(ctx, storyID)
	if err != nil {
		return nil, err
	}
	if story.UserID != callerKey {
		return nil, apperrors.New(apperrors.CodePermissionDenied, "only the owner may list viewers")
	}
	return s.tracker.GetStoryViewers(ctx, storyID, postID)
}

// LoadStory implements playback.StorySource so a session controller can be
// pointed straight at the service.
func (s *Service) LoadStory(ctx context.Context, storyID string) (*models.Story, error) {
	return s.stories.GetStoryByID(ctx, storyID)
}
