package repositories

import (
	"context"
	"sync"
	"time"

	"github.com/flicker-social/backend/internal/apperrors"
	"github.com/flicker-social/backend/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryStoryRepository is an in-memory StoryRepository with the same
// semantics as the Mongo implementation. Used by tests and local runs
// without a database.
type MemoryStoryRepository struct {
	mu      sync.RWMutex
	stories map[string]*models.Story // keyed by hex story id
	byUser  map[string]string        // user id -> story id
}

// NewMemoryStoryRepository creates an empty in-memory repository.
func NewMemoryStoryRepository() *MemoryStoryRepository {
	return &MemoryStoryRepository{
		stories: make(map[string]*models.Story),
		byUser:  make(map[string]string),
	}
}

func cloneStory(s *models.Story) *models.Story {
	out := *s
	out.Posts = make([]models.StoryPost, len(s.Posts))
	for i, p := range s.Posts {
		cp := p
		cp.Views = make(map[string]models.ViewData, len(p.Views))
		for k, v := range p.Views {
			cp.Views[k] = v
		}
		cp.CustomViewers = append([]string(nil), p.CustomViewers...)
		out.Posts[i] = cp
	}
	return &out
}

func (r *MemoryStoryRepository) GetStoriesByUserIDs(ctx context.Context, userIDs []string) ([]models.Story, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stories := make([]models.Story, 0, len(userIDs))
	for _, uid := range userIDs {
		if sid, ok := r.byUser[uid]; ok {
			stories = append(stories, *cloneStory(r.stories[sid]))
		}
	}
	return stories, nil
}

func (r *MemoryStoryRepository) GetStoryByUserID(ctx context.Context, userID string) (*models.Story, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sid, ok := r.byUser[userID]
	if !ok {
		return nil, apperrors.New(apperrors.CodeNotFound, "story not found")
	}
	return cloneStory(r.stories[sid]), nil
}

func (r *MemoryStoryRepository) GetStoryByID(ctx context.Context, storyID string) (*models.Story, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.stories[storyID]
	if !ok {
		return nil, apperrors.New(apperrors.CodeNotFound, "story not found")
	}
	return cloneStory(s), nil
}

func (r *MemoryStoryRepository) AppendPost(ctx context.Context, userID string, post models.StoryPost) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sid, ok := r.byUser[userID]
	if !ok {
		id := primitive.NewObjectID()
		sid = id.Hex()
		r.byUser[userID] = sid
		r.stories[sid] = &models.Story{ID: id, UserID: userID}
	}
	story := r.stories[sid]
	story.Posts = append(story.Posts, post)
	story.UpdatedAt = post.Timestamp
	return nil
}

func (r *MemoryStoryRepository) DeleteStoryPost(ctx context.Context, storyID, postID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	story, ok := r.stories[storyID]
	if !ok {
		return apperrors.New(apperrors.CodeNotFound, "story not found")
	}
	for i, p := range story.Posts {
		if p.ID == postID {
			story.Posts = append(story.Posts[:i], story.Posts[i+1:]...)
			return nil
		}
	}
	return apperrors.New(apperrors.CodeNotFound, "post not found")
}

func (r *MemoryStoryRepository) DeleteStory(ctx context.Context, storyID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	story, ok := r.stories[storyID]
	if !ok {
		return apperrors.New(apperrors.CodeNotFound, "story not found")
	}
	delete(r.byUser, story.UserID)
	delete(r.stories, storyID)
	return nil
}

func (r *MemoryStoryRepository) UpsertView(ctx context.Context, storyID, postID, viewerID string, view models.ViewData) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	story, ok := r.stories[storyID]
	if !ok {
		return apperrors.New(apperrors.CodeNotFound, "story not found")
	}
	for i := range story.Posts {
		if story.Posts[i].ID == postID {
			if story.Posts[i].Views == nil {
				story.Posts[i].Views = make(map[string]models.ViewData)
			}
			story.Posts[i].Views[viewerID] = view
			return nil
		}
	}
	return apperrors.New(apperrors.CodeNotFound, "post not found")
}

func (r *MemoryStoryRepository) MarkExpiredPosts(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, story := range r.stories {
		for i := range story.Posts {
			p := &story.Posts[i]
			if p.Status == models.PostStatusActive && !now.Before(p.ExpiresAt) {
				p.Status = models.PostStatusExpired
				n++
			}
		}
	}
	return n, nil
}
