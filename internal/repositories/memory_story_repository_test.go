package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/flicker-social/backend/internal/apperrors"
	"github.com/flicker-social/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func post(id string, expiresAt time.Time) models.StoryPost {
	return models.StoryPost{
		ID:        id,
		UserID:    "alice",
		MediaType: models.MediaTypePhoto,
		Timestamp: expiresAt.Add(-models.StoryTTL),
		ExpiresAt: expiresAt,
		Privacy:   models.PrivacyFriends,
		Status:    models.PostStatusActive,
		Views:     map[string]models.ViewData{},
	}
}

func TestAppendPostCreatesStoryOnFirstPost(t *testing.T) {
	repo := NewMemoryStoryRepository()
	ctx := context.Background()

	_, err := repo.GetStoryByUserID(ctx, "alice")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))

	now := time.Now()
	require.NoError(t, repo.AppendPost(ctx, "alice", post("p1", now.Add(models.StoryTTL))))
	require.NoError(t, repo.AppendPost(ctx, "alice", post("p2", now.Add(models.StoryTTL))))

	story, err := repo.GetStoryByUserID(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, story.ID.IsZero())
	assert.Len(t, story.Posts, 2)

	byID, err := repo.GetStoryByID(ctx, story.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, story.ID, byID.ID)
}

func TestReturnedStoriesAreDetachedCopies(t *testing.T) {
	repo := NewMemoryStoryRepository()
	ctx := context.Background()

	require.NoError(t, repo.AppendPost(ctx, "alice", post("p1", time.Now().Add(time.Hour))))

	first, err := repo.GetStoryByUserID(ctx, "alice")
	require.NoError(t, err)
	first.Posts[0].Views["bob"] = models.ViewData{Completed: true}
	first.Posts = nil

	second, err := repo.GetStoryByUserID(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, second.Posts, 1)
	assert.Empty(t, second.Posts[0].Views, "mutating a returned story must not leak into the store")
}

func TestUpsertViewLastWriteWins(t *testing.T) {
	repo := NewMemoryStoryRepository()
	ctx := context.Background()

	require.NoError(t, repo.AppendPost(ctx, "alice", post("p1", time.Now().Add(time.Hour))))
	story, err := repo.GetStoryByUserID(ctx, "alice")
	require.NoError(t, err)
	storyID := story.ID.Hex()

	early := time.Now()
	late := early.Add(time.Minute)
	require.NoError(t, repo.UpsertView(ctx, storyID, "p1", "bob", models.ViewData{Timestamp: early, Completed: true}))
	require.NoError(t, repo.UpsertView(ctx, storyID, "p1", "bob", models.ViewData{Timestamp: late, Completed: true}))

	got, err := repo.GetStoryByID(ctx, storyID)
	require.NoError(t, err)
	require.Len(t, got.Posts[0].Views, 1)
	assert.Equal(t, late, got.Posts[0].Views["bob"].Timestamp)

	err = repo.UpsertView(ctx, storyID, "missing", "bob", models.ViewData{})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
}

func TestDeleteStoryRemovesUserIndex(t *testing.T) {
	repo := NewMemoryStoryRepository()
	ctx := context.Background()

	require.NoError(t, repo.AppendPost(ctx, "alice", post("p1", time.Now().Add(time.Hour))))
	story, err := repo.GetStoryByUserID(ctx, "alice")
	require.NoError(t, err)

	require.NoError(t, repo.DeleteStory(ctx, story.ID.Hex()))

	_, err = repo.GetStoryByUserID(ctx, "alice")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
	err = repo.DeleteStory(ctx, story.ID.Hex())
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
}

func TestMarkExpiredPostsFlipsOnlyPastActive(t *testing.T) {
	repo := NewMemoryStoryRepository()
	ctx := context.Background()
	now := time.Now()

	stale := post("old", now.Add(-time.Minute))
	fresh := post("new", now.Add(time.Hour))
	already := post("done", now.Add(-time.Hour))
	already.Status = models.PostStatusExpired

	require.NoError(t, repo.AppendPost(ctx, "alice", stale))
	require.NoError(t, repo.AppendPost(ctx, "alice", fresh))
	require.NoError(t, repo.AppendPost(ctx, "alice", already))

	n, err := repo.MarkExpiredPosts(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "only the stale active post flips")

	story, err := repo.GetStoryByUserID(ctx, "alice")
	require.NoError(t, err)
	byID := map[string]models.PostStatus{}
	for _, p := range story.Posts {
		byID[p.ID] = p.Status
	}
	assert.Equal(t, models.PostStatusExpired, byID["old"])
	assert.Equal(t, models.PostStatusActive, byID["new"])
	assert.Equal(t, models.PostStatusExpired, byID["done"])

	n, err = repo.MarkExpiredPosts(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, n, "second sweep finds nothing to flip")
}
