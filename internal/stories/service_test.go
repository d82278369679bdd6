package stories_test

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/flicker-social/backend/internal/apperrors"
	"github.com/flicker-social/backend/internal/models"
	"github.com/flicker-social/backend/internal/playback"
	"github.com/flicker-social/backend/internal/repositories"
	"github.com/flicker-social/backend/internal/stories"
	"github.com/flicker-social/backend/internal/uploader"
	"github.com/flicker-social/backend/internal/views"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubUsers struct{}

func (stubUsers) CreateUser(*models.User) error                  { return nil }
func (stubUsers) GetUserByID(uint) (*models.User, error)         { return nil, apperrors.ErrNotFound }
func (stubUsers) GetUserByFirebaseUID(string) (*models.User, error) {
	return nil, apperrors.ErrNotFound
}
func (stubUsers) GetUserByStoryKey(key string) (*models.User, error) {
	return &models.User{ID: 1, Name: key, Username: key}, nil
}

type passthroughStorage struct{}

func (passthroughStorage) Upload(ctx context.Context, objectName, contentType string, file io.Reader, size int64) (string, error) {
	_, err := io.Copy(io.Discard, file)
	return "https://cdn.example.com/" + objectName, err
}
func (passthroughStorage) Delete(ctx context.Context, objectName string) error { return nil }

type fixture struct {
	repo    *repositories.MemoryStoryRepository
	clock   *clockwork.FakeClock
	tracker *views.Tracker
	service *stories.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := repositories.NewMemoryStoryRepository()
	clock := clockwork.NewFakeClock()
	tracker := views.NewTracker(repo, clock)
	pipeline := uploader.NewPipeline(repo, passthroughStorage{}, clock, zerolog.Nop())
	service := stories.NewService(repo, stubUsers{}, tracker, pipeline, clock, zerolog.Nop())
	return &fixture{repo: repo, clock: clock, tracker: tracker, service: service}
}

func (f *fixture) upload(t *testing.T, userID string) *models.StoryPost {
	t.Helper()
	post, err := f.service.CreateStory(context.Background(), uploader.CreateStoryInput{
		UserID:    userID,
		FileName:  "shot.jpg",
		Media:     strings.NewReader("media-bytes"),
		Size:      11,
		MediaType: models.MediaTypePhoto,
		Privacy:   models.PrivacyFriends,
	}, nil)
	require.NoError(t, err)
	return post
}

func TestFriendSeesFreshStoryWithUnviewedPosts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Scenario: alice uploads two posts, bob is her friend.
	f.upload(t, "alice")
	f.clock.Advance(time.Minute)
	f.upload(t, "alice")

	feed, err := f.service.GetStories(ctx, "bob", []string{"alice"})
	require.NoError(t, err)
	require.Len(t, feed, 1)

	entry := feed[0]
	assert.True(t, entry.HasUnviewedPosts)
	assert.Equal(t, 2, entry.TotalPosts)
	require.Len(t, entry.Story.Posts, 2)
	assert.True(t, entry.Story.Posts[0].Timestamp.Before(entry.Story.Posts[1].Timestamp),
		"posts ascend by timestamp within a story")
	assert.Equal(t, entry.Story.Posts[1].Timestamp, entry.LatestPostTimestamp)
}

func TestFeedOrdersStoriesByLatestPostDescending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.upload(t, "alice")
	f.clock.Advance(time.Hour)
	f.upload(t, "carol")

	feed, err := f.service.GetStories(ctx, "bob", []string{"alice", "carol"})
	require.NoError(t, err)
	require.Len(t, feed, 2)
	assert.Equal(t, "carol", feed[0].Story.UserID)
	assert.Equal(t, "alice", feed[1].Story.UserID)
}

func TestFeedExcludesExpiredPostsButMyStoryKeepsThem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.upload(t, "alice")
	f.clock.Advance(models.StoryTTL + time.Minute)

	feed, err := f.service.GetStories(ctx, "bob", []string{"alice"})
	require.NoError(t, err)
	assert.Empty(t, feed, "expired posts never reach the friend feed")

	mine, err := f.service.GetMyStory(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, mine.Posts, 1, "the owner still sees the expired post until deletion")
}

func TestFeedHonorsCustomPrivacy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.CreateStory(ctx, uploader.CreateStoryInput{
		UserID:        "alice",
		FileName:      "secret.jpg",
		Media:         strings.NewReader("x"),
		Size:          1,
		MediaType:     models.MediaTypePhoto,
		Privacy:       models.PrivacyCustom,
		CustomViewers: []string{"carol"},
	}, nil)
	require.NoError(t, err)

	feed, err := f.service.GetStories(ctx, "bob", []string{"alice"})
	require.NoError(t, err)
	assert.Empty(t, feed)

	feed, err = f.service.GetStories(ctx, "carol", []string{"alice"})
	require.NoError(t, err)
	assert.Len(t, feed, 1)
}

func TestViewedStoryClearsUnviewedFlag(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	post := f.upload(t, "alice")
	mine, err := f.service.GetMyStory(ctx, "alice")
	require.NoError(t, err)
	storyID := mine.ID.Hex()

	require.NoError(t, f.service.MarkPostAsViewed(ctx, "bob", storyID, post.ID))

	feed, err := f.service.GetStories(ctx, "bob", []string{"alice"})
	require.NoError(t, err)
	require.Len(t, feed, 1)
	assert.False(t, feed[0].HasUnviewedPosts)
}

func TestPlaybackSessionFeedsViewerList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Scenario: alice has two posts; bob plays the story to the end, letting
	// post 1 auto-advance and skipping past post 2 manually.
	f.upload(t, "alice")
	f.upload(t, "alice")
	mine, err := f.service.GetMyStory(ctx, "alice")
	require.NoError(t, err)
	storyID := mine.ID.Hex()

	ctrl := playback.NewController(f.service, f.tracker, "bob", playback.Options{
		Clock:       f.clock,
		Logger:      zerolog.Nop(),
		AutoAdvance: true,
	})
	require.NoError(t, ctrl.Start(ctx, storyID))

	f.clock.Advance(playback.PostDuration)
	require.True(t, ctrl.Tick(), "post 1 auto-advances to post 2")
	require.False(t, ctrl.Next(), "manual advance past the last post closes the session")
	require.Equal(t, playback.StateClosed, ctrl.State())
	ctrl.Wait()

	viewers, err := f.service.GetStoryViewers(ctx, "alice", storyID, "")
	require.NoError(t, err)
	require.Len(t, viewers, 1)
	assert.Equal(t, "bob", viewers[0].UserID)
	assert.True(t, viewers[0].HasViewedAll)
}

func TestDeleteStoryPostOwnerGatedAndIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	post := f.upload(t, "alice")
	mine, err := f.service.GetMyStory(ctx, "alice")
	require.NoError(t, err)
	storyID := mine.ID.Hex()

	err = f.service.DeleteStoryPost(ctx, "bob", storyID, post.ID)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodePermissionDenied))

	require.NoError(t, f.service.DeleteStoryPost(ctx, "alice", storyID, post.ID))

	err = f.service.DeleteStoryPost(ctx, "alice", storyID, post.ID)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound),
		"second delete reports not_found, not a silent success")
}

func TestDeleteStoryOwnerGated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.upload(t, "alice")
	mine, err := f.service.GetMyStory(ctx, "alice")
	require.NoError(t, err)
	storyID := mine.ID.Hex()

	err = f.service.DeleteStory(ctx, "mallory", storyID)
	assert.True(t, apperrors.IsCode(err, apperrors.CodePermissionDenied))

	require.NoError(t, f.service.DeleteStory(ctx, "alice", storyID))

	_, err = f.service.GetMyStory(ctx, "alice")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
}

func TestGetStoryViewersOwnerGated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.upload(t, "alice")
	mine, err := f.service.GetMyStory(ctx, "alice")
	require.NoError(t, err)

	_, err = f.service.GetStoryViewers(ctx, "bob", mine.ID.Hex(), "")
	assert.True(t, apperrors.IsCode(err, apperrors.CodePermissionDenied))
}
