package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/flicker-social/backend/internal/apperrors"
	"github.com/flicker-social/backend/internal/models"
	"github.com/flicker-social/backend/internal/repositories"
	"github.com/flicker-social/backend/internal/stories"
	"github.com/flicker-social/backend/internal/uploader"
	"github.com/flicker-social/backend/internal/views"
	"github.com/golang-jwt/jwt/v4"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUserRepo struct {
	users map[uint]*models.User
}

func (f *fakeUserRepo) CreateUser(u *models.User) error { return nil }
func (f *fakeUserRepo) GetUserByID(id uint) (*models.User, error) {
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, apperrors.ErrNotFound
}
func (f *fakeUserRepo) GetUserByFirebaseUID(string) (*models.User, error) {
	return nil, apperrors.ErrNotFound
}
func (f *fakeUserRepo) GetUserByStoryKey(key string) (*models.User, error) {
	for _, u := range f.users {
		if u.StoryKey() == key {
			return u, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

type fakeFriendRepo struct {
	friends map[uint][]models.User
}

func (f *fakeFriendRepo) GetUserFriends(userID uint) ([]models.User, error) {
	return f.friends[userID], nil
}
func (f *fakeFriendRepo) AreFriends(a, b uint) (bool, error) {
	for _, u := range f.friends[a] {
		if u.ID == b {
			return true, nil
		}
	}
	return false, nil
}

type discardStorage struct{}

func (discardStorage) Upload(ctx context.Context, objectName, contentType string, file io.Reader, size int64) (string, error) {
	if _, err := io.Copy(io.Discard, file); err != nil {
		return "", err
	}
	return "https://cdn.example.com/" + objectName, nil
}
func (discardStorage) Delete(context.Context, string) error { return nil }

type handlerFixture struct {
	handler *StoryHandler
	repo    *repositories.MemoryStoryRepository
	service *stories.Service
	clock   *clockwork.FakeClock
	echo    *echo.Echo
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	repo := repositories.NewMemoryStoryRepository()
	clock := clockwork.NewFakeClock()
	tracker := views.NewTracker(repo, clock)
	pipeline := uploader.NewPipeline(repo, discardStorage{}, clock, zerolog.Nop())

	alice := &models.User{ID: 1, Name: "Alice", Username: "alice"}
	bob := &models.User{ID: 2, Name: "Bob", Username: "bob"}
	userRepo := &fakeUserRepo{users: map[uint]*models.User{1: alice, 2: bob}}
	friendRepo := &fakeFriendRepo{friends: map[uint][]models.User{
		1: {*bob},
		2: {*alice},
	}}

	service := stories.NewService(repo, userRepo, tracker, pipeline, clock, zerolog.Nop())
	handler := NewStoryHandler(service, userRepo, friendRepo, zerolog.Nop())
	return &handlerFixture{handler: handler, repo: repo, service: service, clock: clock, echo: echo.New()}
}

// do runs a handler as the given authenticated user and decodes the response.
func (f *handlerFixture) do(t *testing.T, userID uint, req *http.Request, pathNames []string, pathValues []string, fn echo.HandlerFunc) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	c := f.echo.NewContext(req, rec)
	c.SetParamNames(pathNames...)
	c.SetParamValues(pathValues...)
	if userID != 0 {
		c.Set("user", &models.JwtCustomClaims{UserID: userID, RegisteredClaims: jwt.RegisteredClaims{}})
	}

	err := fn(c)
	if err != nil {
		f.echo.HTTPErrorHandler(err, c)
	}

	var body map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func multipartUpload(t *testing.T, fields map[string]string, fileName, payload string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("media", fileName)
	require.NoError(t, err)
	_, err = part.Write([]byte(payload))
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/stories", &buf)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	return req
}

func TestCreateStoryEndpoint(t *testing.T) {
	f := newHandlerFixture(t)

	req := multipartUpload(t, map[string]string{"media_type": "photo", "text": "hello"}, "beach.jpg", "jpegbytes")
	rec, body := f.do(t, 1, req, nil, nil, f.handler.CreateStory)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, true, body["success"])
	post := body["data"].(map[string]any)["post"].(map[string]any)
	assert.Equal(t, "photo", post["media_type"])
	assert.Equal(t, "active", post["status"])
	assert.NotEmpty(t, post["id"])
}

func TestCreateStoryRejectsBadMediaType(t *testing.T) {
	f := newHandlerFixture(t)

	req := multipartUpload(t, map[string]string{"media_type": "gif"}, "x.gif", "bytes")
	rec, _ := f.do(t, 1, req, nil, nil, f.handler.CreateStory)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateStoryRequiresAuth(t *testing.T) {
	f := newHandlerFixture(t)

	req := multipartUpload(t, map[string]string{"media_type": "photo"}, "x.jpg", "bytes")
	rec, _ := f.do(t, 0, req, nil, nil, f.handler.CreateStory)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetStoriesReturnsFriendFeed(t *testing.T) {
	f := newHandlerFixture(t)

	// Bob (id 2, story key "2") uploads; Alice fetches her feed.
	req := multipartUpload(t, map[string]string{"media_type": "photo"}, "b.jpg", "bytes")
	rec, _ := f.do(t, 2, req, nil, nil, f.handler.CreateStory)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, body := f.do(t, 1, httptest.NewRequest(http.MethodGet, "/api/v1/stories", nil), nil, nil, f.handler.GetStories)
	require.Equal(t, http.StatusOK, rec.Code)

	feed := body["data"].(map[string]any)["stories"].([]any)
	require.Len(t, feed, 1)
	entry := feed[0].(map[string]any)
	assert.Equal(t, true, entry["has_unviewed_posts"])
	assert.Equal(t, "bob", entry["author"].(map[string]any)["username"])
}

func TestGetMyStoryEmptyIsNotAnError(t *testing.T) {
	f := newHandlerFixture(t)

	rec, body := f.do(t, 1, httptest.NewRequest(http.MethodGet, "/api/v1/stories/me", nil), nil, nil, f.handler.GetMyStory)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Nil(t, body["data"].(map[string]any)["story"])
}

func TestMarkViewedAndViewersEndpoints(t *testing.T) {
	f := newHandlerFixture(t)
	ctx := context.Background()

	req := multipartUpload(t, map[string]string{"media_type": "photo"}, "a.jpg", "bytes")
	rec, _ := f.do(t, 1, req, nil, nil, f.handler.CreateStory)
	require.Equal(t, http.StatusCreated, rec.Code)

	story, err := f.service.GetMyStory(ctx, "1")
	require.NoError(t, err)
	storyID := story.ID.Hex()
	postID := story.Posts[0].ID

	// Bob marks the post as viewed.
	rec, _ = f.do(t, 2, httptest.NewRequest(http.MethodPost, "/", nil),
		[]string{"id", "postId"}, []string{storyID, postID}, f.handler.MarkPostViewed)
	require.Equal(t, http.StatusOK, rec.Code)

	// Alice, the owner, lists viewers.
	rec, body := f.do(t, 1, httptest.NewRequest(http.MethodGet, "/", nil),
		[]string{"id"}, []string{storyID}, f.handler.GetStoryViewers)
	require.Equal(t, http.StatusOK, rec.Code)
	viewers := body["data"].(map[string]any)["viewers"].([]any)
	require.Len(t, viewers, 1)
	viewer := viewers[0].(map[string]any)
	assert.Equal(t, "2", viewer["user_id"])
	assert.Equal(t, true, viewer["has_viewed_all"])

	// Bob is not the owner and may not list viewers.
	rec, body = f.do(t, 2, httptest.NewRequest(http.MethodGet, "/", nil),
		[]string{"id"}, []string{storyID}, f.handler.GetStoryViewers)
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, string(apperrors.CodePermissionDenied), errorCode(t, body))
}

func TestDeleteStoryPostEndpoint(t *testing.T) {
	f := newHandlerFixture(t)
	ctx := context.Background()

	req := multipartUpload(t, map[string]string{"media_type": "photo"}, "a.jpg", "bytes")
	rec, _ := f.do(t, 1, req, nil, nil, f.handler.CreateStory)
	require.Equal(t, http.StatusCreated, rec.Code)

	story, err := f.service.GetMyStory(ctx, "1")
	require.NoError(t, err)
	storyID := story.ID.Hex()
	postID := story.Posts[0].ID

	rec, _ = f.do(t, 1, httptest.NewRequest(http.MethodDelete, "/", nil),
		[]string{"id", "postId"}, []string{storyID, postID}, f.handler.DeleteStoryPost)
	require.Equal(t, http.StatusOK, rec.Code)

	// Deleting the same post again maps to 404.
	rec, body := f.do(t, 1, httptest.NewRequest(http.MethodDelete, "/", nil),
		[]string{"id", "postId"}, []string{storyID, postID}, f.handler.DeleteStoryPost)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, string(apperrors.CodeNotFound), errorCode(t, body))
}

func TestExpiredPostHiddenFromFeedEndpoint(t *testing.T) {
	f := newHandlerFixture(t)

	req := multipartUpload(t, map[string]string{"media_type": "photo"}, "a.jpg", "bytes")
	rec, _ := f.do(t, 2, req, nil, nil, f.handler.CreateStory)
	require.Equal(t, http.StatusCreated, rec.Code)

	f.clock.Advance(models.StoryTTL)

	rec, body := f.do(t, 1, httptest.NewRequest(http.MethodGet, "/api/v1/stories", nil), nil, nil, f.handler.GetStories)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, body["data"].(map[string]any)["stories"])
}

// errorCode pulls the taxonomy code out of an error response body. Echo
// serializes a non-string HTTPError message as the body itself, so the code
// sits at the top level.
func errorCode(t *testing.T, body map[string]any) string {
	t.Helper()
	code, ok := body["code"].(string)
	require.True(t, ok, "expected structured error payload, got %v", body)
	return code
}

func TestCustomViewersFormField(t *testing.T) {
	f := newHandlerFixture(t)
	ctx := context.Background()

	req := multipartUpload(t, map[string]string{
		"media_type":     "photo",
		"privacy":        "custom",
		"custom_viewers": "2,7",
	}, "a.jpg", "bytes")
	rec, _ := f.do(t, 1, req, nil, nil, f.handler.CreateStory)
	require.Equal(t, http.StatusCreated, rec.Code)

	story, err := f.service.GetMyStory(ctx, "1")
	require.NoError(t, err)
	require.Len(t, story.Posts, 1)
	assert.Equal(t, models.PrivacyCustom, story.Posts[0].Privacy)
	assert.Equal(t, []string{"2", "7"}, story.Posts[0].CustomViewers)
}
