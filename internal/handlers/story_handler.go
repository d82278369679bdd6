package handlers

import (
	"net/http"
	"strings"

	"github.com/flicker-social/backend/internal/apperrors"
	"github.com/flicker-social/backend/internal/models"
	"github.com/flicker-social/backend/internal/repositories"
	"github.com/flicker-social/backend/internal/stories"
	"github.com/flicker-social/backend/internal/uploader"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// StoryHandler handles story-related HTTP requests
type StoryHandler struct {
	service        *stories.Service
	userRepository repositories.UserRepository
	friendships    repositories.FriendshipRepository
	logger         zerolog.Logger
}

// NewStoryHandler creates a new StoryHandler
func NewStoryHandler(service *stories.Service, userRepo repositories.UserRepository, friendships repositories.FriendshipRepository, logger zerolog.Logger) *StoryHandler {
	return &StoryHandler{
		service:        service,
		userRepository: userRepo,
		friendships:    friendships,
		logger:         logger,
	}
}

// RegisterStoryRoutes registers story-related routes
func (h *StoryHandler) RegisterStoryRoutes(g *echo.Group) {
	g.GET("/stories", h.GetStories)
	g.GET("/stories/me", h.GetMyStory)
	g.POST("/stories", h.CreateStory)
	g.DELETE("/stories/:id", h.DeleteStory)
	g.DELETE("/stories/:id/posts/:postId", h.DeleteStoryPost)
	g.POST("/stories/:id/posts/:postId/viewed", h.MarkPostViewed)
	g.GET("/stories/:id/viewers", h.GetStoryViewers)
}

func (h *StoryHandler) currentUser(c echo.Context) (*models.User, error) {
	id := getUserIDFromContext(c)
	if id == 0 {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}
	user, err := h.userRepository.GetUserByID(id)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "User not found")
	}
	return user, nil
}

// GetStories returns the friend story feed for the current user.
func (h *StoryHandler) GetStories(c echo.Context) error {
	user, err := h.currentUser(c)
	if err != nil {
		return err
	}

	friends, err := h.friendships.GetUserFriends(user.ID)
	if err != nil {
		return httpError(err)
	}
	friendKeys := make([]string, len(friends))
	for i := range friends {
		friendKeys[i] = friends[i].StoryKey()
	}

	feed, err := h.service.GetStories(c.Request().Context(), user.StoryKey(), friendKeys)
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"data":    echo.Map{"stories": feed},
	})
}

// GetMyStory returns the caller's own story, expired posts included.
func (h *StoryHandler) GetMyStory(c echo.Context) error {
	user, err := h.currentUser(c)
	if err != nil {
		return err
	}

	story, err := h.service.GetMyStory(c.Request().Context(), user.StoryKey())
	if err != nil {
		if apperrors.IsCode(err, apperrors.CodeNotFound) {
			return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"story": nil}})
		}
		return httpError(err)
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"story": story}})
}

// CreateStory accepts a multipart upload and creates a post through the
// pipeline. The story changes only if the media transfer fully succeeds.
func (h *StoryHandler) CreateStory(c echo.Context) error {
	user, err := h.currentUser(c)
	if err != nil {
		return err
	}

	fileHeader, err := c.FormFile("media")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Missing media file")
	}

	req := models.CreateStoryRequest{
		MediaURI:  fileHeader.Filename,
		MediaType: c.FormValue("media_type"),
		Text:      c.FormValue("text"),
		Privacy:   c.FormValue("privacy"),
	}
	if raw := c.FormValue("custom_viewers"); raw != "" {
		req.CustomViewers = strings.Split(raw, ",")
	}
	if req.Privacy == "" {
		req.Privacy = string(models.PrivacyFriends)
	}

	validate := validator.New()
	if err := validate.Struct(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	file, err := fileHeader.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Cannot read media file")
	}
	defer file.Close()

	post, err := h.service.CreateStory(c.Request().Context(), uploader.CreateStoryInput{
		UserID:        user.StoryKey(),
		FileName:      fileHeader.Filename,
		Media:         file,
		Size:          fileHeader.Size,
		MediaType:     models.MediaType(req.MediaType),
		Text:          req.Text,
		Privacy:       models.Privacy(req.Privacy),
		CustomViewers: req.CustomViewers,
	}, func(p uploader.Progress) {
		h.logger.Debug().Int("progress", p.Progress).Str("status", string(p.Status)).Str("user_id", user.StoryKey()).Msg("story upload progress")
	})
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusCreated, echo.Map{"success": true, "data": echo.Map{"post": post}})
}

// DeleteStory removes the caller's whole story.
func (h *StoryHandler) DeleteStory(c echo.Context) error {
	user, err := h.currentUser(c)
	if err != nil {
		return err
	}

	if err := h.service.DeleteStory(c.Request().Context(), user.StoryKey(), c.Param("id")); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"deleted": true}})
}

// DeleteStoryPost removes a single post from the caller's story.
func (h *StoryHandler) DeleteStoryPost(c echo.Context) error {
	user, err := h.currentUser(c)
	if err != nil {
		return err
	}

	if err := h.service.DeleteStoryPost(c.Request().Context(), user.StoryKey(), c.Param("id"), c.Param("postId")); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"deleted": true}})
}

// MarkPostViewed records a completed view for the caller. Idempotent.
func (h *StoryHandler) MarkPostViewed(c echo.Context) error {
	user, err := h.currentUser(c)
	if err != nil {
		return err
	}

	if err := h.service.MarkPostAsViewed(c.Request().Context(), user.StoryKey(), c.Param("id"), c.Param("postId")); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"viewed": true}})
}

// GetStoryViewers lists unique viewers of the caller's story, optionally
// narrowed to one post via ?postId=.
func (h *StoryHandler) GetStoryViewers(c echo.Context) error {
	user, err := h.currentUser(c)
	if err != nil {
		return err
	}

	viewers, err := h.service.GetStoryViewers(c.Request().Context(), user.StoryKey(), c.Param("id"), c.QueryParam("postId"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"viewers": viewers}})
}
