// Package uploader orchestrates story creation: media transfer with progress
// reporting, then an atomic post append. A post exists in storage if and only
// if its upload fully succeeded.
package uploader

import (
	"context"
	"io"
	"mime"
	"path/filepath"
	"strings"

	"github.com/flicker-social/backend/internal/apperrors"
	"github.com/flicker-social/backend/internal/models"
	"github.com/flicker-social/backend/internal/repositories"
	"github.com/flicker-social/backend/internal/storage"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// Status is the reported stage of an upload.
type Status string

const (
	StatusUploading  Status = "uploading"
	StatusProcessing Status = "processing"
	StatusComplete   Status = "complete"
	StatusError      Status = "error"
)

// Progress is the callback payload reported to the creating client.
type Progress struct {
	Progress int    `json:"progress"` // 0..100
	Status   Status `json:"status"`
}

// ProgressFunc receives progress updates. May be nil.
type ProgressFunc func(Progress)

// CreateStoryInput carries everything needed to create one post.
type CreateStoryInput struct {
	UserID        string
	FileName      string
	Media         io.Reader
	Size          int64
	MediaType     models.MediaType
	Text          string
	Privacy       models.Privacy
	CustomViewers []string
}

// Pipeline runs the staged upload. Concurrent calls for the same user create
// independent posts; there is no single-flight dedup.
type Pipeline struct {
	stories repositories.StoryRepository
	media   storage.MediaStorage
	clock   clockwork.Clock
	logger  zerolog.Logger
}

// NewPipeline creates a Pipeline. A nil clock falls back to the real one.
func NewPipeline(stories repositories.StoryRepository, media storage.MediaStorage, clock clockwork.Clock, logger zerolog.Logger) *Pipeline {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Pipeline{stories: stories, media: media, clock: clock, logger: logger}
}

// CreateStory transfers the media and, only on full success, appends the
// finished post to the owner's story. Any transfer failure leaves the story
// untouched and returns a typed error.
func (p *Pipeline) CreateStory(ctx context.Context, input CreateStoryInput, onProgress ProgressFunc) (*models.StoryPost, error) {
	report := func(progress int, status Status) {
		if onProgress != nil {
			onProgress(Progress{Progress: progress, Status: status})
		}
	}

	if input.Media == nil {
		report(0, StatusError)
		return nil, apperrors.New(apperrors.CodeUploadFailed, "no media supplied")
	}

	report(0, StatusUploading)

	postID := uuid.New().String()
	objectName := objectNameFor(input.UserID, postID, input.FileName)
	contentType := contentTypeFor(input.FileName, input.MediaType)

	reader := &progressReader{
		r:     input.Media,
		total: input.Size,
		report: func(fraction float64) {
			// Transfer owns 0..99; 100 is reserved for the finished post.
			pct := int(fraction * 99)
			report(pct, StatusUploading)
		},
	}

	mediaURL, err := p.media.Upload(ctx, objectName, contentType, reader, input.Size)
	if err != nil {
		report(reader.percent(), StatusError)
		p.logger.Error().Err(err).Str("user_id", input.UserID).Msg("media transfer failed")
		return nil, apperrors.Wrap(err, apperrors.CodeUploadFailed, "media transfer failed")
	}

	report(99, StatusProcessing)

	now := p.clock.Now()
	post := models.StoryPost{
		ID:            postID,
		UserID:        input.UserID,
		MediaURL:      mediaURL,
		MediaType:     input.MediaType,
		Text:          input.Text,
		Timestamp:     now,
		ExpiresAt:     now.Add(models.StoryTTL),
		Privacy:       input.Privacy,
		CustomViewers: input.CustomViewers,
		Status:        models.PostStatusActive,
		Views:         map[string]models.ViewData{},
	}

	if err := p.stories.AppendPost(ctx, input.UserID, post); err != nil {
		// The post never became visible; remove the orphaned object so the
		// story and the bucket stay consistent.
		if delErr := p.media.Delete(context.WithoutCancel(ctx), objectName); delErr != nil {
			p.logger.Warn().Err(delErr).Str("object", objectName).Msg("orphaned media cleanup failed")
		}
		report(99, StatusError)
		return nil, err
	}

	report(100, StatusComplete)
	p.logger.Info().Str("user_id", input.UserID).Str("post_id", postID).Msg("story post created")
	return &post, nil
}

func objectNameFor(userID, postID, fileName string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	if ext == "" {
		ext = ".jpg"
	}
	return "stories/" + userID + "/" + postID + ext
}

func contentTypeFor(fileName string, mediaType models.MediaType) string {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(fileName))); ct != "" {
		return ct
	}
	if mediaType == models.MediaTypeVideo {
		return "video/mp4"
	}
	return "image/jpeg"
}

// progressReader counts transferred bytes and reports fractional progress.
type progressReader struct {
	r     io.Reader
	total int64
	read  int64

	report func(fraction float64)
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.r.Read(p)
	if n > 0 {
		pr.read += int64(n)
		if pr.total > 0 && pr.report != nil {
			fraction := float64(pr.read) / float64(pr.total)
			if fraction > 1 {
				fraction = 1
			}
			pr.report(fraction)
		}
	}
	return n, err
}

func (pr *progressReader) percent() int {
	if pr.total <= 0 {
		return 0
	}
	pct := int(float64(pr.read) / float64(pr.total) * 99)
	if pct > 99 {
		pct = 99
	}
	return pct
}
