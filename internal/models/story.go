package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MediaType is the kind of media a story post carries.
type MediaType string

const (
	MediaTypePhoto MediaType = "photo"
	MediaTypeVideo MediaType = "video"
)

// Privacy controls which viewers may see a post.
type Privacy string

const (
	PrivacyAll     Privacy = "all"
	PrivacyFriends Privacy = "friends"
	PrivacyCustom  Privacy = "custom"
)

// PostStatus is the lifecycle state of a story post.
type PostStatus string

const (
	PostStatusUploading PostStatus = "uploading"
	PostStatusActive    PostStatus = "active"
	PostStatusExpired   PostStatus = "expired"
)

// StoryTTL is how long a post stays visible to friends after upload.
const StoryTTL = 24 * time.Hour

// ViewData records that a viewer watched a post. One entry per viewer,
// upserted in place; never appended as a list.
type ViewData struct {
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
	Completed bool      `json:"completed" bson:"completed"`
}

// StoryPost is a single piece of ephemeral media inside a story.
type StoryPost struct {
	ID            string              `json:"id" bson:"id"`
	UserID        string              `json:"user_id" bson:"user_id"`
	MediaURL      string              `json:"media_url" bson:"media_url"`
	MediaType     MediaType           `json:"media_type" bson:"media_type"`
	Text          string              `json:"text,omitempty" bson:"text,omitempty"`
	Timestamp     time.Time           `json:"timestamp" bson:"timestamp"`
	ExpiresAt     time.Time           `json:"expires_at" bson:"expires_at"`
	Privacy       Privacy             `json:"privacy" bson:"privacy"`
	CustomViewers []string            `json:"custom_viewers,omitempty" bson:"custom_viewers,omitempty"`
	Status        PostStatus          `json:"status" bson:"status"`
	Views         map[string]ViewData `json:"views" bson:"views"`
}

// IsActive reports whether the post is visible to friends at the given time.
// Expired posts stay in storage for the owner but are filtered from feeds.
func (p *StoryPost) IsActive(now time.Time) bool {
	return p.Status == PostStatusActive && now.Before(p.ExpiresAt)
}

// VisibleTo applies the post's privacy setting for a viewer. The friend graph
// itself is enforced upstream; a custom list narrows it further.
func (p *StoryPost) VisibleTo(viewerID string) bool {
	if viewerID == p.UserID {
		return true
	}
	if p.Privacy != PrivacyCustom {
		return true
	}
	for _, id := range p.CustomViewers {
		if id == viewerID {
			return true
		}
	}
	return false
}

// CompletedBy reports whether the viewer has a completed view on this post.
func (p *StoryPost) CompletedBy(viewerID string) bool {
	v, ok := p.Views[viewerID]
	return ok && v.Completed
}

// Story is a user's ordered collection of posts, stored as one MongoDB
// document per user. Created implicitly when the first post is uploaded.
type Story struct {
	ID        primitive.ObjectID `json:"id,omitempty" bson:"_id,omitempty"`
	UserID    string             `json:"user_id" bson:"user_id"`
	Posts     []StoryPost        `json:"posts" bson:"posts"`
	UpdatedAt time.Time          `json:"updated_at" bson:"updated_at"`
}

// ActivePosts returns the posts visible to friends at the given time,
// preserving upload order.
func (s *Story) ActivePosts(now time.Time) []StoryPost {
	active := make([]StoryPost, 0, len(s.Posts))
	for _, p := range s.Posts {
		if p.IsActive(now) {
			active = append(active, p)
		}
	}
	return active
}

// LatestPostTime returns the timestamp of the newest post, or the zero time
// for an empty story.
func (s *Story) LatestPostTime() time.Time {
	var latest time.Time
	for _, p := range s.Posts {
		if p.Timestamp.After(latest) {
			latest = p.Timestamp
		}
	}
	return latest
}

// StoryViewer is a derived, read-only aggregate of one viewer's activity
// on a story. Computed at read time, never stored.
type StoryViewer struct {
	UserID       string    `json:"user_id"`
	ViewedAt     time.Time `json:"viewed_at"`
	HasViewedAll bool      `json:"has_viewed_all"`
}

// StoryWithUser is a story joined with its owner's compact profile for feed
// display, plus per-viewer derived flags.
type StoryWithUser struct {
	Story               Story       `json:"story"`
	Author              UserCompact `json:"author"`
	HasUnviewedPosts    bool        `json:"has_unviewed_posts"`
	TotalPosts          int         `json:"total_posts"`
	LatestPostTimestamp time.Time   `json:"latest_post_timestamp"`
}

// CreateStoryRequest defines the request body for creating a story post.
// MediaURI points at the capture handed to the upload pipeline.
type CreateStoryRequest struct {
	MediaURI      string   `json:"media_uri" validate:"required"`
	MediaType     string   `json:"media_type" validate:"required,oneof=photo video"`
	Text          string   `json:"text,omitempty" validate:"max=500"`
	Privacy       string   `json:"privacy" validate:"required,oneof=all friends custom"`
	CustomViewers []string `json:"custom_viewers,omitempty"`
}
