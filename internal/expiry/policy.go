// Package expiry decides which story posts are visible at read time.
// Expiry is a query-time filter, not a destructive sweep, so there is no
// race between a background job and a concurrent read.
package expiry

import (
	"time"

	"github.com/flicker-social/backend/internal/models"
)

// IsActive reports whether a post should be visible to friends at now.
func IsActive(post *models.StoryPost, now time.Time) bool {
	return post.IsActive(now)
}

// ActivePosts filters a post list down to the friend-visible ones,
// preserving order.
func ActivePosts(posts []models.StoryPost, now time.Time) []models.StoryPost {
	active := make([]models.StoryPost, 0, len(posts))
	for _, p := range posts {
		if p.IsActive(now) {
			active = append(active, p)
		}
	}
	return active
}

// HasActivePosts reports whether a story still has anything to show friends.
func HasActivePosts(story *models.Story, now time.Time) bool {
	for i := range story.Posts {
		if story.Posts[i].IsActive(now) {
			return true
		}
	}
	return false
}
