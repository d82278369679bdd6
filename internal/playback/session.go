// Package playback drives story navigation: auto-advance timing, manual
// navigation, pause/resume that preserves elapsed progress, and view-marking
// dispatch. The controller is explicitly constructed and exclusively owned by
// its creator; there is no package-level session state.
package playback

import (
	"context"
	"sync"
	"time"

	"github.com/flicker-social/backend/internal/apperrors"
	"github.com/flicker-social/backend/internal/models"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// State is the lifecycle state of a playback session.
type State string

const (
	StateLoading       State = "loading"
	StatePlaying       State = "playing"
	StatePaused        State = "paused"
	StateTransitioning State = "transitioning"
	StateClosed        State = "closed"
	StateFailed        State = "failed"
)

// PostDuration is the fixed wall-clock each post plays for.
const PostDuration = 5000 * time.Millisecond

// StorySource loads the story a session plays. not_found and expired are
// terminal: the session fails closed instead of retrying.
type StorySource interface {
	LoadStory(ctx context.Context, storyID string) (*models.Story, error)
}

// ViewMarker records completed views. Marks are dispatched fire-and-forget;
// an in-flight mark for a just-exited post may still complete after close.
type ViewMarker interface {
	MarkPostAsViewed(ctx context.Context, storyID, postID, viewerID string) error
}

// ProgressFunc receives the 0..1 elapsed fraction for the current post on
// every sample, so an indicator can animate smoothly.
type ProgressFunc func(fraction float64)

// Options configures a Controller.
type Options struct {
	Clock       clockwork.Clock
	Logger      zerolog.Logger
	Duration    time.Duration // per-post play time, defaults to PostDuration
	AutoAdvance bool
	OnProgress  ProgressFunc
}

// Controller is the client-owned state machine for one playback session.
// All methods are safe for use from a single cooperative loop plus external
// pause/close calls; the internal mutex keeps transitions consistent.
type Controller struct {
	source   StorySource
	marker   ViewMarker
	clock    clockwork.Clock
	logger   zerolog.Logger
	viewerID string
	duration time.Duration

	mu          sync.Mutex
	state       State
	storyID     string
	ownerID     string
	posts       []models.StoryPost
	index       int
	segStart    time.Time     // when the current unpaused segment began
	elapsedBase time.Duration // elapsed accumulated before segStart
	autoAdvance bool
	onProgress  ProgressFunc
	marked      map[string]bool // post id -> view mark dispatched this session
	wg          sync.WaitGroup  // in-flight view marks
}

// NewController creates a session controller in the Loading state.
func NewController(source StorySource, marker ViewMarker, viewerID string, opts Options) *Controller {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	duration := opts.Duration
	if duration <= 0 {
		duration = PostDuration
	}
	return &Controller{
		source:      source,
		marker:      marker,
		clock:       clock,
		logger:      opts.Logger,
		viewerID:    viewerID,
		duration:    duration,
		state:       StateLoading,
		autoAdvance: opts.AutoAdvance,
		onProgress:  opts.OnProgress,
		marked:      make(map[string]bool),
	}
}

// Start loads the story, snapshots its active posts and begins playing from
// index 0. A story that cannot be fetched, or one with nothing left to play,
// fails the session closed. Calling Start on a session that already left
// Loading is a no-op, which also guards the initial view mark against rapid
// repeated taps.
func (c *Controller) Start(ctx context.Context, storyID string) error {
	c.mu.Lock()
	if c.state != StateLoading {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	story, err := c.source.LoadStory(ctx, storyID)
	if err != nil {
		c.fail()
		return err
	}

	posts := story.ActivePosts(c.clock.Now())
	visible := make([]models.StoryPost, 0, len(posts))
	for _, p := range posts {
		if p.VisibleTo(c.viewerID) {
			visible = append(visible, p)
		}
	}
	if len(visible) == 0 {
		c.fail()
		return apperrors.New(apperrors.CodeExpired, "story has no active posts")
	}

	c.mu.Lock()
	if c.state != StateLoading {
		c.mu.Unlock()
		return nil
	}
	c.storyID = storyID
	c.ownerID = story.UserID
	c.posts = visible
	c.index = 0
	c.state = StatePlaying
	c.segStart = c.clock.Now()
	c.elapsedBase = 0
	c.mu.Unlock()

	c.dispatchViewMark(0)
	return nil
}

// Tick samples elapsed time and performs due transitions. It is a no-op
// outside Playing and never blocks on I/O. Returns false once the session is
// closed or failed, so a sampling loop knows to stop.
func (c *Controller) Tick() bool {
	c.mu.Lock()
	if c.state != StatePlaying {
		open := c.state != StateClosed && c.state != StateFailed
		c.mu.Unlock()
		return open
	}

	elapsed := c.elapsedBase + c.clock.Since(c.segStart)
	if elapsed < c.duration {
		fraction := float64(elapsed) / float64(c.duration)
		cb := c.onProgress
		c.mu.Unlock()
		if cb != nil {
			cb(fraction)
		}
		return true
	}

	if !c.autoAdvance {
		// Hold at full progress until the client navigates.
		cb := c.onProgress
		c.mu.Unlock()
		if cb != nil {
			cb(1)
		}
		return true
	}
	return c.advanceLocked(1)
}

// Next manually advances to the following post; past the last post the
// session closes.
func (c *Controller) Next() bool {
	c.mu.Lock()
	if c.state != StatePlaying && c.state != StatePaused {
		open := c.state != StateClosed && c.state != StateFailed
		c.mu.Unlock()
		return open
	}
	return c.advanceLocked(1)
}

// Previous steps back one post. At index 0 it is a no-op.
func (c *Controller) Previous() bool {
	c.mu.Lock()
	if c.state != StatePlaying && c.state != StatePaused {
		open := c.state != StateClosed && c.state != StateFailed
		c.mu.Unlock()
		return open
	}
	if c.index == 0 {
		c.mu.Unlock()
		return true
	}
	return c.advanceLocked(-1)
}

// advanceLocked moves the index by delta and re-arms timing and view
// marking for the new post. Called with c.mu held; releases it.
func (c *Controller) advanceLocked(delta int) bool {
	next := c.index + delta
	if next >= len(c.posts) {
		c.closeLocked()
		c.mu.Unlock()
		return false
	}
	if next < 0 {
		next = 0
	}

	c.state = StateTransitioning
	c.index = next
	c.segStart = c.clock.Now()
	c.elapsedBase = 0
	c.state = StatePlaying
	cb := c.onProgress
	c.mu.Unlock()

	if cb != nil {
		cb(0)
	}
	c.dispatchViewMark(next)
	return true
}

// Pause freezes elapsed time. Total unpaused wall-clock on a post always
// sums to the configured duration, no matter how many pause cycles occur.
func (c *Controller) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StatePlaying {
		return
	}
	c.elapsedBase += c.clock.Since(c.segStart)
	if c.elapsedBase > c.duration {
		c.elapsedBase = c.duration
	}
	c.state = StatePaused
}

// Resume restarts the timer for exactly the remaining time.
func (c *Controller) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StatePaused {
		return
	}
	c.segStart = c.clock.Now()
	c.state = StatePlaying
}

// Close terminates the session. Idempotent; no transition or view mark is
// dispatched afterwards, though already in-flight marks may complete.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closeLocked()
	c.mu.Unlock()
}

func (c *Controller) closeLocked() {
	if c.state == StateClosed {
		return
	}
	c.state = StateClosed
	c.posts = nil
}

func (c *Controller) fail() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return
	}
	c.state = StateFailed
	c.posts = nil
}

// Refresh replaces the post snapshot after an external change, typically a
// deletion. The index re-clamps; an emptied story closes the session.
func (c *Controller) Refresh(posts []models.StoryPost) {
	c.mu.Lock()
	if c.state == StateClosed || c.state == StateFailed {
		c.mu.Unlock()
		return
	}
	if len(posts) == 0 {
		c.closeLocked()
		c.mu.Unlock()
		return
	}
	c.posts = posts
	if c.index >= len(posts) {
		c.index = len(posts) - 1
		c.segStart = c.clock.Now()
		c.elapsedBase = 0
	}
	c.mu.Unlock()
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// CurrentPost returns the post on screen, or nil outside an active session.
func (c *Controller) CurrentPost() *models.StoryPost {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.index < 0 || c.index >= len(c.posts) {
		return nil
	}
	p := c.posts[c.index]
	return &p
}

// CurrentIndex returns the index of the post on screen.
func (c *Controller) CurrentIndex() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index
}

// Progress returns the elapsed fraction (0..1) for the current post,
// sampled from elapsed time rather than discrete steps.
func (c *Controller) Progress() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	var elapsed time.Duration
	switch c.state {
	case StatePlaying:
		elapsed = c.elapsedBase + c.clock.Since(c.segStart)
	case StatePaused:
		elapsed = c.elapsedBase
	default:
		return 0
	}
	fraction := float64(elapsed) / float64(c.duration)
	if fraction > 1 {
		fraction = 1
	}
	return fraction
}

// Remaining returns the unpaused time left on the current post.
func (c *Controller) Remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	var elapsed time.Duration
	switch c.state {
	case StatePlaying:
		elapsed = c.elapsedBase + c.clock.Since(c.segStart)
	case StatePaused:
		elapsed = c.elapsedBase
	default:
		return 0
	}
	if elapsed >= c.duration {
		return 0
	}
	return c.duration - elapsed
}

// Run drives Tick on a sampling interval until the session leaves Playing or
// the context is cancelled. Cancellation stops the timer immediately; no tick
// fires afterwards. Callers re-enter Run after Resume.
func (c *Controller) Run(ctx context.Context, sampleEvery time.Duration) {
	ticker := c.clock.NewTicker(sampleEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if !c.Tick() {
				return
			}
			if c.State() != StatePlaying {
				return
			}
		}
	}
}

// Wait blocks until all dispatched view marks have completed. Test hook.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// dispatchViewMark records the view for the post at index exactly once per
// session. The write is fire-and-forget on a detached context so closing the
// playback UI does not cancel a mark already in flight.
func (c *Controller) dispatchViewMark(index int) {
	c.mu.Lock()
	if c.state != StatePlaying || index >= len(c.posts) {
		c.mu.Unlock()
		return
	}
	post := c.posts[index]
	if post.UserID == c.viewerID {
		// Owners previewing their own story do not count as viewers.
		c.mu.Unlock()
		return
	}
	if c.marked[post.ID] {
		c.mu.Unlock()
		return
	}
	c.marked[post.ID] = true
	storyID := c.storyID
	viewerID := c.viewerID
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.marker.MarkPostAsViewed(ctx, storyID, post.ID, viewerID); err != nil {
			c.logger.Warn().Err(err).Str("post_id", post.ID).Msg("view mark failed")
		}
	}()
}
