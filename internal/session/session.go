// Package session implements one account's exclusive automation context: a
// closed set of high-level operations, each a fixed sequence of UI steps
// against the account's own browser surface, serialized by a per-session
// lock.
package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/lishuo8109/weibopilot/api/schemas"
	"github.com/lishuo8109/weibopilot/internal/config"
	"github.com/lishuo8109/weibopilot/internal/feed"
)

// State is the session lifecycle. Once Online, a session stays online for the
// process lifetime; a failed operation reports failure and leaves the state
// untouched.
type State int32

const (
	StateUninitialized State = iota
	StateLoggingIn
	StateOnline
	StateLoginFailed
)

func (s State) String() string {
	switch s {
	case StateLoggingIn:
		return "logging_in"
	case StateOnline:
		return "online"
	case StateLoginFailed:
		return "login_failed"
	default:
		return "uninitialized"
	}
}

// FeedKind selects which item list FetchFeed reads.
type FeedKind string

const (
	FeedHome FeedKind = "homepage"
	FeedHot  FeedKind = "hot"
)

// PostReceipt confirms a newly created item.
type PostReceipt struct {
	Ref      schemas.ItemRef `json:"ref"`
	Author   string          `json:"username"`
	Content  string          `json:"post_content"`
	PostedAt time.Time       `json:"post_time"`
}

// ActionReceipt confirms an interaction against an existing item. TargetText
// is the item's body text read back after the interaction; an action is only
// reported successful once that read succeeds.
type ActionReceipt struct {
	TargetRef  schemas.ItemRef `json:"target_ref"`
	TargetText string          `json:"weibo_content"`
	DoneAt     time.Time       `json:"done_at"`
}

// Session is one authenticated account's automation context. All public
// operations acquire the session's exclusive lock for their full duration;
// the underlying UI handle is never touched by two operations at once.
type Session struct {
	accountID string
	cred      schemas.AccountCredential
	exec      schemas.StepExecutor
	cfg       config.SessionConfig
	logger    *zap.Logger

	mu          sync.Mutex
	state       atomic.Int32
	displayName atomic.Pointer[string]

	// followers is the known-follower baseline, mutated only by login seeding
	// and RefreshFollowers, always under mu.
	followers []string
}

// New builds a session around an already-launched UI handle. The session does
// not log in until Login is called.
func New(cred schemas.AccountCredential, exec schemas.StepExecutor, cfg config.SessionConfig, logger *zap.Logger) *Session {
	s := &Session{
		accountID: cred.AccountID,
		cred:      cred,
		exec:      exec,
		cfg:       cfg,
		logger:    logger.Named("session").With(zap.String("account_id", cred.AccountID)),
	}
	empty := ""
	s.displayName.Store(&empty)
	return s
}

// AccountID returns the platform uid this session automates.
func (s *Session) AccountID() string { return s.accountID }

// DisplayName returns the authenticated identity captured at login.
func (s *Session) DisplayName() string { return *s.displayName.Load() }

// State returns the current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// Online reports whether operations may execute.
func (s *Session) Online() bool { return s.State() == StateOnline }

// Close releases the underlying UI handle.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exec.Close(ctx)
}

func (s *Session) fail(op string, err error) error {
	return schemas.FailureFrom(err, s.accountID, op)
}

func (s *Session) requireOnline(op string) error {
	if !s.Online() {
		return schemas.NewFailure(schemas.FailNotLoggedIn, s.accountID, op, "session is not online")
	}
	return nil
}

// Login injects the stored cookie blob into a fresh UI context, waits for the
// identity marker, captures the display name, and seeds the follower
// baseline. It does not retry; a failure leaves the session LoginFailed.
func (s *Session) Login(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State() == StateOnline {
		return nil
	}
	s.state.Store(int32(StateLoggingIn))

	if err := s.doLogin(ctx); err != nil {
		s.state.Store(int32(StateLoginFailed))
		s.logger.Warn("Login failed.", zap.Error(err))
		return schemas.NewFailure(schemas.FailLogin, s.accountID, "login", err.Error())
	}

	s.state.Store(int32(StateOnline))
	s.logger.Info("Logged in.", zap.String("display_name", s.DisplayName()))

	// Seed the follower baseline. A failed scrape is tolerated; the first
	// RefreshFollowers will then report everyone as newly added.
	baseline, err := s.scrapeFollowers(ctx)
	if err != nil {
		s.logger.Warn("Follower baseline scrape failed.", zap.Error(err))
		baseline = nil
	}
	s.followers = baseline
	return nil
}

func (s *Session) doLogin(ctx context.Context) error {
	if err := s.exec.Navigate(ctx, baseURL, s.cfg.StepTimeout); err != nil {
		return err
	}
	if err := s.exec.ClearCookies(ctx); err != nil {
		return err
	}
	if err := s.exec.Sleep(ctx, s.cfg.PageSettle); err != nil {
		return err
	}
	if err := s.exec.SetCookies(ctx, cookieDomain, s.cred.Cookie); err != nil {
		return err
	}
	if err := s.exec.Reload(ctx, s.cfg.StepTimeout); err != nil {
		return err
	}
	if err := s.exec.Sleep(ctx, s.cfg.PageSettle); err != nil {
		return err
	}

	name, err := s.exec.Attr(ctx, locProfileName, "title", s.cfg.LoginTimeout)
	if err != nil {
		return fmt.Errorf("identity marker: %w", err)
	}
	if name == "" {
		return fmt.Errorf("identity marker: empty display name: %w", schemas.ErrExtraction)
	}
	s.displayName.Store(&name)
	return nil
}

// Post publishes a new item and extracts its identity from the resulting
// permalink.
func (s *Session) Post(ctx context.Context, content string) (*PostReceipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireOnline("post"); err != nil {
		return nil, err
	}

	rec, err := s.doPost(ctx, content)
	if err != nil {
		return nil, s.fail("post", err)
	}
	s.logger.Info("Posted.", zap.String("item_id", rec.Ref.ItemID))
	return rec, nil
}

func (s *Session) doPost(ctx context.Context, content string) (*PostReceipt, error) {
	if err := s.exec.Navigate(ctx, baseURL, s.cfg.StepTimeout); err != nil {
		return nil, err
	}
	if err := s.exec.Type(ctx, locComposer, content, s.cfg.StepTimeout); err != nil {
		return nil, err
	}
	if err := s.exec.Click(ctx, locComposerSend, s.cfg.StepTimeout); err != nil {
		return nil, err
	}
	if err := s.exec.Sleep(ctx, s.cfg.ActionSettle); err != nil {
		return nil, err
	}

	href, err := s.exec.Attr(ctx, locHeadInfoLink, "href", s.cfg.StepTimeout)
	if err != nil {
		return nil, fmt.Errorf("new item permalink: %w", err)
	}
	itemID := lastSegment(href)
	if itemID == "" {
		return nil, fmt.Errorf("permalink %q: no item id: %w", href, schemas.ErrExtraction)
	}
	return &PostReceipt{
		Ref:      schemas.ItemRef{AccountID: s.accountID, ItemID: itemID},
		Author:   s.DisplayName(),
		Content:  content,
		PostedAt: time.Now(),
	}, nil
}

// Repost shares the target item, optionally with text, and confirms by
// reading the item's body back.
func (s *Session) Repost(ctx context.Context, ref schemas.ItemRef, text string) (*ActionReceipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireOnline("repost"); err != nil {
		return nil, err
	}

	rec, err := s.doRepost(ctx, ref, text)
	if err != nil {
		return nil, s.fail("repost", err)
	}
	s.logger.Info("Reposted.", zap.String("target", ref.String()))
	return rec, nil
}

func (s *Session) doRepost(ctx context.Context, ref schemas.ItemRef, text string) (*ActionReceipt, error) {
	if err := s.exec.Navigate(ctx, repostURL(ref), s.cfg.StepTimeout); err != nil {
		return nil, err
	}
	if text != "" {
		if err := s.exec.Type(ctx, locRepostBox, text, s.cfg.StepTimeout); err != nil {
			return nil, err
		}
	}
	if err := s.exec.Sleep(ctx, s.cfg.ActionSettle); err != nil {
		return nil, err
	}
	if err := s.exec.Click(ctx, locDetailSend, s.cfg.StepTimeout); err != nil {
		return nil, err
	}
	if err := s.exec.Sleep(ctx, s.cfg.ActionSettle); err != nil {
		return nil, err
	}
	return s.confirmTarget(ctx, ref)
}

// Comment publishes a comment on the target item, confirmed by body read.
func (s *Session) Comment(ctx context.Context, ref schemas.ItemRef, text string) (*ActionReceipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireOnline("comment"); err != nil {
		return nil, err
	}

	rec, err := s.doComment(ctx, ref, text)
	if err != nil {
		return nil, s.fail("comment", err)
	}
	s.logger.Info("Commented.", zap.String("target", ref.String()))
	return rec, nil
}

func (s *Session) doComment(ctx context.Context, ref schemas.ItemRef, text string) (*ActionReceipt, error) {
	if err := s.exec.Navigate(ctx, itemURL(ref), s.cfg.StepTimeout); err != nil {
		return nil, err
	}
	if err := s.exec.Type(ctx, locCommentBox, text, s.cfg.StepTimeout); err != nil {
		return nil, err
	}
	if err := s.exec.Sleep(ctx, s.cfg.ActionSettle); err != nil {
		return nil, err
	}
	if err := s.exec.Click(ctx, locDetailSend, s.cfg.StepTimeout); err != nil {
		return nil, err
	}
	return s.confirmTarget(ctx, ref)
}

// Like likes the target item, confirmed by body read.
func (s *Session) Like(ctx context.Context, ref schemas.ItemRef) (*ActionReceipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireOnline("like"); err != nil {
		return nil, err
	}

	rec, err := s.doLike(ctx, ref)
	if err != nil {
		return nil, s.fail("like", err)
	}
	s.logger.Info("Liked.", zap.String("target", ref.String()))
	return rec, nil
}

func (s *Session) doLike(ctx context.Context, ref schemas.ItemRef) (*ActionReceipt, error) {
	if err := s.exec.Navigate(ctx, itemURL(ref), s.cfg.StepTimeout); err != nil {
		return nil, err
	}
	if err := s.exec.Click(ctx, locLikeButton, s.cfg.StepTimeout); err != nil {
		return nil, err
	}
	return s.confirmTarget(ctx, ref)
}

// confirmTarget reads the target item's body text as proof of a loaded,
// actable page. Interactions are only trusted once this read succeeds.
func (s *Session) confirmTarget(ctx context.Context, ref schemas.ItemRef) (*ActionReceipt, error) {
	text, err := s.exec.Text(ctx, locDetailText, s.cfg.StepTimeout)
	if err != nil {
		return nil, fmt.Errorf("confirming body read: %w", err)
	}
	return &ActionReceipt{TargetRef: ref, TargetText: text, DoneAt: time.Now()}, nil
}

// Follow follows the target account.
func (s *Session) Follow(ctx context.Context, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireOnline("follow"); err != nil {
		return err
	}

	if err := s.doFollow(ctx, accountID); err != nil {
		return s.fail("follow", err)
	}
	s.logger.Info("Followed.", zap.String("target_account", accountID))
	return nil
}

func (s *Session) doFollow(ctx context.Context, accountID string) error {
	if err := s.exec.Navigate(ctx, profileURL(accountID), s.cfg.StepTimeout); err != nil {
		return err
	}
	return s.exec.Click(ctx, locFollowToggle, s.cfg.StepTimeout)
}

// Unfollow unfollows the target account: toggle, menu entry, confirm dialog.
// Each step carries its own timeout.
func (s *Session) Unfollow(ctx context.Context, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireOnline("unfollow"); err != nil {
		return err
	}

	if err := s.doUnfollow(ctx, accountID); err != nil {
		return s.fail("unfollow", err)
	}
	s.logger.Info("Unfollowed.", zap.String("target_account", accountID))
	return nil
}

func (s *Session) doUnfollow(ctx context.Context, accountID string) error {
	if err := s.exec.Navigate(ctx, profileURL(accountID), s.cfg.StepTimeout); err != nil {
		return err
	}
	if err := s.exec.Click(ctx, locFollowToggle, s.cfg.StepTimeout); err != nil {
		return err
	}
	if err := s.exec.Click(ctx, locUnfollowEntry, s.cfg.StepTimeout); err != nil {
		return err
	}
	return s.exec.Click(ctx, locUnfollowConfirm, s.cfg.StepTimeout)
}

// FetchPost reads one item in full: author, canonical timestamp, body,
// optional tag line, images, video link, counters, and up to maxComments top
// comments.
func (s *Session) FetchPost(ctx context.Context, ref schemas.ItemRef, maxComments int) (*schemas.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireOnline("fetch_post"); err != nil {
		return nil, err
	}

	post, err := s.doFetchPost(ctx, ref, maxComments)
	if err != nil {
		return nil, s.fail("fetch_post", err)
	}
	s.logger.Debug("Fetched item.", zap.String("target", ref.String()))
	return post, nil
}

func (s *Session) doFetchPost(ctx context.Context, ref schemas.ItemRef, maxComments int) (*schemas.Post, error) {
	if err := s.exec.Navigate(ctx, itemURL(ref), s.cfg.StepTimeout); err != nil {
		return nil, err
	}
	if err := s.exec.Sleep(ctx, s.cfg.PageSettle); err != nil {
		return nil, err
	}

	author, err := s.exec.Text(ctx, locAuthorName, s.cfg.StepTimeout)
	if err != nil {
		return nil, fmt.Errorf("author name: %w", err)
	}
	rawTime, err := s.exec.Text(ctx, locHeadInfoLink, s.cfg.StepTimeout)
	if err != nil {
		return nil, fmt.Errorf("item timestamp: %w", err)
	}
	ts, err := canonTimestamp(rawTime)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, schemas.ErrExtraction)
	}
	body, err := s.exec.Text(ctx, locDetailText, s.cfg.StepTimeout)
	if err != nil {
		return nil, fmt.Errorf("item body: %w", err)
	}

	// Tag line, images, and trailing video link are optional page features;
	// their absence is tolerated under a short timeout.
	tag, err := s.exec.Text(ctx, locAuthorTag, s.cfg.ShortStepTimeout)
	if err != nil {
		tag = ""
	}
	images, err := s.exec.Attrs(ctx, locPostImages, "src", s.cfg.ShortStepTimeout)
	if err != nil {
		images = nil
	}
	video := ""
	if href, err := s.exec.Attr(ctx, locTrailingLink, "href", s.cfg.ShortStepTimeout); err == nil {
		video = classifyVideo(href)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	repostRaw, err := s.exec.Text(ctx, locRepostCount, s.cfg.StepTimeout)
	if err != nil {
		return nil, fmt.Errorf("repost counter: %w", err)
	}
	commentRaw, err := s.exec.Text(ctx, locCommentCount, s.cfg.StepTimeout)
	if err != nil {
		return nil, fmt.Errorf("comment counter: %w", err)
	}
	likeRaw, err := s.exec.Text(ctx, locLikeCount, s.cfg.StepTimeout)
	if err != nil {
		return nil, fmt.Errorf("like counter: %w", err)
	}

	comments, err := s.collectComments(ctx, maxComments)
	if err != nil {
		s.logger.Warn("Comment collection failed.", zap.String("target", ref.String()), zap.Error(err))
		comments = nil
	}

	return &schemas.Post{
		Ref:          ref,
		Author:       author,
		AuthorTag:    tag,
		Timestamp:    ts,
		Text:         body,
		Images:       images,
		Video:        video,
		RepostCount:  parseCount(repostRaw, "转发"),
		CommentCount: parseCount(commentRaw, "评论"),
		LikeCount:    parseCount(likeRaw, "赞"),
		Comments:     comments,
		FetchedAt:    time.Now(),
	}, nil
}

func (s *Session) collectComments(ctx context.Context, maxComments int) ([]string, error) {
	if maxComments <= 0 {
		maxComments = s.cfg.MaxComments
	}
	src := feed.NewSource(
		func(ctx context.Context) ([]feed.Item[string], error) {
			texts, err := s.exec.Texts(ctx, locCommentTexts, s.cfg.ShortStepTimeout)
			if err != nil {
				// An empty comment section is not an error; the loop's stall
				// counter terminates the run.
				return nil, nil
			}
			items := make([]feed.Item[string], 0, len(texts))
			for _, text := range texts {
				items = append(items, feed.Item[string]{Key: text, Value: text})
			}
			return items, nil
		},
		func(ctx context.Context) error {
			if err := s.exec.ScrollBy(ctx, s.cfg.CommentScrollPixels); err != nil {
				return err
			}
			return s.exec.Sleep(ctx, s.cfg.CommentScrollSettle)
		},
	)
	return feed.Collect[string](ctx, src, feed.Params{Target: maxComments, StallLimit: s.cfg.StallLimit}, s.logger)
}

// FetchFeed collects item references from the homepage or hot feed, in
// encounter order, up to maxItems.
func (s *Session) FetchFeed(ctx context.Context, kind FeedKind, maxItems int) ([]schemas.ItemRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	op := "fetch_feed_" + string(kind)
	if err := s.requireOnline(op); err != nil {
		return nil, err
	}

	refs, err := s.doFetchFeed(ctx, kind, maxItems)
	if err != nil {
		return nil, s.fail(op, err)
	}
	s.logger.Debug("Fetched feed.", zap.String("kind", string(kind)), zap.Int("items", len(refs)))
	return refs, nil
}

func (s *Session) doFetchFeed(ctx context.Context, kind FeedKind, maxItems int) ([]schemas.ItemRef, error) {
	url := baseURL
	if kind == FeedHot {
		url = hotURL
	}
	if err := s.exec.Navigate(ctx, url, s.cfg.StepTimeout); err != nil {
		return nil, err
	}
	if err := s.exec.Sleep(ctx, s.cfg.PageSettle); err != nil {
		return nil, err
	}

	src := feed.NewSource(
		func(ctx context.Context) ([]feed.Item[schemas.ItemRef], error) {
			hrefs, err := s.exec.Attrs(ctx, locHeadInfoLink, "href", s.cfg.StepTimeout)
			if err != nil {
				return nil, err
			}
			items := make([]feed.Item[schemas.ItemRef], 0, len(hrefs))
			for _, href := range hrefs {
				ref, err := refFromPermalink(href)
				if err != nil {
					continue
				}
				items = append(items, feed.Item[schemas.ItemRef]{Key: ref.String(), Value: ref})
			}
			return items, nil
		},
		func(ctx context.Context) error {
			if err := s.exec.ScrollBy(ctx, s.cfg.FeedScrollPixels); err != nil {
				return err
			}
			return s.exec.Sleep(ctx, s.cfg.FeedScrollSettle)
		},
	)
	return feed.Collect[schemas.ItemRef](ctx, src, feed.Params{Target: maxItems, StallLimit: s.cfg.StallLimit}, s.logger)
}

// RefreshFollowers re-scrapes the follower list, diffs it against the stored
// baseline, and replaces the baseline with the fresh snapshot.
func (s *Session) RefreshFollowers(ctx context.Context) (*schemas.FollowerDelta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireOnline("refresh_followers"); err != nil {
		return nil, err
	}

	cur, err := s.scrapeFollowers(ctx)
	if err != nil {
		return nil, s.fail("refresh_followers", err)
	}

	added, removed := diffFollowers(s.followers, cur)
	s.followers = cur
	s.logger.Info("Refreshed followers.",
		zap.Int("count", len(cur)), zap.Int("added", len(added)), zap.Int("removed", len(removed)))
	return &schemas.FollowerDelta{
		Followers: cur,
		Added:     added,
		Removed:   removed,
		Count:     len(cur),
	}, nil
}

// FollowerCount returns the size of the stored baseline without touching the
// UI.
func (s *Session) FollowerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.followers)
}

func (s *Session) scrapeFollowers(ctx context.Context) ([]string, error) {
	if err := s.exec.Navigate(ctx, followersURL(s.accountID), s.cfg.StepTimeout); err != nil {
		return nil, err
	}
	if err := s.exec.Click(ctx, locFollowerFilter, s.cfg.StepTimeout); err != nil {
		return nil, err
	}
	if err := s.exec.Click(ctx, locFollowerFilterRecent, s.cfg.StepTimeout); err != nil {
		return nil, err
	}

	src := feed.NewSource(
		func(ctx context.Context) ([]feed.Item[string], error) {
			hrefs, err := s.exec.Attrs(ctx, locFollowerCards, "href", s.cfg.StepTimeout)
			if err != nil {
				return nil, err
			}
			items := make([]feed.Item[string], 0, len(hrefs))
			for _, href := range hrefs {
				id := lastSegment(href)
				if id == "" {
					continue
				}
				items = append(items, feed.Item[string]{Key: id, Value: id})
			}
			return items, nil
		},
		func(ctx context.Context) error {
			if err := s.exec.ScrollBy(ctx, s.cfg.FollowerScrollPixels); err != nil {
				return err
			}
			return s.exec.Sleep(ctx, s.cfg.FollowerScrollSettle)
		},
	)
	return feed.Collect[string](ctx, src, feed.Params{StallLimit: s.cfg.StallLimit}, s.logger)
}
