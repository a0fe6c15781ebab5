// Package pool owns all account sessions for the process lifetime. It bounds
// total concurrent UI activity with a global counting limiter, routes
// operations to the session owning the target account, and converts unknown
// accounts into structured not-found failures.
package pool

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/lishuo8109/weibopilot/api/schemas"
	"github.com/lishuo8109/weibopilot/internal/session"
)

// feedbackMaxComments caps comment collection when distilling an item's
// engagement for GetFeedback.
const feedbackMaxComments = 100

// AccountSession is the session surface the pool routes to. *session.Session
// implements it; tests substitute fakes.
type AccountSession interface {
	AccountID() string
	DisplayName() string
	Online() bool
	Login(ctx context.Context) error
	Close(ctx context.Context) error

	Post(ctx context.Context, content string) (*session.PostReceipt, error)
	Repost(ctx context.Context, ref schemas.ItemRef, text string) (*session.ActionReceipt, error)
	Comment(ctx context.Context, ref schemas.ItemRef, text string) (*session.ActionReceipt, error)
	Like(ctx context.Context, ref schemas.ItemRef) (*session.ActionReceipt, error)
	Follow(ctx context.Context, accountID string) error
	Unfollow(ctx context.Context, accountID string) error
	FetchPost(ctx context.Context, ref schemas.ItemRef, maxComments int) (*schemas.Post, error)
	FetchFeed(ctx context.Context, kind session.FeedKind, maxItems int) ([]schemas.ItemRef, error)
	RefreshFollowers(ctx context.Context) (*schemas.FollowerDelta, error)
}

var _ AccountSession = (*session.Session)(nil)

// Factory builds one session for a credential, including its UI handle.
type Factory func(ctx context.Context, cred schemas.AccountCredential) (AccountSession, error)

// Pool maps account ids to sessions. The mapping is built once by Start and
// never resized afterwards.
type Pool struct {
	limiter *semaphore.Weighted
	factory Factory
	creds   []schemas.AccountCredential
	logger  *zap.Logger

	mu       sync.RWMutex
	sessions map[string]AccountSession
}

// New builds an empty pool. capacity is the global limiter size shared by
// warm-up and steady-state operations.
func New(creds []schemas.AccountCredential, factory Factory, capacity int64, logger *zap.Logger) *Pool {
	return &Pool{
		limiter:  semaphore.NewWeighted(capacity),
		factory:  factory,
		creds:    creds,
		logger:   logger.Named("pool"),
		sessions: make(map[string]AccountSession, len(creds)),
	}
}

// Start creates one session per credential in parallel, each creation bounded
// by the same limiter steady-state operations use, and logs in the accounts
// flagged online. A failed login leaves that session offline but does not
// fail the warm-up; a failed creation does.
func (p *Pool) Start(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, cred := range p.creds {
		cred := cred
		g.Go(func() error {
			if err := p.limiter.Acquire(gctx, 1); err != nil {
				return err
			}
			defer p.limiter.Release(1)

			sess, err := p.factory(gctx, cred)
			if err != nil {
				return fmt.Errorf("failed to create session for %s: %w", cred.AccountID, err)
			}
			p.register(sess)

			if cred.OnlineState == schemas.OnlineOn {
				if err := sess.Login(gctx); err != nil {
					p.logger.Warn("Warm-up login failed; session stays offline.",
						zap.String("account_id", cred.AccountID), zap.Error(err))
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	p.logger.Info("Pool started.", zap.Int("sessions", p.Size()))
	return nil
}

func (p *Pool) register(sess AccountSession) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessions[sess.AccountID()] = sess
}

// Size returns the number of registered sessions.
func (p *Pool) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.sessions)
}

// Accounts returns the registered account ids in sorted order.
func (p *Pool) Accounts() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := make([]string, 0, len(p.sessions))
	for id := range p.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close releases every session's UI handle.
func (p *Pool) Close(ctx context.Context) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for id, sess := range p.sessions {
		if err := sess.Close(ctx); err != nil {
			p.logger.Warn("Session close failed.", zap.String("account_id", id), zap.Error(err))
		}
	}
}

func (p *Pool) session(accountID string) (AccountSession, *schemas.Failure) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	sess, ok := p.sessions[accountID]
	if !ok {
		return nil, schemas.NewFailure(schemas.FailNotFound, accountID, "resolve_session",
			"unknown account id")
	}
	return sess, nil
}

// anyOnline picks an arbitrary online session. Viewing a public item does not
// depend on which authenticated identity performs the view.
func (p *Pool) anyOnline() (AccountSession, *schemas.Failure) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, sess := range p.sessions {
		if sess.Online() {
			return sess, nil
		}
	}
	return nil, schemas.NewFailure(schemas.FailNotFound, "", "resolve_session",
		"no online session available")
}

// withSession runs fn against the target account's session under one global
// limiter slot. The slot is released unconditionally.
func (p *Pool) withSession(ctx context.Context, accountID string, fn func(context.Context, AccountSession) error) error {
	if err := p.limiter.Acquire(ctx, 1); err != nil {
		return schemas.NewFailure(schemas.FailInternal, accountID, "acquire_slot", err.Error())
	}
	defer p.limiter.Release(1)

	sess, failure := p.session(accountID)
	if failure != nil {
		return failure
	}
	return fn(ctx, sess)
}

// Execute is the dispatcher's entry point: one limiter slot, session
// resolution, then fn.
func (p *Pool) Execute(ctx context.Context, accountID string, fn func(context.Context, AccountSession) (any, error)) (any, error) {
	var out any
	err := p.withSession(ctx, accountID, func(ctx context.Context, sess AccountSession) error {
		var err error
		out, err = fn(ctx, sess)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Pool) fetchFeedRefs(ctx context.Context, accountID string, kind session.FeedKind, n int) ([]schemas.ItemRef, error) {
	var refs []schemas.ItemRef
	err := p.withSession(ctx, accountID, func(ctx context.Context, sess AccountSession) error {
		var err error
		refs, err = sess.FetchFeed(ctx, kind, n)
		return err
	})
	return refs, err
}

// hydrate fetches each reference in full under its own limiter slot and lock
// acquisition, so a composite read never monopolizes the account. Items that
// fail to hydrate are skipped.
func (p *Pool) hydrate(ctx context.Context, accountID string, refs []schemas.ItemRef) []schemas.PostView {
	views := make([]schemas.PostView, 0, len(refs))
	for _, ref := range refs {
		var post *schemas.Post
		err := p.withSession(ctx, accountID, func(ctx context.Context, sess AccountSession) error {
			var err error
			post, err = sess.FetchPost(ctx, ref, 0)
			return err
		})
		if err != nil {
			p.logger.Warn("Item hydration failed; skipping.",
				zap.String("account_id", accountID), zap.String("target", ref.String()), zap.Error(err))
			continue
		}
		views = append(views, post.View())
	}
	return views
}

// GetState composes the account's home feed and the hot feed, each item
// hydrated into a full projection.
func (p *Pool) GetState(ctx context.Context, accountID string, nFollowing, nRecommend int) (*schemas.StateView, error) {
	homeRefs, err := p.fetchFeedRefs(ctx, accountID, session.FeedHome, nFollowing)
	if err != nil {
		return nil, err
	}
	hotRefs, err := p.fetchFeedRefs(ctx, accountID, session.FeedHot, nRecommend)
	if err != nil {
		return nil, err
	}
	return &schemas.StateView{
		PostsFromFollowings: p.hydrate(ctx, accountID, homeRefs),
		PostsFromRecommends: p.hydrate(ctx, accountID, hotRefs),
	}, nil
}

// GetFeedback returns the account's follower delta when no item is given, or
// the item's engagement distillation when one is.
func (p *Pool) GetFeedback(ctx context.Context, accountID string, ref *schemas.ItemRef) (any, error) {
	if ref == nil {
		var delta *schemas.FollowerDelta
		err := p.withSession(ctx, accountID, func(ctx context.Context, sess AccountSession) error {
			var err error
			delta, err = sess.RefreshFollowers(ctx)
			return err
		})
		if err != nil {
			return nil, err
		}
		return delta, nil
	}

	var post *schemas.Post
	err := p.withSession(ctx, accountID, func(ctx context.Context, sess AccountSession) error {
		var err error
		post, err = sess.FetchPost(ctx, *ref, feedbackMaxComments)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &schemas.Engagement{
		Like:         post.LikeCount,
		Comment:      post.CommentCount,
		Repost:       post.RepostCount,
		CommentTexts: post.Comments,
	}, nil
}

// GetRecord fetches an arbitrary public item through any online session.
func (p *Pool) GetRecord(ctx context.Context, ref schemas.ItemRef) (*schemas.PostView, error) {
	if err := p.limiter.Acquire(ctx, 1); err != nil {
		return nil, schemas.NewFailure(schemas.FailInternal, "", "acquire_slot", err.Error())
	}
	defer p.limiter.Release(1)

	sess, failure := p.anyOnline()
	if failure != nil {
		return nil, failure
	}
	post, err := sess.FetchPost(ctx, ref, 0)
	if err != nil {
		return nil, err
	}
	view := post.View()
	return &view, nil
}
