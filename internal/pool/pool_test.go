package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/lishuo8109/weibopilot/api/schemas"
	"github.com/lishuo8109/weibopilot/internal/session"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeSession is a canned AccountSession. A shared probe tracks how many
// sessions are inside a UI-touching call at once.
type fakeSession struct {
	accountID string
	online    atomic.Bool
	loginErr  error
	logins    atomic.Int32

	probe *concurrencyProbe

	posts map[string]*schemas.Post // keyed by ref string
	feeds map[session.FeedKind][]schemas.ItemRef
	delta *schemas.FollowerDelta
}

type concurrencyProbe struct {
	active int32
	max    int32
}

func (p *concurrencyProbe) enter() func() {
	if p == nil {
		return func() {}
	}
	n := atomic.AddInt32(&p.active, 1)
	for {
		max := atomic.LoadInt32(&p.max)
		if n <= max || atomic.CompareAndSwapInt32(&p.max, max, n) {
			break
		}
	}
	time.Sleep(time.Millisecond)
	return func() { atomic.AddInt32(&p.active, -1) }
}

func newFakeSession(accountID string) *fakeSession {
	f := &fakeSession{
		accountID: accountID,
		posts:     map[string]*schemas.Post{},
		feeds:     map[session.FeedKind][]schemas.ItemRef{},
	}
	return f
}

func (f *fakeSession) AccountID() string   { return f.accountID }
func (f *fakeSession) DisplayName() string { return "user-" + f.accountID }
func (f *fakeSession) Online() bool        { return f.online.Load() }

func (f *fakeSession) Login(context.Context) error {
	f.logins.Add(1)
	if f.loginErr != nil {
		return f.loginErr
	}
	f.online.Store(true)
	return nil
}

func (f *fakeSession) Close(context.Context) error { return nil }

func (f *fakeSession) Post(context.Context, string) (*session.PostReceipt, error) {
	defer f.probe.enter()()
	return &session.PostReceipt{
		Ref: schemas.ItemRef{AccountID: f.accountID, ItemID: "1"},
	}, nil
}

func (f *fakeSession) Repost(_ context.Context, ref schemas.ItemRef, _ string) (*session.ActionReceipt, error) {
	defer f.probe.enter()()
	return &session.ActionReceipt{TargetRef: ref}, nil
}

func (f *fakeSession) Comment(_ context.Context, ref schemas.ItemRef, _ string) (*session.ActionReceipt, error) {
	defer f.probe.enter()()
	return &session.ActionReceipt{TargetRef: ref}, nil
}

func (f *fakeSession) Like(_ context.Context, ref schemas.ItemRef) (*session.ActionReceipt, error) {
	defer f.probe.enter()()
	return &session.ActionReceipt{TargetRef: ref}, nil
}

func (f *fakeSession) Follow(context.Context, string) error {
	defer f.probe.enter()()
	return nil
}

func (f *fakeSession) Unfollow(context.Context, string) error {
	defer f.probe.enter()()
	return nil
}

func (f *fakeSession) FetchPost(_ context.Context, ref schemas.ItemRef, _ int) (*schemas.Post, error) {
	defer f.probe.enter()()
	post, ok := f.posts[ref.String()]
	if !ok {
		return nil, schemas.NewFailure(schemas.FailStepTimeout, f.accountID, "fetch_post", "no such item")
	}
	return post, nil
}

func (f *fakeSession) FetchFeed(_ context.Context, kind session.FeedKind, maxItems int) ([]schemas.ItemRef, error) {
	defer f.probe.enter()()
	refs := f.feeds[kind]
	if len(refs) > maxItems {
		refs = refs[:maxItems]
	}
	return refs, nil
}

func (f *fakeSession) RefreshFollowers(context.Context) (*schemas.FollowerDelta, error) {
	defer f.probe.enter()()
	if f.delta == nil {
		return nil, schemas.NewFailure(schemas.FailStepTimeout, f.accountID, "refresh_followers", "scrape failed")
	}
	return f.delta, nil
}

func factoryFor(sessions map[string]*fakeSession) Factory {
	return func(_ context.Context, cred schemas.AccountCredential) (AccountSession, error) {
		return sessions[cred.AccountID], nil
	}
}

func startedPool(t *testing.T, sessions map[string]*fakeSession, capacity int64) *Pool {
	t.Helper()
	creds := make([]schemas.AccountCredential, 0, len(sessions))
	for id := range sessions {
		creds = append(creds, schemas.AccountCredential{AccountID: id, Cookie: "c", OnlineState: schemas.OnlineOn})
	}
	p := New(creds, factoryFor(sessions), capacity, zap.NewNop())
	require.NoError(t, p.Start(context.Background()))
	return p
}

func TestStartLogsInFlaggedAccounts(t *testing.T) {
	a := newFakeSession("a")
	b := newFakeSession("b")
	sessions := map[string]*fakeSession{"a": a, "b": b}

	creds := []schemas.AccountCredential{
		{AccountID: "a", Cookie: "c", OnlineState: schemas.OnlineOn},
		{AccountID: "b", Cookie: "c", OnlineState: schemas.OnlineOff},
	}
	p := New(creds, factoryFor(sessions), 10, zap.NewNop())
	require.NoError(t, p.Start(context.Background()))

	assert.Equal(t, 2, p.Size())
	assert.Equal(t, int32(1), a.logins.Load())
	assert.Zero(t, b.logins.Load())
	assert.True(t, a.Online())
	assert.False(t, b.Online())
}

func TestStartToleratesLoginFailure(t *testing.T) {
	a := newFakeSession("a")
	a.loginErr = schemas.NewFailure(schemas.FailLogin, "a", "login", "bad cookie")

	p := startedPool(t, map[string]*fakeSession{"a": a}, 10)
	assert.Equal(t, 1, p.Size())
	assert.False(t, a.Online())
}

func TestStartFailsOnSessionCreationError(t *testing.T) {
	boom := errors.New("browser failed to launch")
	factory := func(context.Context, schemas.AccountCredential) (AccountSession, error) {
		return nil, boom
	}
	p := New([]schemas.AccountCredential{{AccountID: "a"}}, factory, 10, zap.NewNop())

	err := p.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestUnknownAccountIsNotFound(t *testing.T) {
	p := startedPool(t, map[string]*fakeSession{"a": newFakeSession("a")}, 10)

	_, err := p.Execute(context.Background(), "ghost", func(_ context.Context, sess AccountSession) (any, error) {
		return sess.Post(context.Background(), "hi")
	})
	var failure *schemas.Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, schemas.FailNotFound, failure.Kind)
	assert.Equal(t, "ghost", failure.AccountID)
}

func TestLimiterCapsConcurrentOperations(t *testing.T) {
	probe := &concurrencyProbe{}
	sessions := map[string]*fakeSession{}
	var creds []string
	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		s := newFakeSession(id)
		s.probe = probe
		sessions[id] = s
		creds = append(creds, id)
	}

	const capacity = 2
	p := startedPool(t, sessions, capacity)
	atomic.StoreInt32(&probe.max, 0)

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		id := creds[i%len(creds)]
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Execute(context.Background(), id, func(ctx context.Context, sess AccountSession) (any, error) {
				return sess.Like(ctx, schemas.ItemRef{AccountID: "9", ItemID: "1"})
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt32(&probe.max), int32(capacity),
		"more operations in flight than the limiter capacity")
}

func TestGetStateComposesAndSkipsFailedHydrations(t *testing.T) {
	a := newFakeSession("a")
	r1 := schemas.ItemRef{AccountID: "11", ItemID: "100"}
	r2 := schemas.ItemRef{AccountID: "22", ItemID: "200"}
	r3 := schemas.ItemRef{AccountID: "33", ItemID: "300"}
	a.feeds[session.FeedHome] = []schemas.ItemRef{r1, r2}
	a.feeds[session.FeedHot] = []schemas.ItemRef{r3}
	a.posts[r1.String()] = &schemas.Post{Ref: r1, Author: "u1", Text: "one"}
	// r2 is missing: its hydration fails and the item is skipped.
	a.posts[r3.String()] = &schemas.Post{Ref: r3, Author: "u3", Text: "three"}

	p := startedPool(t, map[string]*fakeSession{"a": a}, 10)

	state, err := p.GetState(context.Background(), "a", 5, 5)
	require.NoError(t, err)
	require.Len(t, state.PostsFromFollowings, 1)
	assert.Equal(t, "one", state.PostsFromFollowings[0].Text)
	require.Len(t, state.PostsFromRecommends, 1)
	assert.Equal(t, "three", state.PostsFromRecommends[0].Text)
}

func TestGetFeedbackWithoutRefReturnsFollowerDelta(t *testing.T) {
	a := newFakeSession("a")
	a.delta = &schemas.FollowerDelta{
		Followers: []string{"x", "y"},
		Added:     []string{"y"},
		Count:     2,
	}
	p := startedPool(t, map[string]*fakeSession{"a": a}, 10)

	got, err := p.GetFeedback(context.Background(), "a", nil)
	require.NoError(t, err)
	delta, ok := got.(*schemas.FollowerDelta)
	require.True(t, ok)
	assert.Equal(t, 2, delta.Count)
	assert.Equal(t, []string{"y"}, delta.Added)
}

func TestGetFeedbackWithRefReturnsEngagement(t *testing.T) {
	a := newFakeSession("a")
	ref := schemas.ItemRef{AccountID: "a", ItemID: "1"}
	a.posts[ref.String()] = &schemas.Post{
		Ref:          ref,
		LikeCount:    7,
		CommentCount: 2,
		RepostCount:  1,
		Comments:     []string{"nice", "wow"},
	}
	p := startedPool(t, map[string]*fakeSession{"a": a}, 10)

	got, err := p.GetFeedback(context.Background(), "a", &ref)
	require.NoError(t, err)
	eng, ok := got.(*schemas.Engagement)
	require.True(t, ok)
	assert.Equal(t, 7, eng.Like)
	assert.Equal(t, 2, eng.Comment)
	assert.Equal(t, 1, eng.Repost)
	assert.Equal(t, []string{"nice", "wow"}, eng.CommentTexts)
}

func TestGetRecordServedByAnyOnlineSession(t *testing.T) {
	a := newFakeSession("a")
	ref := schemas.ItemRef{AccountID: "55", ItemID: "500"}
	a.posts[ref.String()] = &schemas.Post{Ref: ref, Author: "stranger", Text: "public item"}
	p := startedPool(t, map[string]*fakeSession{"a": a}, 10)

	view, err := p.GetRecord(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, "55", view.AccountID)
	assert.Equal(t, "public item", view.Text)
}

func TestGetRecordWithNoOnlineSession(t *testing.T) {
	a := newFakeSession("a")
	a.loginErr = errors.New("nope")
	p := startedPool(t, map[string]*fakeSession{"a": a}, 10)

	_, err := p.GetRecord(context.Background(), schemas.ItemRef{AccountID: "55", ItemID: "500"})
	var failure *schemas.Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, schemas.FailNotFound, failure.Kind)
}
