package server

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lishuo8109/weibopilot/api/schemas"
	"github.com/lishuo8109/weibopilot/internal/config"
)

type fakeProvider struct {
	state    *schemas.StateView
	stateErr error

	feedback    any
	feedbackErr error
	feedbackRef *schemas.ItemRef

	record    *schemas.PostView
	recordErr error
	recordRef schemas.ItemRef
}

func (f *fakeProvider) Accounts() []string { return []string{"123", "456"} }

func (f *fakeProvider) GetState(_ context.Context, _ string, _, _ int) (*schemas.StateView, error) {
	return f.state, f.stateErr
}

func (f *fakeProvider) GetFeedback(_ context.Context, _ string, ref *schemas.ItemRef) (any, error) {
	f.feedbackRef = ref
	return f.feedback, f.feedbackErr
}

func (f *fakeProvider) GetRecord(_ context.Context, ref schemas.ItemRef) (*schemas.PostView, error) {
	f.recordRef = ref
	return f.record, f.recordErr
}

type fakeDispatcher struct {
	lastReq schemas.CommandRequest
	outcome schemas.Outcome
}

func (f *fakeDispatcher) Dispatch(_ context.Context, req schemas.CommandRequest) schemas.Outcome {
	f.lastReq = req
	return f.outcome
}

func newTestServer(p *fakeProvider, d *fakeDispatcher) *Server {
	return New(config.ServerConfig{Addr: ":0"}, p, d, zap.NewNop())
}

func postJSON(t *testing.T, handler http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func TestHealth(t *testing.T) {
	srv := newTestServer(&fakeProvider{}, &fakeDispatcher{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"status":"ok"`)
	assert.Contains(t, rr.Body.String(), `"123"`)
}

func TestStateDefaultsAndSucceeds(t *testing.T) {
	p := &fakeProvider{state: &schemas.StateView{
		PostsFromFollowings: []schemas.PostView{{AccountID: "11", ItemID: "100", Text: "one"}},
	}}
	srv := newTestServer(p, &fakeDispatcher{})

	rr := postJSON(t, srv.Router(), "/state", `{"agent_id":"123"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"success":true`)
	assert.Contains(t, rr.Body.String(), `"one"`)
}

func TestStateUnknownAccountIs404(t *testing.T) {
	p := &fakeProvider{stateErr: schemas.NewFailure(schemas.FailNotFound, "ghost", "resolve_session", "unknown account id")}
	srv := newTestServer(p, &fakeDispatcher{})

	rr := postJSON(t, srv.Router(), "/state", `{"agent_id":"ghost"}`)
	require.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), `"success":false`)
	assert.Contains(t, rr.Body.String(), schemas.FailNotFound)
}

func TestActionRoutesToDispatcher(t *testing.T) {
	d := &fakeDispatcher{outcome: schemas.Succeed(map[string]string{"weibo_id": "789"})}
	srv := newTestServer(&fakeProvider{}, d)

	rr := postJSON(t, srv.Router(), "/action",
		`{"agent_id":"123","action_type":"post","action_content":"hello"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"789"`)
	assert.Equal(t, "123", d.lastReq.AccountID)
	assert.Equal(t, schemas.ActionPost, d.lastReq.Kind)
	assert.Equal(t, "hello", d.lastReq.Content)
}

func TestFeedbackWithoutItem(t *testing.T) {
	p := &fakeProvider{feedback: &schemas.FollowerDelta{Count: 2, Followers: []string{"x", "y"}}}
	srv := newTestServer(p, &fakeDispatcher{})

	rr := postJSON(t, srv.Router(), "/feedback", `{"agent_id":"123"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Nil(t, p.feedbackRef)
	assert.Contains(t, rr.Body.String(), `"fans_number":2`)
}

func TestFeedbackWithBareItemID(t *testing.T) {
	p := &fakeProvider{feedback: &schemas.Engagement{Like: 7}}
	srv := newTestServer(p, &fakeDispatcher{})

	rr := postJSON(t, srv.Router(), "/feedback", `{"agent_id":"123","weibo_id":"789"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NotNil(t, p.feedbackRef)
	// A bare id targets the agent's own post.
	assert.Equal(t, schemas.ItemRef{AccountID: "123", ItemID: "789"}, *p.feedbackRef)
}

func TestRecordParsesReference(t *testing.T) {
	p := &fakeProvider{record: &schemas.PostView{AccountID: "55", ItemID: "500", Text: "public"}}
	srv := newTestServer(p, &fakeDispatcher{})

	rr := postJSON(t, srv.Router(), "/record", `{"object_id":"55/500"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, schemas.ItemRef{AccountID: "55", ItemID: "500"}, p.recordRef)
	assert.Contains(t, rr.Body.String(), `"public"`)
}

func TestRecordRejectsMalformedReference(t *testing.T) {
	srv := newTestServer(&fakeProvider{}, &fakeDispatcher{})

	rr := postJSON(t, srv.Router(), "/record", `{"object_id":"no-separator"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), schemas.FailValidation)
}

func TestMalformedBodyIs400(t *testing.T) {
	srv := newTestServer(&fakeProvider{}, &fakeDispatcher{})

	rr := postJSON(t, srv.Router(), "/state", `{not json`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}
