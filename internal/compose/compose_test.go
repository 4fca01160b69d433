package compose

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/postdeck/internal/api"
	"github.com/dukerupert/postdeck/internal/model"
)

type fakeAPI struct {
	calls     int
	requests  []model.CreatePostRequest
	err       error
	platforms []string
}

func (f *fakeAPI) Platforms(ctx context.Context) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.platforms, nil
}

func (f *fakeAPI) CreatePost(ctx context.Context, req model.CreatePostRequest) (*model.Post, int, error) {
	f.calls++
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, 0, f.err
	}
	return &model.Post{ID: 1, Content: req.Content, Platforms: req.Platforms, Status: model.PostStatusPublished}, http.StatusCreated, nil
}

var fixedNow = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func newWorkflow(a API) *Workflow {
	return New(a, nil, WithClock(func() time.Time { return fixedNow }))
}

func TestSubmitEmptyContentSendsNothing(t *testing.T) {
	fake := &fakeAPI{}
	w := newWorkflow(fake)
	w.TogglePlatform("twitter", true)

	_, err := w.Submit(context.Background())

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "content", verr.Field)
	assert.Equal(t, MsgContentRequired, verr.Message)
	assert.Zero(t, fake.calls)
}

func TestSubmitWithoutPlatformsSendsNothing(t *testing.T) {
	fake := &fakeAPI{}
	w := newWorkflow(fake)
	require.NoError(t, w.UpdateField("content", "hello"))

	_, err := w.Submit(context.Background())

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "platforms", verr.Field)
	assert.Equal(t, MsgPlatformRequired, verr.Message)
	assert.Zero(t, fake.calls)
}

func TestValidateContentLength(t *testing.T) {
	w := newWorkflow(&fakeAPI{})
	w.TogglePlatform("twitter", true)

	require.NoError(t, w.UpdateField("content", strings.Repeat("é", model.MaxContentLength)))
	assert.NoError(t, w.Validate())

	require.NoError(t, w.UpdateField("content", strings.Repeat("é", model.MaxContentLength+1)))
	var verr *ValidationError
	require.ErrorAs(t, w.Validate(), &verr)
	assert.Equal(t, MsgContentTooLong, verr.Message)
}

func TestValidateScheduleInPast(t *testing.T) {
	w := newWorkflow(&fakeAPI{})
	require.NoError(t, w.UpdateField("content", "hi"))
	w.TogglePlatform("twitter", true)

	past := fixedNow.Add(-time.Minute)
	w.SetSchedule(&past)
	var verr *ValidationError
	require.ErrorAs(t, w.Validate(), &verr)
	assert.Equal(t, "schedule_date", verr.Field)

	future := fixedNow.Add(time.Hour)
	w.SetSchedule(&future)
	assert.NoError(t, w.Validate())
}

func TestAddMediaURL(t *testing.T) {
	w := newWorkflow(&fakeAPI{})

	assert.False(t, w.AddMediaURL("not-a-url"))
	d := w.Draft()
	assert.Empty(t, d.MediaURLs)
	assert.Equal(t, "not-a-url", d.MediaInput)

	assert.True(t, w.AddMediaURL("https://x.com/a.png"))
	d = w.Draft()
	assert.Equal(t, []string{"https://x.com/a.png"}, d.MediaURLs)
	assert.Empty(t, d.MediaInput)
}

func TestValidURL(t *testing.T) {
	tests := []struct {
		raw  string
		want bool
	}{
		{"https://x.com/a.png", true},
		{"http://localhost:8000", true},
		{"mailto:someone@example.com", true},
		{"not-a-url", false},
		{"/relative/path.png", false},
		{"x.com/a.png", false},
		{"", false},
		{"http://", false},
	}
	for _, tt := range tests {
		if got := ValidURL(tt.raw); got != tt.want {
			t.Errorf("ValidURL(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestRemoveMediaURL(t *testing.T) {
	w := newWorkflow(&fakeAPI{})
	w.AddMediaURL("https://a.example/1.png")
	w.AddMediaURL("https://a.example/2.png")
	w.AddMediaURL("https://a.example/3.png")

	w.RemoveMediaURL(1)
	w.RemoveMediaURL(7)
	w.RemoveMediaURL(-1)

	assert.Equal(t, []string{"https://a.example/1.png", "https://a.example/3.png"}, w.Draft().MediaURLs)
}

func TestTagsHaveSetSemantics(t *testing.T) {
	w := newWorkflow(&fakeAPI{})

	assert.True(t, w.AddTag("go"))
	assert.False(t, w.AddTag("go"))
	assert.False(t, w.AddTag("  "))
	assert.True(t, w.AddTag("news"))
	assert.Equal(t, []string{"go", "news"}, w.Draft().Tags)

	w.RemoveTag("go")
	w.RemoveTag("missing")
	assert.Equal(t, []string{"news"}, w.Draft().Tags)
}

func TestUpdateField(t *testing.T) {
	w := newWorkflow(&fakeAPI{})

	require.NoError(t, w.UpdateField("title", "Launch"))
	require.NoError(t, w.UpdateField("platforms", "twitter"))
	require.NoError(t, w.UpdateField("platforms", "linkedin"))
	require.NoError(t, w.UpdateField("platforms", "twitter"))
	require.NoError(t, w.UpdateField("schedule_date", "2026-10-20T09:30:00Z"))

	d := w.Draft()
	assert.Equal(t, "Launch", d.Title)
	assert.Equal(t, []string{"linkedin"}, d.Platforms)
	require.NotNil(t, d.ScheduleDate)
	assert.True(t, d.ScheduleDate.Equal(time.Date(2026, 10, 20, 9, 30, 0, 0, time.UTC)))

	require.NoError(t, w.UpdateField("schedule_date", ""))
	assert.Nil(t, w.Draft().ScheduleDate)

	var verr *ValidationError
	assert.ErrorAs(t, w.UpdateField("schedule_date", "tomorrow"), &verr)
	assert.Error(t, w.UpdateField("colour", "red"))
}

func TestDraftIsACopy(t *testing.T) {
	w := newWorkflow(&fakeAPI{})
	w.TogglePlatform("twitter", true)

	d := w.Draft()
	d.Platforms[0] = "mutated"

	assert.Equal(t, []string{"twitter"}, w.Draft().Platforms)
}

func TestSubmitOmitsEmptyOptionalFields(t *testing.T) {
	fake := &fakeAPI{}
	w := newWorkflow(fake)
	require.NoError(t, w.UpdateField("content", "hello"))
	w.TogglePlatform("twitter", true)

	out, err := w.Submit(context.Background())
	require.NoError(t, err)

	require.Len(t, fake.requests, 1)
	body, err := json.Marshal(fake.requests[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"content":"hello","platforms":["twitter"]}`, string(body))

	assert.Equal(t, PostsPath, out.Redirect)
	assert.Equal(t, RedirectDelay, out.After)
	assert.Equal(t, Draft{}, w.Draft())
}

func TestSubmitIncludesSetOptionalFields(t *testing.T) {
	fake := &fakeAPI{}
	w := newWorkflow(fake)
	require.NoError(t, w.UpdateField("content", "hello"))
	require.NoError(t, w.UpdateField("title", "Greeting"))
	w.TogglePlatform("twitter", true)
	w.AddMediaURL("https://x.com/a.png")
	w.AddTag("hi")
	when := time.Date(2026, 10, 21, 8, 0, 0, 0, time.UTC)
	w.SetSchedule(&when)

	_, err := w.Submit(context.Background())
	require.NoError(t, err)

	body, err := json.Marshal(fake.requests[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"content":"hello",
		"platforms":["twitter"],
		"media_urls":["https://x.com/a.png"],
		"title":"Greeting",
		"tags":["hi"],
		"schedule_date":"2026-10-21T08:00:00.000Z"
	}`, string(body))
}

func TestSubmitFailureKeepsDraft(t *testing.T) {
	fake := &fakeAPI{err: &api.Error{Method: "POST", Path: "/posts/", Status: 400, Detail: "No active social account"}}
	w := newWorkflow(fake)
	require.NoError(t, w.UpdateField("content", "hello"))
	w.TogglePlatform("twitter", true)

	_, err := w.Submit(context.Background())

	var serr *SubmitError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "No active social account", serr.Message)
	assert.Equal(t, "hello", w.Draft().Content)
}

func TestSubmitFailureFallbackMessage(t *testing.T) {
	fake := &fakeAPI{err: errors.New("connection refused")}
	w := newWorkflow(fake)
	require.NoError(t, w.UpdateField("content", "hello"))
	w.TogglePlatform("twitter", true)

	_, err := w.Submit(context.Background())

	var serr *SubmitError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, MsgSubmitFailed, serr.Message)
}

func TestSubmitUnauthorizedCarriesRedirect(t *testing.T) {
	fake := &fakeAPI{err: &api.UnauthorizedError{Path: "/posts/", Redirect: api.LoginRedirect}}
	w := newWorkflow(fake)
	require.NoError(t, w.UpdateField("content", "hello"))
	w.TogglePlatform("twitter", true)

	_, err := w.Submit(context.Background())

	target, ok := api.RedirectFor(err)
	assert.True(t, ok)
	assert.Equal(t, "/login", target)
}

func TestPlatforms(t *testing.T) {
	w := newWorkflow(&fakeAPI{platforms: []string{"twitter", "facebook"}})
	got, err := w.Platforms(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"twitter", "facebook"}, got)

	w = newWorkflow(&fakeAPI{err: errors.New("boom")})
	_, err = w.Platforms(context.Background())
	var serr *SubmitError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, MsgPlatformsFailed, serr.Message)
}

func TestSetPlatforms(t *testing.T) {
	w := newWorkflow(&fakeAPI{})
	w.TogglePlatform("facebook", true)

	w.SetPlatforms([]string{"twitter", "", "linkedin", "twitter"})

	assert.Equal(t, []string{"twitter", "linkedin"}, w.Draft().Platforms)
}

// gatedAPI holds CreatePost until release is closed.
type gatedAPI struct {
	fakeAPI
	started chan struct{}
	release chan struct{}
}

func newGatedAPI() *gatedAPI {
	return &gatedAPI{started: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedAPI) CreatePost(ctx context.Context, req model.CreatePostRequest) (*model.Post, int, error) {
	close(g.started)
	<-g.release
	return g.fakeAPI.CreatePost(ctx, req)
}

type submitResult struct {
	out *Outcome
	err error
}

func submitAsync(w *Workflow) <-chan submitResult {
	done := make(chan submitResult, 1)
	go func() {
		out, err := w.Submit(context.Background())
		done <- submitResult{out, err}
	}()
	return done
}

func readyDraft(t *testing.T, w *Workflow) {
	t.Helper()
	require.NoError(t, w.UpdateField("content", "hello"))
	w.TogglePlatform("twitter", true)
}

func TestSubmitWhileInFlightIsRejected(t *testing.T) {
	gated := newGatedAPI()
	w := newWorkflow(gated)
	readyDraft(t, w)

	done := submitAsync(w)
	<-gated.started
	assert.True(t, w.Submitting())

	_, err := w.Submit(context.Background())
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, MsgSubmitInFlight, verr.Message)

	close(gated.release)
	res := <-done
	require.NoError(t, res.err)
	require.NotNil(t, res.out)

	assert.Equal(t, 1, gated.calls)
	assert.False(t, w.Submitting())
	assert.Empty(t, w.Draft().Content)
}

func TestSubmitKeepsEditsMadeInFlight(t *testing.T) {
	gated := newGatedAPI()
	w := newWorkflow(gated)
	readyDraft(t, w)

	done := submitAsync(w)
	<-gated.started
	assert.True(t, w.AddTag("launch"))
	close(gated.release)

	res := <-done
	require.NoError(t, res.err)

	d := w.Draft()
	assert.Equal(t, "hello", d.Content)
	assert.Equal(t, []string{"launch"}, d.Tags)
	assert.Nil(t, gated.requests[0].Tags, "the sent request predates the edit")
}

func TestSubmitResetsWhenDraftReappliedUnchanged(t *testing.T) {
	gated := newGatedAPI()
	w := newWorkflow(gated)
	readyDraft(t, w)

	done := submitAsync(w)
	<-gated.started
	// A repeated form post carries the same values.
	require.NoError(t, w.UpdateField("content", "hello"))
	w.SetPlatforms([]string{"twitter"})
	close(gated.release)

	require.NoError(t, (<-done).err)
	assert.Empty(t, w.Draft().Content)
	assert.Empty(t, w.Draft().Platforms)
}

func TestSubmitFailureClearsInFlight(t *testing.T) {
	fake := &fakeAPI{err: errors.New("connection refused")}
	w := newWorkflow(fake)
	readyDraft(t, w)

	_, err := w.Submit(context.Background())
	require.Error(t, err)
	assert.False(t, w.Submitting())

	_, err = w.Submit(context.Background())
	var serr *SubmitError
	assert.ErrorAs(t, err, &serr, "a failed submission must not block the next one")
	assert.Equal(t, 2, fake.calls)
}
