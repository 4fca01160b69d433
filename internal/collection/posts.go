package collection

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/dukerupert/postdeck/internal/model"
)

const (
	MsgPostsLoadFailed   = "Failed to load posts. Please try again."
	MsgPostDeleted       = "Post deleted successfully"
	MsgPostDeleteFailed  = "Failed to delete post. Please try again."
	PostDeletedFlashTime = 3 * time.Second
)

// Tab selects a client-side partition of the posts collection.
type Tab string

const (
	TabAll       Tab = "all"
	TabPublished Tab = "published"
	TabScheduled Tab = "scheduled"
	TabFailed    Tab = "failed"
)

// Tabs lists the tabs in display order.
var Tabs = []Tab{TabAll, TabPublished, TabScheduled, TabFailed}

// ParseTab maps a query value to a tab. Unknown values select TabAll.
func ParseTab(s string) Tab {
	switch Tab(s) {
	case TabPublished, TabScheduled, TabFailed:
		return Tab(s)
	}
	return TabAll
}

// Filter returns the posts visible under tab. It never issues a request.
func Filter(posts []model.Post, tab Tab) []model.Post {
	if tab == TabAll || tab == "" {
		return slices.Clone(posts)
	}
	var out []model.Post
	for _, p := range posts {
		if p.Status == model.PostStatus(tab) {
			out = append(out, p)
		}
	}
	return out
}

type PostsAPI interface {
	ListPosts(ctx context.Context) ([]model.Post, error)
	DeletePost(ctx context.Context, id int64) error
}

// PostsView holds the fetched posts collection.
type PostsView struct {
	api    PostsAPI
	logger *slog.Logger
	banner
	posts []model.Post
}

func NewPostsView(a PostsAPI, logger *slog.Logger, opts ...Option) *PostsView {
	if logger == nil {
		logger = slog.Default()
	}
	v := &PostsView{
		api:    a,
		logger: logger.With("component", "posts"),
	}
	v.banner.init(opts)
	return v
}

// Load fetches the whole collection.
func (v *PostsView) Load(ctx context.Context) error {
	return v.fetch(ctx, &v.loading)
}

// Refresh re-fetches the collection under the refreshing indicator.
func (v *PostsView) Refresh(ctx context.Context) error {
	return v.fetch(ctx, &v.refreshing)
}

func (v *PostsView) fetch(ctx context.Context, flag *bool) error {
	v.mu.Lock()
	*flag = true
	v.errMsg = ""
	v.mu.Unlock()

	posts, err := v.api.ListPosts(ctx)

	v.mu.Lock()
	defer v.mu.Unlock()
	*flag = false
	if err != nil {
		v.logger.Error("fetch posts failed", "error", err)
		return v.fail(err, MsgPostsLoadFailed)
	}
	v.posts = posts
	return nil
}

// Delete removes the post with id once confirmed. The local collection is
// only changed after the service accepts the delete.
func (v *PostsView) Delete(ctx context.Context, id int64, confirmed bool) error {
	if !confirmed {
		return ErrNotConfirmed
	}

	err := v.api.DeletePost(ctx, id)

	v.mu.Lock()
	defer v.mu.Unlock()
	if err != nil {
		v.logger.Error("delete post failed", "post_id", id, "error", err)
		return v.fail(err, MsgPostDeleteFailed)
	}
	v.posts = slices.DeleteFunc(v.posts, func(p model.Post) bool { return p.ID == id })
	v.errMsg = ""
	v.flash(MsgPostDeleted, PostDeletedFlashTime)
	v.logger.Info("post deleted", "post_id", id)
	return nil
}

// PostsSnapshot is what the posts page renders.
type PostsSnapshot struct {
	Status
	Tab   Tab
	Posts []model.Post
	Total int
}

// Snapshot returns the posts visible under tab along with the banner state.
func (v *PostsView) Snapshot(tab Tab) PostsSnapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	return PostsSnapshot{
		Status: v.status(),
		Tab:    tab,
		Posts:  Filter(v.posts, tab),
		Total:  len(v.posts),
	}
}
