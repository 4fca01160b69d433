package collection

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/dukerupert/postdeck/internal/api"
	"github.com/dukerupert/postdeck/internal/model"
)

const (
	MsgDashboardFailed = "Failed to load dashboard data. Please try again later."
	recentPostCount    = 5
)

type DashboardAPI interface {
	ListSocialAccounts(ctx context.Context) ([]model.SocialAccount, error)
	ListPosts(ctx context.Context) ([]model.Post, error)
}

// Stats is the dashboard summary.
type Stats struct {
	SocialAccounts int
	TotalPosts     int
	ScheduledPosts int
	RecentPosts    []model.Post
}

// LoadDashboard fetches accounts and posts concurrently and joins them.
// If either request fails the whole dashboard fails.
func LoadDashboard(ctx context.Context, a DashboardAPI) (*Stats, error) {
	var (
		accounts []model.SocialAccount
		posts    []model.Post
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		accounts, err = a.ListSocialAccounts(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		posts, err = a.ListPosts(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		if errors.Is(err, api.ErrUnauthorized) {
			return nil, err
		}
		return nil, &Error{Message: MsgDashboardFailed, Err: err}
	}

	stats := &Stats{
		SocialAccounts: len(accounts),
		TotalPosts:     len(posts),
		ScheduledPosts: len(Filter(posts, TabScheduled)),
	}
	stats.RecentPosts = posts[:min(len(posts), recentPostCount)]
	return stats, nil
}
