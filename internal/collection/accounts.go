package collection

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/dukerupert/postdeck/internal/api"
	"github.com/dukerupert/postdeck/internal/model"
)

const (
	MsgAccountsLoadFailed   = "Failed to load social accounts. Please try again."
	MsgAccountFieldsMissing = "Platform and API Key are required."
	MsgAccountAdded         = "Social media account added successfully!"
	MsgAccountAddFailed     = "Failed to add social account. Please try again."
	MsgAccountDeleted       = "Social account deleted successfully!"
	MsgAccountDeleteFailed  = "Failed to delete social account. Please try again."
	AccountFlashTime        = 5 * time.Second
)

type AccountsAPI interface {
	ListSocialAccounts(ctx context.Context) ([]model.SocialAccount, error)
	CreateSocialAccount(ctx context.Context, req model.CreateSocialAccountRequest) (*model.SocialAccount, error)
	DeleteSocialAccount(ctx context.Context, id int64) error
	Platforms(ctx context.Context) ([]string, error)
}

// AccountsView holds the connected social accounts.
type AccountsView struct {
	api    AccountsAPI
	logger *slog.Logger
	banner
	accounts  []model.SocialAccount
	platforms []string
}

func NewAccountsView(a AccountsAPI, logger *slog.Logger, opts ...Option) *AccountsView {
	if logger == nil {
		logger = slog.Default()
	}
	v := &AccountsView{
		api:    a,
		logger: logger.With("component", "social_accounts"),
	}
	v.banner.init(opts)
	return v
}

// Load fetches the accounts and, best effort, the supported platforms.
func (v *AccountsView) Load(ctx context.Context) error {
	if err := v.fetch(ctx, &v.loading); err != nil {
		return err
	}
	platforms, err := v.api.Platforms(ctx)
	if err != nil {
		v.logger.Warn("fetch platforms failed", "error", err)
		return nil
	}
	v.mu.Lock()
	v.platforms = platforms
	v.mu.Unlock()
	return nil
}

func (v *AccountsView) Refresh(ctx context.Context) error {
	return v.fetch(ctx, &v.refreshing)
}

func (v *AccountsView) fetch(ctx context.Context, flag *bool) error {
	v.mu.Lock()
	*flag = true
	v.mu.Unlock()

	accounts, err := v.api.ListSocialAccounts(ctx)

	v.mu.Lock()
	defer v.mu.Unlock()
	*flag = false
	if err != nil {
		v.logger.Error("fetch social accounts failed", "error", err)
		return v.fail(err, MsgAccountsLoadFailed)
	}
	v.accounts = accounts
	v.errMsg = ""
	return nil
}

// Create connects a new account and re-fetches the collection.
func (v *AccountsView) Create(ctx context.Context, req model.CreateSocialAccountRequest) error {
	req.Platform = strings.TrimSpace(req.Platform)
	req.APIKey = strings.TrimSpace(req.APIKey)
	if req.ProfileKey != nil && strings.TrimSpace(*req.ProfileKey) == "" {
		req.ProfileKey = nil
	}

	if req.Platform == "" || req.APIKey == "" {
		v.mu.Lock()
		v.errMsg = MsgAccountFieldsMissing
		v.mu.Unlock()
		return &Error{Message: MsgAccountFieldsMissing}
	}

	if _, err := v.api.CreateSocialAccount(ctx, req); err != nil {
		v.logger.Error("create social account failed", "platform", req.Platform, "error", err)
		v.mu.Lock()
		defer v.mu.Unlock()
		return v.fail(err, api.Detail(err, MsgAccountAddFailed))
	}

	v.mu.Lock()
	v.errMsg = ""
	v.flash(MsgAccountAdded, AccountFlashTime)
	v.mu.Unlock()
	v.logger.Info("social account added", "platform", req.Platform)

	return v.fetch(ctx, &v.loading)
}

// Delete removes the account with id once confirmed.
func (v *AccountsView) Delete(ctx context.Context, id int64, confirmed bool) error {
	if !confirmed {
		return ErrNotConfirmed
	}

	err := v.api.DeleteSocialAccount(ctx, id)

	v.mu.Lock()
	defer v.mu.Unlock()
	if err != nil {
		v.logger.Error("delete social account failed", "account_id", id, "error", err)
		return v.fail(err, MsgAccountDeleteFailed)
	}
	v.accounts = slices.DeleteFunc(v.accounts, func(a model.SocialAccount) bool { return a.ID == id })
	v.errMsg = ""
	v.flash(MsgAccountDeleted, AccountFlashTime)
	v.logger.Info("social account deleted", "account_id", id)
	return nil
}

// AccountsSnapshot is what the social accounts page renders.
type AccountsSnapshot struct {
	Status
	Accounts  []model.SocialAccount
	Platforms []string
}

func (v *AccountsView) Snapshot() AccountsSnapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	return AccountsSnapshot{
		Status:    v.status(),
		Accounts:  slices.Clone(v.accounts),
		Platforms: slices.Clone(v.platforms),
	}
}
