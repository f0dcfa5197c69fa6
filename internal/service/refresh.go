package service

import "context"

// RefreshHook is invoked after designated service methods succeed, with the
// id of the affected account. It replaces implicit interception with explicit
// decoration: callers see exactly which methods trigger a refresh.
type RefreshHook func(ctx context.Context, accountID string)

type refreshedAuth struct {
	Auth
	hook RefreshHook
}

// WithRefresh wraps an Auth so that Register, Login and Update invoke hook on
// success.
func WithRefresh(inner Auth, hook RefreshHook) Auth {
	return &refreshedAuth{Auth: inner, hook: hook}
}

func (r *refreshedAuth) Register(ctx context.Context, params RegisterParams) (*UserView, error) {
	view, err := r.Auth.Register(ctx, params)
	if err == nil {
		r.hook(ctx, view.ID)
	}
	return view, err
}

func (r *refreshedAuth) Login(ctx context.Context, params LoginParams) (*UserView, error) {
	view, err := r.Auth.Login(ctx, params)
	if err == nil {
		r.hook(ctx, view.ID)
	}
	return view, err
}

func (r *refreshedAuth) Update(ctx context.Context, accountID string, params UpdateParams) (*UserView, error) {
	view, err := r.Auth.Update(ctx, accountID, params)
	if err == nil {
		r.hook(ctx, accountID)
	}
	return view, err
}
