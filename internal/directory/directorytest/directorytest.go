// Package directorytest provides a configurable fake directory client for
// handler tests.
package directorytest

import (
	"context"
	"errors"

	"github.com/iotfleet/usergate/internal/directory"
)

// Fake implements directory.Client by delegating to function fields. A call
// whose field is unset fails with an explanatory error.
type Fake struct {
	ListUsersFunc        func(ctx context.Context, sel directory.Projection) (directory.Page[directory.User], error)
	NextUsersFunc        func(ctx context.Context, token string) (directory.Page[directory.User], error)
	GetUserFunc          func(ctx context.Context, id string, sel directory.Projection) (*directory.User, error)
	CreateUserFunc       func(ctx context.Context, nu directory.NewUser) (*directory.User, error)
	UpdateUserFunc       func(ctx context.Context, id string, upd directory.UserUpdate) (*directory.User, error)
	DeleteUserFunc       func(ctx context.Context, id string) error
	CreateInvitationFunc func(ctx context.Context, email, redirectURL string, sendMessage bool) (*directory.Invitation, error)
	ListGroupMembersFunc func(ctx context.Context, groupID string) (directory.Page[string], error)
	NextGroupMembersFunc func(ctx context.Context, token string) (directory.Page[string], error)
}

var errNotConfigured = errors.New("directorytest: call not configured")

func (f *Fake) ListUsers(ctx context.Context, sel directory.Projection) (directory.Page[directory.User], error) {
	if f.ListUsersFunc == nil {
		return directory.Page[directory.User]{}, errNotConfigured
	}
	return f.ListUsersFunc(ctx, sel)
}

func (f *Fake) NextUsers(ctx context.Context, token string) (directory.Page[directory.User], error) {
	if f.NextUsersFunc == nil {
		return directory.Page[directory.User]{}, errNotConfigured
	}
	return f.NextUsersFunc(ctx, token)
}

func (f *Fake) GetUser(ctx context.Context, id string, sel directory.Projection) (*directory.User, error) {
	if f.GetUserFunc == nil {
		return nil, errNotConfigured
	}
	return f.GetUserFunc(ctx, id, sel)
}

func (f *Fake) CreateUser(ctx context.Context, nu directory.NewUser) (*directory.User, error) {
	if f.CreateUserFunc == nil {
		return nil, errNotConfigured
	}
	return f.CreateUserFunc(ctx, nu)
}

func (f *Fake) UpdateUser(ctx context.Context, id string, upd directory.UserUpdate) (*directory.User, error) {
	if f.UpdateUserFunc == nil {
		return nil, errNotConfigured
	}
	return f.UpdateUserFunc(ctx, id, upd)
}

func (f *Fake) DeleteUser(ctx context.Context, id string) error {
	if f.DeleteUserFunc == nil {
		return errNotConfigured
	}
	return f.DeleteUserFunc(ctx, id)
}

func (f *Fake) CreateInvitation(ctx context.Context, email, redirectURL string, sendMessage bool) (*directory.Invitation, error) {
	if f.CreateInvitationFunc == nil {
		return nil, errNotConfigured
	}
	return f.CreateInvitationFunc(ctx, email, redirectURL, sendMessage)
}

func (f *Fake) ListGroupMembers(ctx context.Context, groupID string) (directory.Page[string], error) {
	if f.ListGroupMembersFunc == nil {
		return directory.Page[string]{}, errNotConfigured
	}
	return f.ListGroupMembersFunc(ctx, groupID)
}

func (f *Fake) NextGroupMembers(ctx context.Context, token string) (directory.Page[string], error) {
	if f.NextGroupMembersFunc == nil {
		return directory.Page[string]{}, errNotConfigured
	}
	return f.NextGroupMembersFunc(ctx, token)
}
