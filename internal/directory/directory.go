// Package directory defines the contract for the remote directory service:
// user records, invitations, group membership, and cursor-based pages.
package directory

import "context"

// User is a directory user record. Fields outside the requested projection
// are left at their zero value.
type User struct {
	ID                string     `json:"id,omitempty"`
	DisplayName       string     `json:"displayName,omitempty"`
	GivenName         string     `json:"givenName,omitempty"`
	Surname           string     `json:"surname,omitempty"`
	MobilePhone       string     `json:"mobilePhone,omitempty"`
	AccountEnabled    *bool      `json:"accountEnabled,omitempty"`
	Identities        []Identity `json:"identities,omitempty"`
	ExternalUserState string     `json:"externalUserState,omitempty"`
}

// Identity is one sign-in identity bound to a user.
type Identity struct {
	SignInType       string `json:"signInType"`
	Issuer           string `json:"issuer"`
	IssuerAssignedID string `json:"issuerAssignedId"`
}

// NewUser describes a user to create directly (without an invitation).
type NewUser struct {
	GivenName        string
	Surname          string
	DisplayName      string
	MobilePhone      string
	Identities       []Identity
	Password         string
	PasswordPolicies string
}

// UserUpdate is a partial update; nil fields are left untouched.
type UserUpdate struct {
	GivenName      *string `json:"givenName,omitempty"`
	Surname        *string `json:"surname,omitempty"`
	DisplayName    *string `json:"displayName,omitempty"`
	MobilePhone    *string `json:"mobilePhone,omitempty"`
	AccountEnabled *bool   `json:"accountEnabled,omitempty"`
}

// Invitation is the directory's record of a pending external user.
type Invitation struct {
	InvitedUserEmail  string
	InviteRedirectURL string
	SendMessage       bool

	// InvitedUserID is the id of the pending user record created by
	// the invitation.
	InvitedUserID string
	Status        string
}

// Page is one slice of a cursor-based result set. An empty NextToken
// terminates the walk; a non-empty token must be exchanged for the next
// page before the walk may conclude.
type Page[T any] struct {
	Items     []T
	NextToken string
}

// Projection names the fields a read operation should return.
type Projection []string

// Client is the authenticated directory capability the operation handlers
// depend on. Implementations own token acquisition and the transport; the
// callers never retry.
type Client interface {
	// ListUsers starts a walk over all users with the given projection.
	ListUsers(ctx context.Context, sel Projection) (Page[User], error)
	// NextUsers exchanges a continuation token for the next page.
	NextUsers(ctx context.Context, token string) (Page[User], error)

	// GetUser fetches one user by id. Not-found surfaces as an error
	// classified by IsNotFound.
	GetUser(ctx context.Context, id string, sel Projection) (*User, error)
	CreateUser(ctx context.Context, nu NewUser) (*User, error)
	UpdateUser(ctx context.Context, id string, upd UserUpdate) (*User, error)
	DeleteUser(ctx context.Context, id string) error

	// CreateInvitation creates a pending user for the given email and
	// returns the invitation with the emergent user id filled in.
	CreateInvitation(ctx context.Context, email, redirectURL string, sendMessage bool) (*Invitation, error)

	// ListGroupMembers starts a walk over the member ids of one group.
	ListGroupMembers(ctx context.Context, groupID string) (Page[string], error)
	NextGroupMembers(ctx context.Context, token string) (Page[string], error)
}
