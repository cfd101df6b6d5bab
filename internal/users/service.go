// Package users implements the user-management operation handlers over a
// directory client.
package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/iotfleet/usergate/internal/config"
	"github.com/iotfleet/usergate/internal/directory"
	"github.com/iotfleet/usergate/internal/platform/logutil"
)

var (
	ErrInvitationFailed = errors.New("invitation failed")
	ErrDeleteFailed     = errors.New("delete failed")
	ErrToggleFailed     = errors.New("toggle failed")
)

// listProjection is the field set returned by the list operation.
var listProjection = directory.Projection{
	"displayName", "mobilePhone", "surname", "givenName", "id",
	"identities", "accountEnabled", "externalUserState",
}

// getProjection is the field set returned by single-user reads.
var getProjection = directory.Projection{
	"displayName", "id", "identities", "accountEnabled",
}

const defaultMemberConcurrency = 4

// Profile carries the caller-supplied profile fields. Groups and Email are
// accepted for wire compatibility but not applied by profile edits.
type Profile struct {
	FirstName string
	LastName  string
	Phone     string
	Groups    []string
	Email     string
}

// DeleteAck acknowledges a completed delete.
type DeleteAck struct {
	UserID  string `json:"userId"`
	Deleted bool   `json:"deleted"`
}

// ToggleAck acknowledges a completed enable/disable.
type ToggleAck struct {
	UserID  string `json:"userId"`
	Enabled bool   `json:"enabled"`
}

// GroupMembers is the aggregate result of a member listing: fetched member
// records in directory order plus the count of members that could not be
// fetched.
type GroupMembers struct {
	GroupID       string           `json:"groupId"`
	Members       []directory.User `json:"members"`
	FailedFetches int              `json:"failedFetches"`
}

// Service implements the user-management operations. Stateless; safe for
// concurrent use.
type Service struct {
	dir    directory.Client
	logger *slog.Logger

	inviteRedirectURL string
	sendInviteMessage bool
	signInIssuer      string
	memberConcurrency int
}

// NewService creates the operation handler service.
func NewService(dir directory.Client, cfg *config.DirectoryConfig, logger *slog.Logger) *Service {
	concurrency := cfg.MemberFetchConcurrency
	if concurrency < 1 {
		concurrency = defaultMemberConcurrency
	}
	return &Service{
		dir:               dir,
		logger:            logutil.NoopIfNil(logger),
		inviteRedirectURL: cfg.InviteRedirectURL,
		sendInviteMessage: cfg.SendInviteMessage,
		signInIssuer:      cfg.SignInIssuer,
		memberConcurrency: concurrency,
	}
}

// ListUsers returns every user in the directory with the list projection.
// All pages are walked before returning.
func (s *Service) ListUsers(ctx context.Context) ([]directory.User, error) {
	users, err := directory.Collect(ctx,
		func(ctx context.Context) (directory.Page[directory.User], error) {
			return s.dir.ListUsers(ctx, listProjection)
		},
		s.dir.NextUsers,
	)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("listed users", "count", len(users))
	return users, nil
}

// InviteUser invites email into the directory and applies the supplied
// profile to the pending user record. A failed invitation short-circuits:
// no profile edit is attempted.
func (s *Service) InviteUser(ctx context.Context, email string, p Profile) (*directory.User, error) {
	inv, err := s.dir.CreateInvitation(ctx, email, s.inviteRedirectURL, s.sendInviteMessage)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvitationFailed, err)
	}
	if inv.InvitedUserID == "" {
		return nil, fmt.Errorf("%w: no user id in invitation response", ErrInvitationFailed)
	}

	s.logger.Info("invited user",
		"invited_user_id", inv.InvitedUserID,
		"status", inv.Status)

	return s.EditUser(ctx, inv.InvitedUserID, p)
}

// EditUser overwrites the user's name, display name, and phone with the
// supplied profile. Last write wins. Groups and email in the profile are
// not applied; group membership is managed in the directory itself.
func (s *Service) EditUser(ctx context.Context, userID string, p Profile) (*directory.User, error) {
	if len(p.Groups) > 0 || p.Email != "" {
		s.logger.Debug("ignoring unsupported profile fields",
			"user_id", userID,
			"groups", len(p.Groups),
			"has_email", p.Email != "")
	}

	displayName := p.FirstName + " " + p.LastName
	upd := directory.UserUpdate{
		GivenName:   &p.FirstName,
		Surname:     &p.LastName,
		DisplayName: &displayName,
		MobilePhone: &p.Phone,
	}
	return s.dir.UpdateUser(ctx, userID, upd)
}

// AddUser creates a user directly, without an invitation. The account signs
// in with its email address and starts with a generated password that does
// not expire. The caller is responsible for delivering the password.
func (s *Service) AddUser(ctx context.Context, p Profile) (*directory.User, error) {
	nu := directory.NewUser{
		GivenName:   p.FirstName,
		Surname:     p.LastName,
		DisplayName: p.FirstName + " " + p.LastName,
		MobilePhone: p.Phone,
		Identities: []directory.Identity{
			{
				SignInType:       "emailAddress",
				Issuer:           s.signInIssuer,
				IssuerAssignedID: p.Email,
			},
		},
		Password:         GeneratePassword(4, 8, 4),
		PasswordPolicies: "DisablePasswordExpiration",
	}

	user, err := s.dir.CreateUser(ctx, nu)
	if err != nil {
		return nil, err
	}
	s.logger.Info("added user", "user_id", user.ID)
	return user, nil
}

// DeleteUser removes the user by id.
func (s *Service) DeleteUser(ctx context.Context, userID string) (*DeleteAck, error) {
	if err := s.dir.DeleteUser(ctx, userID); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDeleteFailed, err)
	}
	s.logger.Info("deleted user", "user_id", userID)
	return &DeleteAck{UserID: userID, Deleted: true}, nil
}

// SetEnabled patches the user's sign-in state. Idempotent: setting the
// current state again succeeds.
func (s *Service) SetEnabled(ctx context.Context, userID string, enabled bool) (*ToggleAck, error) {
	upd := directory.UserUpdate{AccountEnabled: &enabled}
	if _, err := s.dir.UpdateUser(ctx, userID, upd); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrToggleFailed, err)
	}
	s.logger.Info("toggled user", "user_id", userID, "enabled", enabled)
	return &ToggleAck{UserID: userID, Enabled: enabled}, nil
}

// GetUserByID fetches one user. A user that does not exist is not an
// error: the result is simply nil.
func (s *Service) GetUserByID(ctx context.Context, userID string) (*directory.User, error) {
	user, err := s.dir.GetUser(ctx, userID, getProjection)
	if err != nil {
		if directory.IsNotFound(err) {
			s.logger.Info("user not found", "user_id", userID)
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

// ListGroupMembers walks all member ids of the group, then fetches each
// member record with bounded concurrency. A member that cannot be fetched
// is counted and skipped; it never aborts the batch. Members are returned
// in directory order.
func (s *Service) ListGroupMembers(ctx context.Context, groupID string) (*GroupMembers, error) {
	ids, err := directory.Collect(ctx,
		func(ctx context.Context) (directory.Page[string], error) {
			return s.dir.ListGroupMembers(ctx, groupID)
		},
		s.dir.NextGroupMembers,
	)
	if err != nil {
		return nil, err
	}

	fetched := make([]*directory.User, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.memberConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			user, err := s.dir.GetUser(gctx, id, getProjection)
			if err != nil {
				s.logger.Warn("failed to fetch group member",
					"group_id", groupID,
					"member_id", id,
					"error", err)
				return nil
			}
			fetched[i] = user
			return nil
		})
	}
	// Goroutines never return errors; Wait only synchronizes.
	_ = g.Wait()

	result := &GroupMembers{GroupID: groupID, Members: make([]directory.User, 0, len(ids))}
	for _, u := range fetched {
		if u == nil {
			result.FailedFetches++
			continue
		}
		result.Members = append(result.Members, *u)
	}

	s.logger.Debug("listed group members",
		"group_id", groupID,
		"members", len(result.Members),
		"failed", result.FailedFetches)
	return result, nil
}
