package users

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/iotfleet/usergate/internal/config"
	"github.com/iotfleet/usergate/internal/directory"
	"github.com/iotfleet/usergate/internal/directory/directorytest"
)

func newTestService(dir directory.Client, concurrency int) *Service {
	return NewService(dir, &config.DirectoryConfig{
		InviteRedirectURL:      "https://portal.example.com",
		SendInviteMessage:      true,
		SignInIssuer:           "contoso.example.com",
		MemberFetchConcurrency: concurrency,
	}, nil)
}

func TestListUsers_WalksAllPages(t *testing.T) {
	fake := &directorytest.Fake{
		ListUsersFunc: func(ctx context.Context, sel directory.Projection) (directory.Page[directory.User], error) {
			if len(sel) != 8 {
				t.Errorf("projection = %v, want the 8-field list projection", sel)
			}
			return directory.Page[directory.User]{
				Items:     []directory.User{{ID: "u1"}, {ID: "u2"}},
				NextToken: "page2",
			}, nil
		},
		NextUsersFunc: func(ctx context.Context, token string) (directory.Page[directory.User], error) {
			if token != "page2" {
				t.Errorf("token = %q", token)
			}
			return directory.Page[directory.User]{Items: []directory.User{{ID: "u3"}}}, nil
		},
	}

	users, err := newTestService(fake, 1).ListUsers(context.Background())
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 3 {
		t.Fatalf("count = %d, want 3", len(users))
	}
	for i, want := range []string{"u1", "u2", "u3"} {
		if users[i].ID != want {
			t.Errorf("users[%d].ID = %q, want %q", i, users[i].ID, want)
		}
	}
}

func TestInviteUser_EditsInvitedUser(t *testing.T) {
	var edited directory.UserUpdate
	fake := &directorytest.Fake{
		CreateInvitationFunc: func(ctx context.Context, email, redirectURL string, sendMessage bool) (*directory.Invitation, error) {
			if email != "ada@example.com" {
				t.Errorf("email = %q", email)
			}
			if redirectURL != "https://portal.example.com" {
				t.Errorf("redirectURL = %q", redirectURL)
			}
			if !sendMessage {
				t.Error("sendMessage = false")
			}
			return &directory.Invitation{InvitedUserID: "u-inv", Status: "PendingAcceptance"}, nil
		},
		UpdateUserFunc: func(ctx context.Context, id string, upd directory.UserUpdate) (*directory.User, error) {
			if id != "u-inv" {
				t.Errorf("edited id = %q, want the invited user id", id)
			}
			edited = upd
			return &directory.User{ID: id, DisplayName: *upd.DisplayName}, nil
		},
	}

	user, err := newTestService(fake, 1).InviteUser(context.Background(), "ada@example.com", Profile{
		FirstName: "Ada",
		LastName:  "Lovelace",
		Phone:     "555-0100",
	})
	if err != nil {
		t.Fatalf("InviteUser: %v", err)
	}
	if user.ID != "u-inv" {
		t.Errorf("ID = %q", user.ID)
	}
	if edited.DisplayName == nil || *edited.DisplayName != "Ada Lovelace" {
		t.Errorf("DisplayName = %v, want Ada Lovelace", edited.DisplayName)
	}
	if edited.MobilePhone == nil || *edited.MobilePhone != "555-0100" {
		t.Errorf("MobilePhone = %v", edited.MobilePhone)
	}
}

func TestInviteUser_FailureSkipsEdit(t *testing.T) {
	edits := 0
	fake := &directorytest.Fake{
		CreateInvitationFunc: func(ctx context.Context, email, redirectURL string, sendMessage bool) (*directory.Invitation, error) {
			return nil, &directory.Error{StatusCode: http.StatusBadRequest, Code: "InvalidEmail"}
		},
		UpdateUserFunc: func(ctx context.Context, id string, upd directory.UserUpdate) (*directory.User, error) {
			edits++
			return nil, nil
		},
	}

	_, err := newTestService(fake, 1).InviteUser(context.Background(), "bad", Profile{})
	if !errors.Is(err, ErrInvitationFailed) {
		t.Fatalf("err = %v, want ErrInvitationFailed", err)
	}
	if edits != 0 {
		t.Errorf("edit was attempted after failed invitation")
	}
}

func TestEditUser_IgnoresGroupsAndEmail(t *testing.T) {
	fake := &directorytest.Fake{
		UpdateUserFunc: func(ctx context.Context, id string, upd directory.UserUpdate) (*directory.User, error) {
			if upd.AccountEnabled != nil {
				t.Error("profile edit must not touch accountEnabled")
			}
			return &directory.User{ID: id}, nil
		},
	}

	_, err := newTestService(fake, 1).EditUser(context.Background(), "u1", Profile{
		FirstName: "Grace",
		LastName:  "Hopper",
		Groups:    []string{"g1", "g2"},
		Email:     "grace@example.com",
	})
	if err != nil {
		t.Fatalf("EditUser: %v", err)
	}
}

func TestAddUser_BuildsEmailIdentity(t *testing.T) {
	fake := &directorytest.Fake{
		CreateUserFunc: func(ctx context.Context, nu directory.NewUser) (*directory.User, error) {
			if nu.DisplayName != "Edsger Dijkstra" {
				t.Errorf("DisplayName = %q", nu.DisplayName)
			}
			if len(nu.Identities) != 1 {
				t.Fatalf("identities = %+v", nu.Identities)
			}
			id := nu.Identities[0]
			if id.SignInType != "emailAddress" || id.Issuer != "contoso.example.com" || id.IssuerAssignedID != "edsger@example.com" {
				t.Errorf("identity = %+v", id)
			}
			if nu.PasswordPolicies != "DisablePasswordExpiration" {
				t.Errorf("PasswordPolicies = %q", nu.PasswordPolicies)
			}
			if len(nu.Password) != 16 {
				t.Errorf("password length = %d, want 16", len(nu.Password))
			}
			return &directory.User{ID: "u-new"}, nil
		},
	}

	user, err := newTestService(fake, 1).AddUser(context.Background(), Profile{
		FirstName: "Edsger",
		LastName:  "Dijkstra",
		Email:     "edsger@example.com",
	})
	if err != nil {
		t.Fatalf("AddUser: %v", err)
	}
	if user.ID != "u-new" {
		t.Errorf("ID = %q", user.ID)
	}
}

func TestDeleteUser(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		fake := &directorytest.Fake{
			DeleteUserFunc: func(ctx context.Context, id string) error { return nil },
		}
		ack, err := newTestService(fake, 1).DeleteUser(context.Background(), "u1")
		if err != nil {
			t.Fatalf("DeleteUser: %v", err)
		}
		if !ack.Deleted || ack.UserID != "u1" {
			t.Errorf("ack = %+v", ack)
		}
	})

	t.Run("failure", func(t *testing.T) {
		fake := &directorytest.Fake{
			DeleteUserFunc: func(ctx context.Context, id string) error {
				return &directory.Error{StatusCode: http.StatusNotFound}
			},
		}
		_, err := newTestService(fake, 1).DeleteUser(context.Background(), "u1")
		if !errors.Is(err, ErrDeleteFailed) {
			t.Errorf("err = %v, want ErrDeleteFailed", err)
		}
	})
}

func TestSetEnabled(t *testing.T) {
	var got *bool
	fake := &directorytest.Fake{
		UpdateUserFunc: func(ctx context.Context, id string, upd directory.UserUpdate) (*directory.User, error) {
			got = upd.AccountEnabled
			if upd.DisplayName != nil || upd.GivenName != nil {
				t.Error("toggle must only patch accountEnabled")
			}
			return &directory.User{ID: id}, nil
		},
	}

	ack, err := newTestService(fake, 1).SetEnabled(context.Background(), "u1", false)
	if err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}
	if got == nil || *got != false {
		t.Errorf("patched accountEnabled = %v, want false", got)
	}
	if ack.Enabled {
		t.Errorf("ack.Enabled = true")
	}
}

func TestGetUserByID_NotFoundIsNotAnError(t *testing.T) {
	fake := &directorytest.Fake{
		GetUserFunc: func(ctx context.Context, id string, sel directory.Projection) (*directory.User, error) {
			return nil, &directory.Error{StatusCode: http.StatusNotFound, Code: "Request_ResourceNotFound"}
		},
	}

	user, err := newTestService(fake, 1).GetUserByID(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetUserByID: %v", err)
	}
	if user != nil {
		t.Errorf("user = %+v, want nil", user)
	}
}

func TestListGroupMembers_OrderAndFailures(t *testing.T) {
	fake := &directorytest.Fake{
		ListGroupMembersFunc: func(ctx context.Context, groupID string) (directory.Page[string], error) {
			if groupID != "g1" {
				t.Errorf("groupID = %q", groupID)
			}
			return directory.Page[string]{Items: []string{"m1", "m2"}, NextToken: "more"}, nil
		},
		NextGroupMembersFunc: func(ctx context.Context, token string) (directory.Page[string], error) {
			return directory.Page[string]{Items: []string{"m3", "m4"}}, nil
		},
		GetUserFunc: func(ctx context.Context, id string, sel directory.Projection) (*directory.User, error) {
			if id == "m3" {
				return nil, &directory.Error{StatusCode: http.StatusNotFound}
			}
			return &directory.User{ID: id}, nil
		},
	}

	result, err := newTestService(fake, 2).ListGroupMembers(context.Background(), "g1")
	if err != nil {
		t.Fatalf("ListGroupMembers: %v", err)
	}
	if result.FailedFetches != 1 {
		t.Errorf("FailedFetches = %d, want 1", result.FailedFetches)
	}
	if len(result.Members) != 3 {
		t.Fatalf("members = %d, want 3", len(result.Members))
	}
	for i, want := range []string{"m1", "m2", "m4"} {
		if result.Members[i].ID != want {
			t.Errorf("members[%d] = %q, want %q", i, result.Members[i].ID, want)
		}
	}
}

func TestListGroupMembers_BoundedConcurrency(t *testing.T) {
	var mu sync.Mutex
	inFlight, peak := 0, 0

	ids := make([]string, 20)
	for i := range ids {
		ids[i] = "m"
	}

	fake := &directorytest.Fake{
		ListGroupMembersFunc: func(ctx context.Context, groupID string) (directory.Page[string], error) {
			return directory.Page[string]{Items: ids}, nil
		},
		GetUserFunc: func(ctx context.Context, id string, sel directory.Projection) (*directory.User, error) {
			mu.Lock()
			inFlight++
			if inFlight > peak {
				peak = inFlight
			}
			mu.Unlock()
			defer func() {
				mu.Lock()
				inFlight--
				mu.Unlock()
			}()
			return &directory.User{ID: id}, nil
		},
	}

	if _, err := newTestService(fake, 3).ListGroupMembers(context.Background(), "g1"); err != nil {
		t.Fatalf("ListGroupMembers: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if peak > 3 {
		t.Errorf("peak concurrency = %d, want <= 3", peak)
	}
}
