// Package graph implements directory.Client against a Microsoft
// Graph-style REST API: $select projections, @odata.nextLink paging, and
// odata error envelopes.
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/iotfleet/usergate/internal/config"
	"github.com/iotfleet/usergate/internal/directory"
	"github.com/iotfleet/usergate/internal/httpclient"
	"github.com/iotfleet/usergate/internal/platform/logutil"
)

// updatedProjection is re-fetched after a write so callers see the record
// the directory actually stored, not the patch we sent.
var updatedProjection = directory.Projection{
	"id", "displayName", "givenName", "surname", "mobilePhone", "accountEnabled", "identities",
}

// Client talks to one directory tenant. Safe for concurrent use.
type Client struct {
	baseURL string
	hc      *httpclient.Client
	tokens  oauth2.TokenSource
	logger  *slog.Logger
}

// New creates a directory client for the configured tenant. The token
// source and all API calls go through hc's protections.
func New(cfg *config.DirectoryConfig, hc *httpclient.Client, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		hc:      hc,
		tokens:  newTokenSource(cfg.TenantID, cfg.ClientID, cfg.ClientSecret, cfg.TokenURL, cfg.Scope, hc.HTTPClient()),
		logger:  logutil.NoopIfNil(logger),
	}
}

type listResponse[T any] struct {
	Value    []T    `json:"value"`
	NextLink string `json:"@odata.nextLink"`
}

type errorEnvelope struct {
	Error struct {
		Code       string `json:"code"`
		Message    string `json:"message"`
		InnerError struct {
			RequestID string `json:"request-id"`
		} `json:"innerError"`
	} `json:"error"`
}

type memberRecord struct {
	ID string `json:"id"`
}

type invitationRequest struct {
	InvitedUserEmailAddress string `json:"invitedUserEmailAddress"`
	InviteRedirectURL       string `json:"inviteRedirectUrl"`
	SendInvitationMessage   bool   `json:"sendInvitationMessage"`
}

type invitationResponse struct {
	InvitedUserEmailAddress string `json:"invitedUserEmailAddress"`
	InviteRedirectURL       string `json:"inviteRedirectUrl"`
	Status                  string `json:"status"`
	InvitedUser             struct {
		ID string `json:"id"`
	} `json:"invitedUser"`
}

type newUserRequest struct {
	AccountEnabled   bool                 `json:"accountEnabled"`
	DisplayName      string               `json:"displayName"`
	GivenName        string               `json:"givenName,omitempty"`
	Surname          string               `json:"surname,omitempty"`
	MobilePhone      string               `json:"mobilePhone,omitempty"`
	Identities       []directory.Identity `json:"identities,omitempty"`
	PasswordPolicies string               `json:"passwordPolicies,omitempty"`
	PasswordProfile  passwordProfile      `json:"passwordProfile"`
}

type passwordProfile struct {
	Password                      string `json:"password"`
	ForceChangePasswordNextSignIn bool   `json:"forceChangePasswordNextSignIn"`
}

// ListUsers starts a projected walk over /users.
func (c *Client) ListUsers(ctx context.Context, sel directory.Projection) (directory.Page[directory.User], error) {
	u := c.baseURL + "/users"
	if len(sel) > 0 {
		u += "?$select=" + url.QueryEscape(strings.Join(sel, ","))
	}
	return c.fetchUserPage(ctx, u)
}

// NextUsers exchanges a continuation token (a nextLink URL) for the next page.
func (c *Client) NextUsers(ctx context.Context, token string) (directory.Page[directory.User], error) {
	if err := c.checkContinuation(token); err != nil {
		return directory.Page[directory.User]{}, err
	}
	return c.fetchUserPage(ctx, token)
}

func (c *Client) fetchUserPage(ctx context.Context, u string) (directory.Page[directory.User], error) {
	var out listResponse[directory.User]
	if err := c.do(ctx, http.MethodGet, u, nil, &out); err != nil {
		return directory.Page[directory.User]{}, err
	}
	return directory.Page[directory.User]{Items: out.Value, NextToken: out.NextLink}, nil
}

// GetUser fetches one user by id with the given projection.
func (c *Client) GetUser(ctx context.Context, id string, sel directory.Projection) (*directory.User, error) {
	u := c.baseURL + "/users/" + url.PathEscape(id)
	if len(sel) > 0 {
		u += "?$select=" + url.QueryEscape(strings.Join(sel, ","))
	}
	var user directory.User
	if err := c.do(ctx, http.MethodGet, u, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// CreateUser creates a user record and returns it as stored.
func (c *Client) CreateUser(ctx context.Context, nu directory.NewUser) (*directory.User, error) {
	body := newUserRequest{
		AccountEnabled:   true,
		DisplayName:      nu.DisplayName,
		GivenName:        nu.GivenName,
		Surname:          nu.Surname,
		MobilePhone:      nu.MobilePhone,
		Identities:       nu.Identities,
		PasswordPolicies: nu.PasswordPolicies,
		PasswordProfile: passwordProfile{
			Password:                      nu.Password,
			ForceChangePasswordNextSignIn: false,
		},
	}

	var user directory.User
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/users", body, &user); err != nil {
		return nil, err
	}
	if user.ID == "" {
		return &user, nil
	}

	// The create response omits identities; re-read the stored record.
	return c.GetUser(ctx, user.ID, updatedProjection)
}

// UpdateUser applies a partial update. The API returns no content on
// success, so the stored record is re-read before returning.
func (c *Client) UpdateUser(ctx context.Context, id string, upd directory.UserUpdate) (*directory.User, error) {
	u := c.baseURL + "/users/" + url.PathEscape(id)
	if err := c.do(ctx, http.MethodPatch, u, upd, nil); err != nil {
		return nil, err
	}
	return c.GetUser(ctx, id, updatedProjection)
}

// DeleteUser removes a user record.
func (c *Client) DeleteUser(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, c.baseURL+"/users/"+url.PathEscape(id), nil, nil)
}

// CreateInvitation creates a pending user for the given email.
func (c *Client) CreateInvitation(ctx context.Context, email, redirectURL string, sendMessage bool) (*directory.Invitation, error) {
	body := invitationRequest{
		InvitedUserEmailAddress: email,
		InviteRedirectURL:       redirectURL,
		SendInvitationMessage:   sendMessage,
	}

	var out invitationResponse
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/invitations", body, &out); err != nil {
		return nil, err
	}
	return &directory.Invitation{
		InvitedUserEmail:  out.InvitedUserEmailAddress,
		InviteRedirectURL: out.InviteRedirectURL,
		SendMessage:       sendMessage,
		InvitedUserID:     out.InvitedUser.ID,
		Status:            out.Status,
	}, nil
}

// ListGroupMembers starts a walk over the member ids of one group.
func (c *Client) ListGroupMembers(ctx context.Context, groupID string) (directory.Page[string], error) {
	u := c.baseURL + "/groups/" + url.PathEscape(groupID) + "/members?$select=id"
	return c.fetchMemberPage(ctx, u)
}

// NextGroupMembers exchanges a continuation token for the next member page.
func (c *Client) NextGroupMembers(ctx context.Context, token string) (directory.Page[string], error) {
	if err := c.checkContinuation(token); err != nil {
		return directory.Page[string]{}, err
	}
	return c.fetchMemberPage(ctx, token)
}

func (c *Client) fetchMemberPage(ctx context.Context, u string) (directory.Page[string], error) {
	var out listResponse[memberRecord]
	if err := c.do(ctx, http.MethodGet, u, nil, &out); err != nil {
		return directory.Page[string]{}, err
	}
	ids := make([]string, 0, len(out.Value))
	for _, m := range out.Value {
		ids = append(ids, m.ID)
	}
	return directory.Page[string]{Items: ids, NextToken: out.NextLink}, nil
}

// checkContinuation rejects continuation tokens that do not point back at
// the configured directory origin.
func (c *Client) checkContinuation(token string) error {
	tu, err := url.Parse(token)
	if err != nil {
		return fmt.Errorf("invalid continuation token: %w", err)
	}
	bu, err := url.Parse(c.baseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if !strings.EqualFold(tu.Host, bu.Host) || tu.Scheme != bu.Scheme {
		return fmt.Errorf("continuation token points outside directory origin %q", bu.Host)
	}
	return nil
}

// do performs one authenticated API call. Non-2xx responses are decoded
// into *directory.Error.
func (c *Client) do(ctx context.Context, method, u string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	tok, err := c.tokens.Token()
	if err != nil {
		return fmt.Errorf("acquire directory token: %w", err)
	}
	tok.SetAuthHeader(req)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("client-request-id", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("directory request failed: %w", err)
	}
	data, err := c.hc.ReadBody(resp)
	if err != nil {
		return fmt.Errorf("read directory response: %w", err)
	}

	c.logger.Debug("directory call",
		"method", method,
		"url", u,
		"status", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp.StatusCode, data)
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode directory response: %w", err)
		}
	}
	return nil
}

func decodeError(status int, data []byte) error {
	var env errorEnvelope
	if err := json.Unmarshal(data, &env); err == nil && env.Error.Code != "" {
		return &directory.Error{
			StatusCode: status,
			Code:       env.Error.Code,
			Message:    env.Error.Message,
			RequestID:  env.Error.InnerError.RequestID,
		}
	}
	return &directory.Error{
		StatusCode: status,
		Message:    http.StatusText(status),
	}
}
