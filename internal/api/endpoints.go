package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/nhle/bhconnect/internal/model"
)

// Login exchanges credentials for a bearer token. The backend expects an
// OAuth2 password form, not JSON.
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResponse, error) {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)

	var out LoginResponse
	err := c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/login",
		body:        []byte(form.Encode()),
		contentType: "application/x-www-form-urlencoded",
	}, &out)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.AccessToken) == "" {
		return nil, fmt.Errorf("POST /login: response carried no access token")
	}
	return &out, nil
}

// Register creates an account and returns the stored profile.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*model.User, error) {
	var out model.User
	if err := c.sendJSON(ctx, http.MethodPost, "/register", "", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Me returns the profile of the token's owner.
func (c *Client) Me(ctx context.Context, token string) (*model.User, error) {
	var out model.User
	if err := c.getJSON(ctx, "/users/me", token, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListNotifications returns every notification addressed to the token's owner.
func (c *Client) ListNotifications(ctx context.Context, token string) ([]model.Notification, error) {
	var out []model.Notification
	if err := c.getJSON(ctx, "/notifications", token, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []model.Notification{}
	}
	return out, nil
}

// MarkNotificationRead marks one notification as read on the server.
func (c *Client) MarkNotificationRead(ctx context.Context, token string, id int64) error {
	path := fmt.Sprintf("/notifications/%d/read", id)
	return c.sendJSON(ctx, http.MethodPut, path, token, nil, nil)
}

// MarkAllNotificationsRead marks every notification of the token's owner as read.
func (c *Client) MarkAllNotificationsRead(ctx context.Context, token string) error {
	return c.sendJSON(ctx, http.MethodPut, "/notifications/mark-all-read", token, nil, nil)
}

// DecideBooking accepts or rejects a booking request as its owner.
func (c *Client) DecideBooking(
	ctx context.Context,
	token string,
	bookingID int64,
	decision BookingDecision,
) (*MessageResponse, error) {
	switch decision {
	case DecisionAccept, DecisionReject:
	default:
		return nil, fmt.Errorf("unknown booking decision %q", decision)
	}

	path := fmt.Sprintf("/bookings/%d/%s", bookingID, decision)
	var out MessageResponse
	if err := c.sendJSON(ctx, http.MethodPut, path, token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AdminUsers lists every account for the verification dashboard.
func (c *Client) AdminUsers(ctx context.Context, token string) ([]model.User, error) {
	var out []model.User
	if err := c.getJSON(ctx, "/admin/users", token, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DecideUser marks an account verified or unverified.
func (c *Client) DecideUser(
	ctx context.Context,
	token string,
	userID int64,
	decision UserDecision,
) (*MessageResponse, error) {
	switch decision {
	case DecisionApprove, DecisionUnapprove:
	default:
		return nil, fmt.Errorf("unknown user decision %q", decision)
	}

	path := fmt.Sprintf("/admin/%s/%d", decision, userID)
	var out MessageResponse
	if err := c.sendJSON(ctx, http.MethodPut, path, token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
