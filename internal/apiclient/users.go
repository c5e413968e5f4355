package apiclient

import (
	"context"
	"net/http"
	"net/url"
)

func (c *Client) GetUser(ctx context.Context, sub string) (*User, error) {
	var out User
	if err := c.doJSON(ctx, http.MethodGet, "/users/{sub}", "/users/"+escape(sub), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateUser(ctx context.Context, user NewUser) (*User, error) {
	var out User
	if err := c.doJSON(ctx, http.MethodPost, "/users/", "/users/", user, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateUser sends a partial profile update. fields is marshalled as-is so
// callers control exactly which keys are present.
func (c *Client) UpdateUser(ctx context.Context, sub string, fields map[string]any) (*User, error) {
	var out User
	if err := c.doJSON(ctx, http.MethodPatch, "/users/{sub}", "/users/"+escape(sub), fields, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteUser(ctx context.Context, sub string) error {
	return c.doJSON(ctx, http.MethodDelete, "/users/{sub}", "/users/"+escape(sub), nil, nil)
}

func (c *Client) SaveCafe(ctx context.Context, sub, cafeID string) error {
	return c.doJSON(ctx, http.MethodPost, "/users/{sub}/saved_cafes/{cafeId}", savedCafePath(sub, cafeID), nil, nil)
}

func (c *Client) UnsaveCafe(ctx context.Context, sub, cafeID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/users/{sub}/saved_cafes/{cafeId}", savedCafePath(sub, cafeID), nil, nil)
}

func savedCafePath(sub, cafeID string) string {
	return "/users/" + escape(sub) + "/saved_cafes/" + escape(cafeID)
}

// TodayCheckIns returns the ids of cafes the user checked in to today.
func (c *Client) TodayCheckIns(ctx context.Context, userSub string) ([]string, error) {
	var ids []string
	path := "/checkins/today?user_sub=" + url.QueryEscape(userSub)
	if err := c.doJSON(ctx, http.MethodGet, "/checkins/today", path, nil, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func (c *Client) CreateCheckIn(ctx context.Context, req CheckInRequest) error {
	return c.doJSON(ctx, http.MethodPost, "/checkins/", "/checkins/", req, nil)
}

func (c *Client) ListCafeReviews(ctx context.Context, cafeID string) ([]Review, error) {
	var out []Review
	path := "/reviews/cafe/" + escape(cafeID)
	if err := c.doJSON(ctx, http.MethodGet, "/reviews/cafe/{cafeId}", path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateReview(ctx context.Context, req ReviewRequest) error {
	return c.doJSON(ctx, http.MethodPost, "/reviews/", "/reviews/", req, nil)
}
