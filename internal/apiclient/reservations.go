package apiclient

import (
	"context"
	"net/http"
)

func (c *Client) ListCafeReservations(ctx context.Context, cafeID string) ([]Reservation, error) {
	var out []Reservation
	path := "/reservations/cafe/" + escape(cafeID)
	if err := c.doJSON(ctx, http.MethodGet, "/reservations/cafe/{cafeId}", path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListUserReservations(ctx context.Context, userSub string) ([]Reservation, error) {
	var out []Reservation
	path := "/reservations/user/" + escape(userSub)
	if err := c.doJSON(ctx, http.MethodGet, "/reservations/user/{userSub}", path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateReservation(ctx context.Context, req ReservationRequest) (*Reservation, error) {
	var out Reservation
	if err := c.doJSON(ctx, http.MethodPost, "/reservations/", "/reservations/", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateReservation changes a reservation's status, optionally with a
// cancellation reason.
func (c *Client) UpdateReservation(ctx context.Context, id string, update ReservationStatusUpdate) (*Reservation, error) {
	var out Reservation
	path := "/reservations/" + escape(id)
	if err := c.doJSON(ctx, http.MethodPatch, "/reservations/{id}", path, update, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
