// Package reservations keeps a guest's reservation list, and an admin's
// per-cafe book, in step with the backend by refetching after every write.
package reservations

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/codr1/cafespot/internal/apiclient"
)

const (
	MinPartySize = 1
	MaxPartySize = 10
)

// Status is the server's status tag. Unknown values are kept verbatim.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// Active reports whether the reservation still holds a table.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusConfirmed
}

var ErrInvalidBooking = errors.New("invalid booking")

type Reservation struct {
	ID                 string
	CafeID             string
	CafeName           string
	UserSub            string
	UserName           string
	Date               time.Time
	Time               string
	PartySize          int
	SpecialRequest     string
	CancellationReason string
	Status             Status
	CreatedAt          time.Time
}

func fromAPI(r apiclient.Reservation) Reservation {
	out := Reservation{
		ID:        r.ID,
		CafeID:    r.CafeID,
		CafeName:  r.CafeName,
		UserSub:   r.UserSub,
		UserName:  r.UserName,
		Date:      r.ReservationDate.Time,
		Time:      r.ReservationTime,
		PartySize: r.PartySize,
		Status:    Status(r.Status),
		CreatedAt: r.CreatedAt.Time,
	}
	if r.SpecialRequest != nil {
		out.SpecialRequest = *r.SpecialRequest
	}
	if r.CancellationReason != nil {
		out.CancellationReason = *r.CancellationReason
	}
	return out
}

func fromAPIList(list []apiclient.Reservation) []Reservation {
	out := make([]Reservation, 0, len(list))
	for _, r := range list {
		out = append(out, fromAPI(r))
	}
	return out
}

// Booking is a reservation request as entered by a guest.
type Booking struct {
	CafeID         string
	Date           time.Time
	Time           string
	PartySize      int
	SpecialRequest string
}

func (b Booking) Validate() error {
	switch {
	case strings.TrimSpace(b.CafeID) == "":
		return fmt.Errorf("%w: cafe is required", ErrInvalidBooking)
	case b.Date.IsZero():
		return fmt.Errorf("%w: date is required", ErrInvalidBooking)
	case strings.TrimSpace(b.Time) == "":
		return fmt.Errorf("%w: time is required", ErrInvalidBooking)
	case b.PartySize < MinPartySize || b.PartySize > MaxPartySize:
		return fmt.Errorf("%w: party size must be between %d and %d", ErrInvalidBooking, MinPartySize, MaxPartySize)
	}
	return nil
}

func (b Booking) request(userSub string) apiclient.ReservationRequest {
	req := apiclient.ReservationRequest{
		CafeID:          b.CafeID,
		UserSub:         userSub,
		ReservationDate: apiclient.Timestamp{Time: b.Date},
		ReservationTime: strings.TrimSpace(b.Time),
		PartySize:       b.PartySize,
	}
	if note := strings.TrimSpace(b.SpecialRequest); note != "" {
		req.SpecialRequest = &note
	}
	return req
}

func clone(list []Reservation) []Reservation {
	return append([]Reservation(nil), list...)
}
