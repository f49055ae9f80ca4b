package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/nhle/bhconnect/internal/model"
)

// approvalKeyword marks a tenant notification that leads to payment.
const approvalKeyword = "approve"

// Destination is where a notification click leads.
type Destination int

const (
	NavNone Destination = iota
	NavPayment
	NavBookingDetail
)

func (d Destination) String() string {
	switch d {
	case NavNone:
		return "none"
	case NavPayment:
		return "payment"
	case NavBookingDetail:
		return "booking-detail"
	default:
		return fmt.Sprintf("Destination(%d)", int(d))
	}
}

// Navigation is a routing instruction for the app shell.
type Navigation struct {
	Destination Destination
	BookingID   int64
}

// None reports whether the navigation goes nowhere.
func (n Navigation) None() bool {
	return n.Destination == NavNone
}

// Path renders the navigation as a route, "" for NavNone.
func (n Navigation) Path() string {
	switch n.Destination {
	case NavPayment:
		return fmt.Sprintf("/payment/%d", n.BookingID)
	case NavBookingDetail:
		return fmt.Sprintf("/bookings/%d", n.BookingID)
	default:
		return ""
	}
}

// Route decides where a click on n leads, without side effects. Tenant
// notifications about an approved booking go to payment; owner
// notifications about any booking go to its detail view.
func Route(n model.Notification) Navigation {
	if !n.HasBooking() {
		return Navigation{}
	}
	switch n.Role {
	case model.PerspectiveTenant:
		if strings.Contains(strings.ToLower(n.Message), approvalKeyword) {
			return Navigation{Destination: NavPayment, BookingID: *n.BookingID}
		}
	case model.PerspectiveOwner:
		return Navigation{Destination: NavBookingDetail, BookingID: *n.BookingID}
	}
	return Navigation{}
}

// Click marks n read if it is unread and returns where it leads. The
// navigation is returned even when marking read fails.
func (c *Client) Click(ctx context.Context, n model.Notification) (Navigation, error) {
	var err error
	if !n.IsRead {
		err = c.MarkOneRead(ctx, n.ID)
	}
	return Route(n), err
}
