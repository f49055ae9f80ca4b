package notify

import (
	"fmt"

	"github.com/nhle/bhconnect/internal/model"
)

// View is a notification as the UI shows it. It is derived from the
// server record on demand and never stored.
type View struct {
	model.Notification

	SenderName     string
	Context        string
	Team           string
	ActionRequired bool
}

// Project derives the display fields of n.
func Project(n model.Notification) View {
	v := View{Notification: n}

	if n.Role == model.PerspectiveTenant {
		v.SenderName = "Tenant"
		v.Team = "Tenant"
	} else {
		v.SenderName = "Host"
		v.Team = "Host Team"
	}
	if n.HasBooking() {
		v.Context = fmt.Sprintf("Booking #%d", *n.BookingID)
	}
	v.ActionRequired = n.Role == model.PerspectiveOwner &&
		(n.BookingStatus == nil || *n.BookingStatus == "")

	return v
}

// ProjectAll projects every item in order.
func ProjectAll(items []model.Notification) []View {
	out := make([]View, len(items))
	for i, n := range items {
		out[i] = Project(n)
	}
	return out
}

// Tab groups notifications on the notifications page.
type Tab int

const (
	TabInbox Tab = iota
	TabApproved
	TabRejected
)

func (t Tab) String() string {
	switch t {
	case TabInbox:
		return "Inbox"
	case TabApproved:
		return "Approved"
	case TabRejected:
		return "Rejected"
	default:
		return fmt.Sprintf("Tab(%d)", int(t))
	}
}

// Tabs returns the tabs offered to role. Only owners decide bookings, so
// only they see the decided tabs.
func Tabs(role model.Role) []Tab {
	if role == model.RoleOwner {
		return []Tab{TabInbox, TabApproved, TabRejected}
	}
	return []Tab{TabInbox}
}

// Filter keeps the items that belong on tab. Inbox holds everything not
// yet decided.
func Filter(items []model.Notification, tab Tab) []model.Notification {
	out := make([]model.Notification, 0, len(items))
	for _, n := range items {
		var status model.BookingStatus
		if n.BookingStatus != nil {
			status = *n.BookingStatus
		}

		var keep bool
		switch tab {
		case TabInbox:
			keep = status == "" || status == model.BookingPending
		case TabApproved:
			keep = status == model.BookingApproved
		case TabRejected:
			keep = status == model.BookingRejected
		default:
			keep = true
		}
		if keep {
			out = append(out, n)
		}
	}
	return out
}
