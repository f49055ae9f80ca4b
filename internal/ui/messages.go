package ui

import (
	"fmt"

	"github.com/nhle/bhconnect/internal/model"
	"github.com/nhle/bhconnect/internal/notify"
)

// Page identifies a full-screen view of the app.
type Page int

const (
	PageHome Page = iota
	PageNotifications
	PageAdmin
	PageFavorites
	PageListings
	PageAccount
	PagePayment
	PageBookingDetail
)

func (p Page) String() string {
	switch p {
	case PageHome:
		return "home"
	case PageNotifications:
		return "notifications"
	case PageAdmin:
		return "admin"
	case PageFavorites:
		return "favorites"
	case PageListings:
		return "listings"
	case PageAccount:
		return "account"
	case PagePayment:
		return "payment"
	case PageBookingDetail:
		return "booking"
	default:
		return fmt.Sprintf("Page(%d)", int(p))
	}
}

// SessionChangedMsg is delivered after every session sign-in, profile
// update or sign-out. Receivers re-read the session.
type SessionChangedMsg struct{}

// NotificationsChangedMsg is delivered when the shared notification list,
// unread count or fetch state changed.
type NotificationsChangedMsg struct{}

// OpenPageMsg asks the app to switch pages.
type OpenPageMsg struct {
	Page Page
	// Verified accompanies PageListings: whether the owner is verified.
	Verified bool
}

// NavigateMsg carries the destination of a clicked notification.
type NavigateMsg struct {
	Nav notify.Navigation
}

// ShowLoginMsg opens the login overlay, prefilled with Username.
type ShowLoginMsg struct {
	Username string
}

// ShowRegisterMsg opens the registration overlay.
type ShowRegisterMsg struct{}

// LoggedInMsg is sent after a successful login.
type LoggedInMsg struct {
	User model.User
}

// LogoutMsg asks the app to sign out.
type LogoutMsg struct{}

// StatusMsg shows a line in the status bar.
type StatusMsg struct {
	Text  string
	Error bool
}

// PageFor maps a notification destination to a page.
func PageFor(nav notify.Navigation) (Page, bool) {
	switch nav.Destination {
	case notify.NavPayment:
		return PagePayment, true
	case notify.NavBookingDetail:
		return PageBookingDetail, true
	default:
		return PageHome, false
	}
}
