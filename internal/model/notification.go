package model

// Perspective values carried in Notification.Role. The backend writes
// "user" for tenant-facing notifications and "owner" for host-facing ones.
const (
	PerspectiveTenant = "user"
	PerspectiveOwner  = "owner"
)

// BookingStatus is the state of the booking a notification refers to.
type BookingStatus string

const (
	BookingPending  BookingStatus = "pending"
	BookingApproved BookingStatus = "approved"
	BookingRejected BookingStatus = "rejected"
)

// Notification is a notification exactly as the backend returns it from
// GET /notifications. Display-only fields live in notify.View.
type Notification struct {
	// ID is the server-assigned notification identifier.
	ID int64 `json:"notification_id"`

	// UserID is the recipient.
	UserID int64 `json:"user_id"`

	// BookingID links the notification to a booking, when it has one.
	BookingID *int64 `json:"booking_id,omitempty"`

	// Message is the human-readable notification text.
	Message string `json:"message"`

	// IsRead indicates whether the user has seen this notification.
	IsRead bool `json:"is_read"`

	// CreatedAt is when this notification was generated.
	CreatedAt Timestamp `json:"created_at"`

	// Role is the perspective the notification was written for.
	Role string `json:"role"`

	// BookingStatus mirrors the linked booking's status, if any.
	BookingStatus *BookingStatus `json:"booking_status,omitempty"`
}

// HasBooking reports whether the notification references a booking.
func (n Notification) HasBooking() bool {
	return n.BookingID != nil
}
