package model

// Role identifies what a user does on the marketplace.
type Role string

const (
	RoleTenant Role = "tenant"
	RoleOwner  Role = "owner"
)

// AdminUsername is the account the backend treats as the administrator.
const AdminUsername = "admin"

// User is the profile snapshot returned by /login, /register and /users/me.
type User struct {
	UserID            int64   `json:"user_id"`
	Username          string  `json:"username"`
	Email             string  `json:"email"`
	FirstName         string  `json:"first_name"`
	LastName          string  `json:"last_name"`
	PhoneNumber       *string `json:"phone_number,omitempty"`
	ProfilePictureURL *string `json:"profile_picture_url,omitempty"`
	IDDocumentURL     *string `json:"id_document_url,omitempty"`
	IsVerified        bool    `json:"is_verified"`
	Role              Role    `json:"role"`
}

// DisplayName returns "First Last", falling back to the username.
func (u User) DisplayName() string {
	name := u.FirstName
	if u.LastName != "" {
		if name != "" {
			name += " "
		}
		name += u.LastName
	}
	if name == "" {
		return u.Username
	}
	return name
}

// IsAdmin reports whether the user is the marketplace administrator.
func (u User) IsAdmin() bool {
	return u.Username == AdminUsername
}
