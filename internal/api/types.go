package api

import "github.com/nhle/bhconnect/internal/model"

// LoginResponse is the response from POST /login.
type LoginResponse struct {
	AccessToken string     `json:"access_token"`
	TokenType   string     `json:"token_type"`
	User        model.User `json:"user"`
}

// RegisterRequest is the body of POST /register.
type RegisterRequest struct {
	Username    string     `json:"username"`
	Email       string     `json:"email"`
	Password    string     `json:"password"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	PhoneNumber string     `json:"phone_number"`
	Role        model.Role `json:"role"`
}

// MessageResponse is the {"message": ...} body several PUT routes return.
type MessageResponse struct {
	Message string `json:"message"`
}

// BookingDecision is the owner's answer to a booking request.
type BookingDecision string

const (
	DecisionAccept BookingDecision = "accept"
	DecisionReject BookingDecision = "reject"
)

// UserDecision is the administrator's verdict on an account.
type UserDecision string

const (
	DecisionApprove   UserDecision = "approve-user"
	DecisionUnapprove UserDecision = "reject-user"
)
