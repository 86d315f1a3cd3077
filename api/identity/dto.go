// Package identity exposes registration, login, and the bearer-token
// middleware guarding protected routes.
package identity

import "github.com/google/uuid"

// AuthRequest carries registration and login credentials.
type AuthRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AuthResponse is returned on successful sign-in.
type AuthResponse struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Token    string    `json:"token"`
}
