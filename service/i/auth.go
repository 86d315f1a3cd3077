package i

import (
	dmn "github.com/beka-birhanu/pairpad-api/domain"
)

// Authenticator handles user registration and sign-in.
type Authenticator interface {
	// Register creates a new account from a username and plain-text password.
	Register(username, password string) error

	// SignIn verifies credentials and returns the user with a signed access token.
	SignIn(username, password string) (*dmn.User, string, error)
}
