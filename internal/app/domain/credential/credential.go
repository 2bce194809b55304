// Package credential describes the login material a session authenticates with.
package credential

import (
	"errors"
	"strings"
)

var (
	ErrNoAccessToken = errors.New("credential has no access token")
	ErrNoUsername    = errors.New("credential has no username")
)

// Credential is treated as opaque strings. A session only reads it; the
// overseer is the single writer and replaces it wholesale on renewal.
type Credential struct {
	Username     string `json:"username"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	Scopes       string `json:"scopes"`
}

// Validate reports whether the credential may start an authentication.
func (c Credential) Validate() error {
	if c.AccessToken == "" {
		return ErrNoAccessToken
	}
	if c.Username == "" {
		return ErrNoUsername
	}
	return nil
}

// Password returns the PASS argument, tolerating tokens stored with the prefix.
func (c Credential) Password() string {
	return "oauth:" + strings.TrimPrefix(c.AccessToken, "oauth:")
}

// Renewed returns a copy carrying the new token pair. An empty refresh token
// keeps the previous one.
func (c Credential) Renewed(accessToken, refreshToken string) Credential {
	next := c
	next.AccessToken = accessToken
	if refreshToken != "" {
		next.RefreshToken = refreshToken
	}
	return next
}
