package api

import "errors"

var (
	ErrMissingRefreshToken = errors.New("credential has no refresh token")
	ErrRenewRejected       = errors.New("token endpoint rejected the refresh")
	ErrTokenInvalid        = errors.New("access token is invalid")
)
