package ports

import "context"

type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// RenewerPort exchanges a refresh token for a new token pair. A failed
// exchange returns an error and no pair.
type RenewerPort interface {
	Renew(ctx context.Context, refreshToken, clientID, clientSecret string) (*TokenPair, error)
}
