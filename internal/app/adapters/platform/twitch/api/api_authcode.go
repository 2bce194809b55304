package api

import (
	"context"
	"errors"
	"fmt"
	"golang.org/x/oauth2"
	"log/slog"
	"twitchbot/internal/app/ports"
)

func (t *Twitch) oauthConfig(clientID, clientSecret, redirectURL string, scopes []string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   t.authorizeURL,
			TokenURL:  t.tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// AuthCodeURL is where a user grants the bot a new credential.
func (t *Twitch) AuthCodeURL(clientID, redirectURL, state string, scopes []string) string {
	return t.oauthConfig(clientID, "", redirectURL, scopes).AuthCodeURL(state, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for a token pair.
func (t *Twitch) Exchange(ctx context.Context, code, clientID, clientSecret, redirectURL string) (*ports.TokenPair, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, t.client)

	tok, err := t.oauthConfig(clientID, clientSecret, redirectURL, nil).Exchange(ctx, code)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			t.log.Warn("Code exchange rejected", slog.String("body", string(re.Body)))
			return nil, fmt.Errorf("%w: %s", ErrRenewRejected, re.ErrorDescription)
		}
		return nil, fmt.Errorf("exchange code: %w", err)
	}

	return &ports.TokenPair{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
	}, nil
}
