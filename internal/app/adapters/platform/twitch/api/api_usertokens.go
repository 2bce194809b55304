package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"golang.org/x/oauth2"
	"io"
	"log/slog"
	"net/http"
	"twitchbot/internal/app/adapters/metrics"
	"twitchbot/internal/app/ports"
)

type ValidateResponse struct {
	ClientID  string   `json:"client_id"`
	Login     string   `json:"login"`
	Scopes    []string `json:"scopes"`
	UserID    string   `json:"user_id"`
	ExpiresIn int      `json:"expires_in"`
}

// Renew exchanges a refresh token for a new token pair. A rejected exchange
// returns ErrRenewRejected and the caller must keep the old credential.
func (t *Twitch) Renew(ctx context.Context, refreshToken, clientID, clientSecret string) (*ports.TokenPair, error) {
	if refreshToken == "" {
		metrics.CredentialRenewals.WithLabelValues("missing").Inc()
		return nil, ErrMissingRefreshToken
	}

	cfg := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  t.tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, t.client)
	t.log.Debug("Refreshing access token", slog.String("url", t.tokenURL))

	tok, err := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			metrics.CredentialRenewals.WithLabelValues("rejected").Inc()
			status := 0
			if re.Response != nil {
				status = re.Response.StatusCode
			}
			t.log.Warn("Token refresh rejected", slog.Int("status", status), slog.String("body", string(re.Body)))
			return nil, fmt.Errorf("%w: status %d", ErrRenewRejected, status)
		}

		metrics.CredentialRenewals.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("refresh token: %w", err)
	}

	if tok.AccessToken == "" {
		metrics.CredentialRenewals.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("%w: empty access token in response", ErrRenewRejected)
	}

	metrics.CredentialRenewals.WithLabelValues("ok").Inc()
	return &ports.TokenPair{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
	}, nil
}

// ValidateToken asks the identity service who an access token belongs to.
func (t *Twitch) ValidateToken(ctx context.Context, accessToken string) (*ValidateResponse, error) {
	if accessToken == "" {
		return nil, ErrTokenInvalid
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.validateURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "OAuth "+accessToken)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var v ValidateResponse
		if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
			return nil, err
		}
		return &v, nil
	case http.StatusUnauthorized:
		return nil, ErrTokenInvalid
	default:
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("validate request failed: %s", string(raw))
	}
}
