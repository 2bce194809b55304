package handlers

import (
	"context"
	"fmt"
	"github.com/gin-gonic/gin"
	"log/slog"
	"net/http"
	"strings"
	"twitchbot/internal/app/adapters/platform/twitch/api"
	"twitchbot/internal/app/domain/credential"
	"twitchbot/internal/app/ports"
)

type Authorizer interface {
	AuthCodeURL(clientID, redirectURL, state string, scopes []string) string
	Exchange(ctx context.Context, code, clientID, clientSecret, redirectURL string) (*ports.TokenPair, error)
	ValidateToken(ctx context.Context, accessToken string) (*api.ValidateResponse, error)
}

// Enrolment turns an authorization-code grant into a stored credential named
// after the login that granted it.
type Enrolment struct {
	Auth         Authorizer
	Store        ports.CredentialStorePort
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
}

func (h *Handlers) IndexHandler(c *gin.Context) {
	authURL := h.enrol.Auth.AuthCodeURL(h.enrol.ClientID, h.enrol.RedirectURL, h.state, h.enrol.Scopes)

	html := fmt.Sprintf(`<!DOCTYPE html>
		<html lang="en">
		<head>
		<meta charset="UTF-8">
		<title>Bot credential</title>
		<style>
		  body { display: flex; justify-content: center; align-items: center; height: 100vh; margin: 0; background: #9146FF; }
		  a.button {
			padding: 1em 2em;
			font-size: 1.2em;
			color: white;
			border: 2px solid white;
			border-radius: 6px;
			text-decoration: none;
			font-weight: bold;
		  }
		  a.button:hover { background-color: white; color: #9146FF; }
		</style>
		</head>
		<body>
		<a class="button" href="%s">Add a bot account</a>
		</body>
		</html>`, authURL)

	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(html))
}

func (h *Handlers) CallbackHandler(c *gin.Context) {
	code := c.Query("code")
	if code == "" || c.Query("state") != h.state {
		c.String(http.StatusBadRequest, "missing code or bad state")
		return
	}

	ctx := c.Request.Context()
	pair, err := h.enrol.Auth.Exchange(ctx, code, h.enrol.ClientID, h.enrol.ClientSecret, h.enrol.RedirectURL)
	if err != nil {
		h.log.Error("Code exchange failed", err)
		c.String(http.StatusBadGateway, "token exchange failed: %v", err)
		return
	}

	who, err := h.enrol.Auth.ValidateToken(ctx, pair.AccessToken)
	if err != nil {
		h.log.Error("Validating new token failed", err)
		c.String(http.StatusBadGateway, "token validation failed: %v", err)
		return
	}

	cred := credential.Credential{
		Username:     who.Login,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		Scopes:       strings.Join(who.Scopes, " "),
	}
	if err := h.enrol.Store.SaveCredential(ctx, who.Login, cred); err != nil {
		h.log.Error("Saving credential failed", err, slog.String("login", who.Login))
		c.String(http.StatusInternalServerError, "could not save credential: %v", err)
		return
	}

	h.log.Info("Credential enrolled", slog.String("login", who.Login))
	c.String(http.StatusOK, "Saved credential %q", who.Login)
}
