// Package api talks to the identity service that issues chat credentials.
package api

import (
	"net/http"
	"strings"
	"time"
	"twitchbot/pkg/logger"
)

const requestTimeout = 15 * time.Second

type Twitch struct {
	log    logger.Logger
	client *http.Client

	tokenURL     string
	validateURL  string
	authorizeURL string
}

// NewTwitch uses tokenURL for refreshes; the validate and authorize endpoints
// sit next to it.
func NewTwitch(log logger.Logger, client *http.Client, tokenURL string) *Twitch {
	if client == nil {
		client = &http.Client{Timeout: requestTimeout}
	}

	base := strings.TrimSuffix(tokenURL, "/token")
	return &Twitch{
		log:          log,
		client:       client,
		tokenURL:     tokenURL,
		validateURL:  base + "/validate",
		authorizeURL: base + "/authorize",
	}
}
