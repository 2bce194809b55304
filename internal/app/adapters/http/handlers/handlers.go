package handlers

import (
	"crypto/rand"
	"encoding/base64"
	"github.com/gin-gonic/gin"
	"net/http"
	"twitchbot/internal/app/overseer"
	"twitchbot/pkg/logger"
)

type StatusSource interface {
	Sessions() []overseer.Status
	Failures() []overseer.Failure
}

type Handlers struct {
	log    logger.Logger
	status StatusSource
	enrol  *Enrolment
	state  string
}

func New(log logger.Logger, status StatusSource, enrol *Enrolment) (*Handlers, error) {
	s, err := generateSecureRandomString(52)
	if err != nil {
		log.Error("Failed to generate secure random string", err)
		return nil, err
	}

	return &Handlers{
		log:    log,
		status: status,
		enrol:  enrol,
		state:  s,
	}, nil
}

type failureView struct {
	Session    string `json:"session"`
	Credential string `json:"credential"`
	Error      string `json:"error"`
	At         string `json:"at"`
}

func (h *Handlers) HealthHandler(c *gin.Context) {
	failures := h.status.Failures()
	views := make([]failureView, 0, len(failures))
	for _, f := range failures {
		v := failureView{Session: f.Session, Credential: f.Credential, At: f.At.UTC().Format("2006-01-02T15:04:05Z")}
		if f.Err != nil {
			v.Error = f.Err.Error()
		}
		views = append(views, v)
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"sessions": h.status.Sessions(),
		"failures": views,
	})
}

func generateSecureRandomString(length int) (string, error) {
	bytes := make([]byte, (length*3)/4)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(bytes)[:length], nil
}
